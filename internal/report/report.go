// Package report renders the cost comparison and per-slot rows of a dashboard
// session as XLSX or PDF.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"tariff_dashboard/internal/analysis"
	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/model"
)

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

// Report is a snapshot of one session. Comparison is nil when no profile is loaded.
type Report struct {
	GeneratedAt     time.Time
	TariffType      string
	BaselineRate    float64
	ProfileName     string
	Comparison      *model.ComparisonResult
	Recommendations []analysis.Recommendation
	Rows            []dashboard.SlotRow
}

// FromEngine collects a Report from the current engine state.
func FromEngine(e *dashboard.Engine, now time.Time) (Report, error) {
	slots, tariffType := e.Slots()
	if len(slots) == 0 {
		return Report{}, dashboard.ErrNoSlots
	}
	r := Report{
		GeneratedAt:  now,
		TariffType:   tariffType,
		BaselineRate: e.Baseline(),
		Rows:         e.Rows(),
	}
	r.Recommendations, _ = e.Recommendations()
	if p, ok := e.Profile(); ok {
		r.ProfileName = p.Name
	}
	if c, err := e.Comparison(); err == nil {
		r.Comparison = &c.Result
		r.BaselineRate = c.BaselineRate
	}
	return r, nil
}

// Filename returns the download name for format.
func (r Report) Filename(format string) string {
	day := "empty"
	if len(r.Rows) > 0 {
		day = r.Rows[0].Slot.Start.Format("2006-01-02")
	}
	return fmt.Sprintf("tariff-%s-%s.%s", r.TariffType, day, format)
}

func (r Report) unit() string {
	for _, row := range r.Rows {
		if row.Slot.Unit != "" {
			return row.Slot.Unit
		}
	}
	return model.DefaultUnit
}

func (r Report) summary() [][2]any {
	lines := [][2]any{
		{"Tariff type", r.TariffType},
		{"Slots", len(r.Rows)},
		{"Baseline rate", r.BaselineRate},
		{"Unit", r.unit()},
		{"Generated", r.GeneratedAt.Format(time.RFC3339)},
	}
	if r.ProfileName != "" {
		lines = append(lines, [2]any{"Load profile", r.ProfileName})
	}
	c := r.Comparison
	if c == nil {
		return lines
	}
	return append(lines,
		[2]any{"Matched slots", c.MatchedCount},
		[2]any{"Missing slots", c.MissingCount},
		[2]any{"Profile entries outside range", c.ExtraEntries},
		[2]any{"Matched energy (kWh)", c.MatchedEnergyKWh},
		[2]any{"Profile energy (kWh)", c.TotalProfileEnergyKWh},
		[2]any{"Dynamic cost", c.DynamicCost},
		[2]any{"Static cost", c.StaticCost},
		[2]any{"Savings", c.Savings},
		[2]any{"Savings (%)", c.SavingsPercent * 100},
		[2]any{"Average dynamic price", c.DynamicAveragePrice},
		[2]any{"Slot coverage (%)", c.CoverageSlots * 100},
		[2]any{"Energy coverage (%)", c.CoverageEnergy * 100},
	)
}

// XLSX renders the report with a summary, a recommendations and a slots sheet.
func XLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	recSheet := "recommendations"
	slotSheet := "slots"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{recSheet, slotSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	_ = f.SetCellValue(summarySheet, "A1", "Dynamic Tariff Report")
	for i, line := range r.summary() {
		row := i + 3
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), line[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), line[1])
	}

	_ = f.SetSheetRow(recSheet, "A1", &[]any{"Appliance", "Duration (min)", "Start", "End", "Average price"})
	for i, rec := range r.Recommendations {
		row := []any{rec.Appliance.Name, rec.Appliance.DurationMinutes, "", "", ""}
		if rec.Found {
			row[2] = rec.Window.Start.Format(time.RFC3339)
			row[3] = rec.Window.End.Format(time.RFC3339)
			row[4] = rec.Window.AveragePrice
		}
		_ = f.SetSheetRow(recSheet, fmt.Sprintf("A%d", i+2), &row)
	}

	_ = f.SetSheetRow(slotSheet, "A1", &[]any{"Start", "End", "Price", "Energy (kWh)", "Cost"})
	for i, sr := range r.Rows {
		row := []any{sr.Slot.Start.Format(time.RFC3339), sr.Slot.End.Format(time.RFC3339), sr.Slot.Price, "", ""}
		if sr.HasEnergy {
			row[3] = sr.EnergyKWh
			row[4] = sr.Cost
		}
		_ = f.SetSheetRow(slotSheet, fmt.Sprintf("A%d", i+2), &row)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF renders the summary and the slot table on A4 pages.
func PDF(r Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Dynamic Tariff Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, line := range r.summary() {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %s", line[0], formatValue(line[1])))
		pdf.Ln(5)
	}

	if len(r.Recommendations) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 6, "Appliance", "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, "Window", "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, "Average price", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, rec := range r.Recommendations {
			window, price := "-", "-"
			if rec.Found {
				window = rec.Window.Start.Format("02.01. 15:04") + " - " + rec.Window.End.Format("15:04")
				price = fmt.Sprintf("%.4f", rec.Window.AveragePrice)
			}
			pdf.CellFormat(60, 6, rec.Appliance.Name, "1", 0, "L", false, 0, "")
			pdf.CellFormat(60, 6, window, "1", 0, "C", false, 0, "")
			pdf.CellFormat(40, 6, price, "1", 0, "R", false, 0, "")
			pdf.Ln(-1)
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Start", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Price", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Energy (kWh)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Cost", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, sr := range r.Rows {
		energy, cost := "-", "-"
		if sr.HasEnergy {
			energy = fmt.Sprintf("%.3f", sr.EnergyKWh)
			cost = fmt.Sprintf("%.4f", sr.Cost)
		}
		pdf.CellFormat(50, 6, sr.Slot.Start.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.4f", sr.Slot.Price), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, energy, "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, cost, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.4f", x)
	default:
		return fmt.Sprint(x)
	}
}
