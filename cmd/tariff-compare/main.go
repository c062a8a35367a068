// tariff-compare prices a load profile against one day of dynamic tariff
// slots and prints the cheapest appliance windows and the cost comparison
// with a flat rate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tariff_dashboard/internal/analysis"
	"tariff_dashboard/internal/config"
	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/ingest"
	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
	"tariff_dashboard/internal/report"
	"tariff_dashboard/internal/tariff"
)

type options struct {
	profilePath string
	tariffPath  string
	demo        bool
	apiURL      string
	tariffType  string
	day         string
	baseline    float64
	location    *time.Location
	appliances  []model.Appliance
	shiftWindow time.Duration
	xlsxPath    string
	pdfPath     string
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (appliances, timezone, API URL)")
	profilePath := flag.String("profile", "", "load profile CSV (required)")
	tariffPath := flag.String("tariff", "", "tariff JSON payload written by fetch-tariffs")
	demo := flag.Bool("demo", false, "use generated demo prices")
	tariffType := flag.String("type", "", "tariff type (integrated, grid, grid_usage, electricity)")
	day := flag.String("day", "", "day to price (YYYY-MM-DD), defaults to the first day of the profile")
	baseline := flag.Float64("baseline", -1, "flat comparison rate per kWh")
	shiftWindow := flag.Duration("shift-window", 4*time.Hour, "max distance to shift load for the shift potential, 0 disables")
	xlsxPath := flag.String("xlsx", "", "write an XLSX report to this path")
	pdfPath := flag.String("pdf", "", "write a PDF report to this path")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("loading timezone")
	}

	opts := options{
		profilePath: *profilePath,
		tariffPath:  *tariffPath,
		demo:        *demo || cfg.Tariff.Demo,
		apiURL:      cfg.Tariff.APIURL,
		tariffType:  *tariffType,
		day:         *day,
		baseline:    *baseline,
		location:    loc,
		appliances:  cfg.Appliances,
		shiftWindow: *shiftWindow,
		xlsxPath:    *xlsxPath,
		pdfPath:     *pdfPath,
	}
	if opts.tariffType == "" {
		opts.tariffType = cfg.Tariff.Type
	}
	if opts.baseline < 0 {
		opts.baseline = cfg.BaselineRate
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Tariff.Timeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("tariff-compare failed")
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	if opts.profilePath == "" {
		return errors.New("-profile is required")
	}

	raw, err := os.ReadFile(opts.profilePath)
	if err != nil {
		return err
	}
	table, err := ingest.Load(raw, ingest.Options{Location: opts.location})
	if err != nil {
		return fmt.Errorf("reading %s: %w", opts.profilePath, err)
	}
	p := profile.Normalize(table)
	idx := profile.BuildIndex(p.Samples)

	slots, err := loadSlots(ctx, opts, p.Meta.Range.Start)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return fmt.Errorf("no %s prices for the selected day", opts.tariffType)
	}

	recs := analysis.Recommend(slots, opts.appliances)
	cmp := analysis.Compare(slots, idx, opts.baseline)

	printProfile(out, opts.profilePath, p.Meta)
	printRecommendations(out, recs)
	printComparison(out, cmp, opts.baseline, slots[0].Unit)
	if cmp.HasCoverage() {
		printHourlyTable(out, analysis.HourlyDistribution(slots, idx, opts.location), cmp.MatchedEnergyKWh)
		if opts.shiftWindow > 0 {
			printShiftResult(out, analysis.ShiftPotential(slots, idx, opts.shiftWindow), opts.shiftWindow)
		}
	}

	rep := report.Report{
		GeneratedAt:     time.Now().In(opts.location),
		TariffType:      opts.tariffType,
		BaselineRate:    opts.baseline,
		ProfileName:     opts.profilePath,
		Comparison:      &cmp,
		Recommendations: recs,
		Rows:            dashboard.BuildRows(slots, idx),
	}
	if opts.xlsxPath != "" {
		if err := writeReport(opts.xlsxPath, rep, report.XLSX); err != nil {
			return err
		}
	}
	if opts.pdfPath != "" {
		if err := writeReport(opts.pdfPath, rep, report.PDF); err != nil {
			return err
		}
	}
	return nil
}

// loadSlots reads slots from the tariff file, demo prices or the API, in
// that order of preference. fallbackDay is used when no -day is given.
func loadSlots(ctx context.Context, opts options, fallbackDay time.Time) ([]model.TariffSlot, error) {
	if opts.tariffPath != "" {
		data, err := os.ReadFile(opts.tariffPath)
		if err != nil {
			return nil, err
		}
		records, err := tariff.DecodePayload(data)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", opts.tariffPath, err)
		}
		return tariff.BuildSlots(records, opts.tariffType), nil
	}

	day := fallbackDay.In(opts.location)
	if opts.day != "" {
		var err error
		day, err = time.ParseInLocation("2006-01-02", opts.day, opts.location)
		if err != nil {
			return nil, fmt.Errorf("invalid -day %q: %w", opts.day, err)
		}
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, opts.location)

	if opts.demo {
		return tariff.BuildSlots(tariff.DemoRecords(start, 1), opts.tariffType), nil
	}

	client := tariff.NewClient(opts.apiURL, tariff.WithLogger(log.Logger))
	return client.Slots(ctx, tariff.Query{Start: start, End: start.AddDate(0, 0, 1), TariffType: opts.tariffType})
}

func writeReport(path string, rep report.Report, render func(report.Report) ([]byte, error)) error {
	data, err := render(rep)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Info().Str("file", path).Msg("report written")
	return nil
}

func printProfile(w io.Writer, name string, meta profile.Meta) {
	fmt.Fprintf(w, "Load profile: %s\n", name)
	fmt.Fprintf(w, "  Rows: %d, Total: %.3f kWh (%s)\n", meta.RowCount, meta.TotalEnergyKWh, meta.UnitLabel)
	fmt.Fprintf(w, "  Range: %s to %s\n", meta.Range.Start.Format("2006-01-02 15:04"), meta.Range.End.Format("2006-01-02 15:04"))
	for _, note := range meta.Notes {
		fmt.Fprintf(w, "  Note: %s\n", note)
	}
	fmt.Fprintln(w)
}

func printRecommendations(w io.Writer, recs []analysis.Recommendation) {
	fmt.Fprintf(w, " %-28s │ %8s │ %-13s │ %10s\n", "Appliance", "Duration", "Window", "Avg price")
	fmt.Fprintf(w, "──────────────────────────────┼──────────┼───────────────┼────────────\n")
	for _, r := range recs {
		window, price := "-", "-"
		if r.Found {
			window = r.Window.Start.Format("15:04") + " - " + r.Window.End.Format("15:04")
			price = fmt.Sprintf("%.4f", r.Window.AveragePrice)
		}
		fmt.Fprintf(w, " %-28s │ %5d min │ %-13s │ %10s\n", r.Appliance.Name, r.Appliance.DurationMinutes, window, price)
	}
	fmt.Fprintln(w)
}

func printComparison(w io.Writer, c model.ComparisonResult, baseline float64, unit string) {
	if !c.HasCoverage() {
		fmt.Fprintf(w, "No profile data overlaps the tariff slots (%d entries outside the range).\n", c.ExtraEntries)
		return
	}
	fmt.Fprintf(w, "Matched slots: %d (%d missing, %d profile entries outside range)\n", c.MatchedCount, c.MissingCount, c.ExtraEntries)
	fmt.Fprintf(w, "Matched energy: %.3f of %.3f kWh\n", c.MatchedEnergyKWh, c.TotalProfileEnergyKWh)
	fmt.Fprintf(w, "Dynamic cost:  %.4f (avg %.4f %s)\n", c.DynamicCost, c.DynamicAveragePrice, unit)
	fmt.Fprintf(w, "Static cost:   %.4f (%.4f %s)\n", c.StaticCost, baseline, unit)
	fmt.Fprintf(w, "Savings:       %.4f (%.1f%%)\n", c.Savings, c.SavingsPercent*100)
	fmt.Fprintf(w, "Coverage:      %.1f%% of slots, %.1f%% of energy\n", c.CoverageSlots*100, c.CoverageEnergy*100)
}

func printHourlyTable(w io.Writer, hourly [24]analysis.HourlyBucket, totalKWh float64) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Hourly distribution:")
	fmt.Fprintf(w, "   %4s │ %8s │ %10s │ %9s │ %5s\n", "Hour", "kWh", "Avg price", "Cost", "Share")
	fmt.Fprintf(w, "  ──────┼──────────┼────────────┼───────────┼──────\n")

	var maxCostHour int
	var maxCost float64
	for h, b := range hourly {
		if b.Cost > maxCost {
			maxCost = b.Cost
			maxCostHour = h
		}
	}

	for h, b := range hourly {
		if b.Slots == 0 {
			continue
		}
		share := 0.0
		if totalKWh != 0 {
			share = b.EnergyKWh / totalKWh * 100
		}
		marker := ""
		if h == maxCostHour && maxCost > 0 {
			marker = " ← expensive"
		}
		fmt.Fprintf(w, "     %02d │ %8.3f │ %10.4f │ %9.4f │ %4.1f%%%s\n",
			h, b.EnergyKWh, b.AveragePrice(), b.Cost, share, marker)
	}
}

func printShiftResult(w io.Writer, r analysis.ShiftResult, window time.Duration) {
	pct := 0.0
	if r.CurrentCost != 0 {
		pct = r.Savings / r.CurrentCost * 100
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Shift potential (±%s window):\n", window)
	fmt.Fprintf(w, "  Current cost:  %.4f\n", r.CurrentCost)
	fmt.Fprintf(w, "  Optimal cost:  %.4f\n", r.OptimalCost)
	fmt.Fprintf(w, "  Savings:       %.4f (%.1f%%)\n", r.Savings, pct)
}
