package profile

import (
	"fmt"
	"sort"
	"time"

	"tariff_dashboard/internal/ingest"
	"tariff_dashboard/internal/model"
)

const (
	UnitLabelEnergy = "kWh"
	UnitLabelPower  = "kW → kWh (×0.25)"

	NoteWatts = "measured, values in Watts"
)

// powerToEnergy converts one interval of average power (kW) into energy (kWh).
const powerToEnergy = float64(model.IntervalMinutes) / 60

// Profile is a load profile on the fixed interval grid, ordered by start.
type Profile struct {
	Samples []model.LoadSample
	Meta    Meta
}

// Meta summarizes a normalized profile for display.
type Meta struct {
	RowCount       int
	TotalEnergyKWh float64
	Range          model.TimeRange
	UnitLabel      string
	Notes          []string
}

// Normalize turns ingested rows into LoadSamples. Power readings are folded
// into energy per interval; rows with equal timestamps keep their input order.
func Normalize(t *ingest.Table) Profile {
	samples := make([]model.LoadSample, 0, len(t.Rows))
	for _, row := range t.Rows {
		energy := row.Value
		if t.ValuesArePower {
			energy *= powerToEnergy
		}
		samples = append(samples, model.LoadSample{
			Start:     row.Time,
			End:       row.Time.Add(model.Interval),
			EnergyKWh: energy,
		})
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Start.Before(samples[j].Start)
	})

	return Profile{Samples: samples, Meta: summarize(samples, t)}
}

func summarize(samples []model.LoadSample, t *ingest.Table) Meta {
	meta := Meta{RowCount: len(samples), UnitLabel: UnitLabelEnergy}

	for _, s := range samples {
		meta.TotalEnergyKWh += s.EnergyKWh
	}
	if len(samples) > 0 {
		meta.Range = model.TimeRange{Start: samples[0].Start, End: samples[len(samples)-1].End}
	}

	if t.ValuesArePower {
		meta.UnitLabel = UnitLabelPower
		meta.Notes = append(meta.Notes,
			fmt.Sprintf("power readings converted to energy per %d-minute interval", model.IntervalMinutes))
	}
	if t.WattsAnnotated {
		meta.Notes = append(meta.Notes, NoteWatts)
	}
	if t.SkippedRows > 0 {
		meta.Notes = append(meta.Notes, fmt.Sprintf("%d malformed row(s) skipped", t.SkippedRows))
	}
	return meta
}

// Duration returns the span covered by the profile.
func (m Meta) Duration() time.Duration {
	return m.Range.End.Sub(m.Range.Start)
}
