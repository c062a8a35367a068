package model

import "time"

// Interval is the fixed cadence of load samples and the canonical slot grid.
const Interval = 15 * time.Minute

// IntervalMinutes is Interval expressed in minutes.
const IntervalMinutes = 15

// DefaultUnit is used for tariff slots whose source carries no unit.
const DefaultUnit = "CHF/kWh"

// TariffSlot is one fixed-duration pricing interval.
type TariffSlot struct {
	Start time.Time
	End   time.Time
	Price float64
	Unit  string
}

// Duration returns the nominal length of the slot.
func (s TariffSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// LoadSample is one normalized load-profile interval. Energy is always in kWh.
type LoadSample struct {
	Start     time.Time
	End       time.Time
	EnergyKWh float64
}

// SlotKey identifies a canonical interval on the Interval grid, in Unix milliseconds.
type SlotKey int64

// Time returns the start of the canonical interval.
func (k SlotKey) Time() time.Time {
	return time.UnixMilli(int64(k))
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Appliance describes a consumer that needs a contiguous run of DurationMinutes.
type Appliance struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Description     string `yaml:"description" json:"description"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
}
