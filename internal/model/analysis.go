package model

import "time"

// WindowRecommendation is the cheapest contiguous window for one appliance duration.
type WindowRecommendation struct {
	Start        time.Time
	End          time.Time
	AveragePrice float64
	Unit         string
}

// ComparisonResult compares the dynamic tariff with a flat baseline rate over the
// part of the load profile that lines up with tariff slots.
type ComparisonResult struct {
	MatchedCount int
	MissingCount int
	ExtraEntries int

	MatchedEnergyKWh      float64
	TotalProfileEnergyKWh float64

	DynamicCost         float64
	StaticCost          float64
	Savings             float64
	SavingsPercent      float64 // fraction of StaticCost, 0.12 means 12%
	DynamicAveragePrice float64

	CoverageSlots  float64
	CoverageEnergy float64
}

// HasCoverage reports whether at least one tariff slot matched profile data.
func (r ComparisonResult) HasCoverage() bool {
	return r.MatchedCount > 0
}
