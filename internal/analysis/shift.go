package analysis

import (
	"time"

	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
)

// HourlyBucket sums the matched energy and dynamic cost of one hour of day.
type HourlyBucket struct {
	EnergyKWh float64
	Cost      float64
	Slots     int
}

// AveragePrice is the energy-weighted price of the bucket, 0 without energy.
func (b HourlyBucket) AveragePrice() float64 {
	if b.EnergyKWh == 0 {
		return 0
	}
	return b.Cost / b.EnergyKWh
}

// HourlyDistribution buckets every matched slot by the hour of its start in loc.
func HourlyDistribution(slots []model.TariffSlot, idx profile.Index, loc *time.Location) [24]HourlyBucket {
	if loc == nil {
		loc = time.Local
	}
	var buckets [24]HourlyBucket
	for _, s := range slots {
		energy, ok := idx.Energy(s.Start)
		if !ok {
			continue
		}
		h := s.Start.In(loc).Hour()
		buckets[h].EnergyKWh += energy
		buckets[h].Cost += energy * s.Price
		buckets[h].Slots++
	}
	return buckets
}

// ShiftResult compares the matched cost with the cost after moving every
// slot's energy to the cheapest slot within the shift window.
type ShiftResult struct {
	CurrentCost float64
	OptimalCost float64
	Savings     float64
}

// ShiftPotential prices each matched slot's energy at the cheapest slot whose
// start lies within window of it. slots must be sorted by start.
func ShiftPotential(slots []model.TariffSlot, idx profile.Index, window time.Duration) ShiftResult {
	var r ShiftResult
	for i, s := range slots {
		energy, ok := idx.Energy(s.Start)
		if !ok {
			continue
		}
		best := s.Price
		for j := i - 1; j >= 0 && s.Start.Sub(slots[j].Start) <= window; j-- {
			best = min(best, slots[j].Price)
		}
		for j := i + 1; j < len(slots) && slots[j].Start.Sub(s.Start) <= window; j++ {
			best = min(best, slots[j].Price)
		}
		r.CurrentCost += energy * s.Price
		r.OptimalCost += energy * best
	}
	r.Savings = r.CurrentCost - r.OptimalCost
	return r
}
