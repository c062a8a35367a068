package analysis

import (
	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
)

// Compare joins slots with the load profile index by slot key and prices the
// matched energy both dynamically and at baselineRate. Profile keys that no
// slot claims are counted as extra entries. Partial slots are not
// interpolated.
func Compare(slots []model.TariffSlot, idx profile.Index, baselineRate float64) model.ComparisonResult {
	var r model.ComparisonResult
	consumed := make(map[model.SlotKey]struct{}, len(slots))

	for _, s := range slots {
		key := profile.Key(s.Start)
		energy, ok := idx.EnergyAt(key)
		if !ok {
			r.MissingCount++
			continue
		}
		r.MatchedCount++
		r.MatchedEnergyKWh += energy
		r.DynamicCost += energy * s.Price
		r.StaticCost += energy * baselineRate
		consumed[key] = struct{}{}
	}

	r.TotalProfileEnergyKWh = idx.Total()
	for key := range idx {
		if _, ok := consumed[key]; !ok {
			r.ExtraEntries++
		}
	}

	r.Savings = r.StaticCost - r.DynamicCost
	if len(slots) > 0 {
		r.CoverageSlots = float64(r.MatchedCount) / float64(len(slots))
	}
	if r.TotalProfileEnergyKWh != 0 {
		r.CoverageEnergy = r.MatchedEnergyKWh / r.TotalProfileEnergyKWh
	}
	if r.StaticCost != 0 {
		r.SavingsPercent = r.Savings / r.StaticCost
	}
	if r.MatchedEnergyKWh != 0 {
		r.DynamicAveragePrice = r.DynamicCost / r.MatchedEnergyKWh
	}
	return r
}
