// Package analysis holds the price-window search and the cost comparison
// between a dynamic tariff and a flat baseline rate.
package analysis

import (
	"math"

	"tariff_dashboard/internal/model"
)

// FindCheapestWindow returns the contiguous run of slots with the lowest mean
// price that covers durationMinutes. Slots must be sorted by start and share
// the duration of the first slot. It reports false when there are not enough
// slots for the requested duration.
//
// On equal means the earliest window wins.
func FindCheapestWindow(slots []model.TariffSlot, durationMinutes int) (model.WindowRecommendation, bool) {
	if len(slots) == 0 {
		return model.WindowRecommendation{}, false
	}

	slotMinutes := max(1, roundHalfUp(slots[0].Duration().Minutes()))
	window := max(1, roundHalfUp(float64(durationMinutes)/float64(slotMinutes)))
	if window > len(slots) {
		return model.WindowRecommendation{}, false
	}

	var sum float64
	bestStart, bestAvg := -1, 0.0
	for i, s := range slots {
		sum += s.Price
		if i >= window {
			sum -= slots[i-window].Price
		}
		if i < window-1 {
			continue
		}
		avg := sum / float64(window)
		if bestStart < 0 || avg < bestAvg {
			bestStart, bestAvg = i-window+1, avg
		}
	}

	first, last := slots[bestStart], slots[bestStart+window-1]
	return model.WindowRecommendation{
		Start:        first.Start,
		End:          last.End,
		AveragePrice: bestAvg,
		Unit:         first.Unit,
	}, true
}

// Recommendation pairs an appliance with its cheapest window, if any.
type Recommendation struct {
	Appliance model.Appliance
	Window    model.WindowRecommendation
	Found     bool
}

// Recommend runs FindCheapestWindow for every appliance in order.
func Recommend(slots []model.TariffSlot, appliances []model.Appliance) []Recommendation {
	out := make([]Recommendation, 0, len(appliances))
	for _, a := range appliances {
		w, ok := FindCheapestWindow(slots, a.DurationMinutes)
		out = append(out, Recommendation{Appliance: a, Window: w, Found: ok})
	}
	return out
}

// roundHalfUp rounds halves towards positive infinity.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
