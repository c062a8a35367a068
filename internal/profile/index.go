package profile

import (
	"math"
	"time"

	"tariff_dashboard/internal/model"
)

var intervalMillis = model.Interval.Milliseconds()

// Key floors t onto the interval grid. Instants in the same canonical
// interval share a key, so 00:07 and 00:08 both join the 00:00 slot.
func Key(t time.Time) model.SlotKey {
	ms := t.UnixMilli()
	q := ms / intervalMillis
	if ms%intervalMillis < 0 {
		q--
	}
	return model.SlotKey(q * intervalMillis)
}

// Index maps slot keys to the energy accumulated under them. It is read-only
// once built.
type Index map[model.SlotKey]float64

// BuildIndex sums sample energy per slot key. Duplicate or finer-grained
// samples accumulate instead of overwriting each other.
func BuildIndex(samples []model.LoadSample) Index {
	idx := make(Index, len(samples))
	for _, s := range samples {
		idx[Key(s.Start)] += s.EnergyKWh
	}
	return idx
}

// Energy returns the energy accumulated in the interval containing t. Missing
// and non-finite entries report false.
func (idx Index) Energy(t time.Time) (float64, bool) {
	return idx.EnergyAt(Key(t))
}

func (idx Index) EnergyAt(k model.SlotKey) (float64, bool) {
	e, ok := idx[k]
	if !ok || math.IsNaN(e) || math.IsInf(e, 0) {
		return 0, false
	}
	return e, true
}

// Total sums all energy in the index.
func (idx Index) Total() float64 {
	var total float64
	for _, e := range idx {
		total += e
	}
	return total
}

func (idx Index) Len() int {
	return len(idx)
}
