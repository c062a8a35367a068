package dashboard

import (
	"time"

	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
)

// SlotRow is one tariff slot joined with the profile energy in it.
type SlotRow struct {
	Slot      model.TariffSlot
	EnergyKWh float64
	HasEnergy bool
	Cost      float64
}

// BuildRows joins every slot with idx. idx may be nil.
func BuildRows(slots []model.TariffSlot, idx profile.Index) []SlotRow {
	rows := make([]SlotRow, len(slots))
	for i, s := range slots {
		rows[i].Slot = s
		if e, ok := idx.Energy(s.Start); ok {
			rows[i].EnergyKWh = e
			rows[i].HasEnergy = true
			rows[i].Cost = e * s.Price
		}
	}
	return rows
}

// Rows returns the per-slot view of the current session.
func (e *Engine) Rows() []SlotRow {
	return BuildRows(e.store.Slots(), e.profileIndex())
}

// RowsInRange returns the rows of slots starting in [from, to). A zero to
// means no upper bound.
func (e *Engine) RowsInRange(from, to time.Time) []SlotRow {
	if to.IsZero() {
		tr, ok := e.store.TimeRange()
		if !ok {
			return nil
		}
		to = tr.End
	}
	return BuildRows(e.store.SlotsInRange(from, to), e.profileIndex())
}

// RowAt returns the row of the slot containing t.
func (e *Engine) RowAt(t time.Time) (SlotRow, bool) {
	slot, ok := e.store.SlotAt(t)
	if !ok {
		return SlotRow{}, false
	}
	return BuildRows([]model.TariffSlot{slot}, e.profileIndex())[0], true
}

func (e *Engine) profileIndex() profile.Index {
	if p, ok := e.store.Profile(); ok {
		return p.Index
	}
	return nil
}
