package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
)

func makeSlots(prices []float64, startTime time.Time, interval time.Duration) []model.TariffSlot {
	slots := make([]model.TariffSlot, len(prices))
	for i, p := range prices {
		start := startTime.Add(time.Duration(i) * interval)
		slots[i] = model.TariffSlot{Start: start, End: start.Add(interval), Price: p, Unit: "CHF/kWh"}
	}
	return slots
}

var (
	startTime = time.Date(2024, 11, 21, 12, 0, 0, 0, time.UTC)
	quarter   = 15 * time.Minute
)

func TestStore_SetSlots(t *testing.T) {
	s := New()
	s.SetSlots(makeSlots([]float64{0.2, 0.1, 0.3}, startTime, quarter), "integrated")

	assert.Equal(t, 3, s.SlotCount())
	assert.Equal(t, "integrated", s.TariffType())

	s.SetSlots(nil, "grid")
	assert.Equal(t, 0, s.SlotCount())
	assert.Nil(t, s.Slots())
}

func TestStore_SetSlotsSortsAndCopies(t *testing.T) {
	slots := makeSlots([]float64{0.2, 0.1, 0.3}, startTime, quarter)
	reversed := []model.TariffSlot{slots[2], slots[0], slots[1]}

	s := New()
	s.SetSlots(reversed, "integrated")
	reversed[0].Price = 99

	got := s.Slots()
	require.Len(t, got, 3)
	assert.Equal(t, startTime, got[0].Start)
	assert.InDelta(t, 0.3, got[2].Price, 1e-12)

	got[0].Price = 42
	assert.InDelta(t, 0.2, s.Slots()[0].Price, 1e-12)
}

func TestStore_TimeRange(t *testing.T) {
	s := New()
	_, ok := s.TimeRange()
	assert.False(t, ok)

	s.SetSlots(makeSlots([]float64{0.2, 0.1, 0.3}, startTime, quarter), "integrated")

	tr, ok := s.TimeRange()
	require.True(t, ok)
	assert.Equal(t, startTime, tr.Start)
	assert.Equal(t, startTime.Add(3*quarter), tr.End)
}

func TestStore_SlotsInRange(t *testing.T) {
	s := New()
	s.SetSlots(makeSlots([]float64{1, 2, 3, 4, 5}, startTime, quarter), "integrated")

	result := s.SlotsInRange(startTime.Add(quarter), startTime.Add(3*quarter))
	require.Len(t, result, 2)
	assert.InDelta(t, 2.0, result[0].Price, 0.001)
	assert.InDelta(t, 3.0, result[1].Price, 0.001)

	result = s.SlotsInRange(startTime.Add(10*quarter), startTime.Add(11*quarter))
	assert.Empty(t, result)

	assert.Empty(t, New().SlotsInRange(startTime, startTime.Add(quarter)))
}

func TestStore_SlotAt(t *testing.T) {
	s := New()
	s.SetSlots(makeSlots([]float64{1, 2, 3}, startTime, quarter), "integrated")

	slot, ok := s.SlotAt(startTime.Add(20 * time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 2.0, slot.Price, 0.001)

	slot, ok = s.SlotAt(startTime)
	require.True(t, ok)
	assert.InDelta(t, 1.0, slot.Price, 0.001)

	_, ok = s.SlotAt(startTime.Add(-time.Minute))
	assert.False(t, ok)

	_, ok = s.SlotAt(startTime.Add(3 * quarter))
	assert.False(t, ok)
}

func TestStore_Profile(t *testing.T) {
	s := New()
	_, ok := s.Profile()
	assert.False(t, ok)
	assert.False(t, s.ClearProfile())

	samples := []model.LoadSample{{Start: startTime, End: startTime.Add(quarter), EnergyKWh: 1.5}}
	s.SetProfile(LoadedProfile{
		ID:      "p1",
		Name:    "lastgang.csv",
		Profile: profile.Profile{Samples: samples},
		Index:   profile.BuildIndex(samples),
	})

	p, ok := s.Profile()
	require.True(t, ok)
	assert.Equal(t, "p1", p.ID)
	assert.InDelta(t, 1.5, p.Index.Total(), 1e-12)

	assert.True(t, s.ClearProfile())
	_, ok = s.Profile()
	assert.False(t, ok)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	slots := makeSlots([]float64{1, 2, 3, 4}, startTime, quarter)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetSlots(slots, "integrated")
		}()
		go func() {
			defer wg.Done()
			_ = s.Slots()
			_, _ = s.SlotAt(startTime)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, s.SlotCount())
}
