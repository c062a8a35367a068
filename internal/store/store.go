package store

import (
	"sort"
	"sync"
	"time"

	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
)

// LoadedProfile is an uploaded load profile together with its slot index.
type LoadedProfile struct {
	ID       string
	Name     string
	Profile  profile.Profile
	Index    profile.Index
	LoadedAt time.Time
}

// Store holds the current tariff slots and load profile of a dashboard
// session. Slots are kept sorted by start.
type Store struct {
	mu         sync.RWMutex
	slots      []model.TariffSlot
	tariffType string
	profile    *LoadedProfile
}

func New() *Store {
	return &Store{}
}

// SetSlots replaces the tariff slots, then sorts them by start.
func (s *Store) SetSlots(slots []model.TariffSlot, tariffType string) {
	sorted := make([]model.TariffSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = sorted
	s.tariffType = tariffType
}

// Slots returns a copy of all slots.
func (s *Store) Slots() []model.TariffSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.slots) == 0 {
		return nil
	}
	out := make([]model.TariffSlot, len(s.slots))
	copy(out, s.slots)
	return out
}

func (s *Store) TariffType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tariffType
}

func (s *Store) SlotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// TimeRange returns the span from the first slot's start to the last slot's end.
func (s *Store) TimeRange() (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.slots) == 0 {
		return model.TimeRange{}, false
	}

	end := s.slots[0].End
	for _, slot := range s.slots {
		if slot.End.After(end) {
			end = slot.End
		}
	}
	return model.TimeRange{Start: s.slots[0].Start, End: end}, true
}

// SlotsInRange returns slots starting between start (inclusive) and end (exclusive).
func (s *Store) SlotsInRange(start, end time.Time) []model.TariffSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.slots
	if len(all) == 0 {
		return nil
	}

	startIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Start.Before(start)
	})
	endIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Start.Before(end)
	})

	if startIdx >= endIdx {
		return nil
	}

	result := make([]model.TariffSlot, endIdx-startIdx)
	copy(result, all[startIdx:endIdx])
	return result
}

// SlotAt returns the slot whose interval contains t.
func (s *Store) SlotAt(t time.Time) (model.TariffSlot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.slots
	// First slot starting after t
	idx := sort.Search(len(all), func(i int) bool {
		return all[i].Start.After(t)
	})

	if idx == 0 {
		return model.TariffSlot{}, false
	}

	slot := all[idx-1]
	if !t.Before(slot.End) {
		return model.TariffSlot{}, false
	}
	return slot, true
}

// SetProfile replaces the current load profile.
func (s *Store) SetProfile(p LoadedProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &p
}

// Profile returns the current load profile, if one is loaded.
func (s *Store) Profile() (LoadedProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.profile == nil {
		return LoadedProfile{}, false
	}
	return *s.profile, true
}

// ClearProfile drops the load profile and reports whether one was loaded.
func (s *Store) ClearProfile() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	had := s.profile != nil
	s.profile = nil
	return had
}
