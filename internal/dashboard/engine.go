// Package dashboard ties the tariff source, the session store and the
// analysis functions together and pushes every recomputed view to a Callback.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tariff_dashboard/internal/analysis"
	"tariff_dashboard/internal/ingest"
	"tariff_dashboard/internal/metrics"
	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
	"tariff_dashboard/internal/store"
	"tariff_dashboard/internal/tariff"
)

var (
	// ErrNoSlots means no tariff slots are loaded for the selected range and type.
	ErrNoSlots = errors.New("no tariff data for the selected range and tariff type")
	// ErrNoProfile means no load profile has been uploaded.
	ErrNoProfile = errors.New("no load profile loaded")
)

// TariffSource fetches normalized tariff slots.
type TariffSource interface {
	Slots(ctx context.Context, q tariff.Query) ([]model.TariffSlot, error)
}

// SlotsUpdate is emitted whenever the tariff slots change.
type SlotsUpdate struct {
	TariffType string
	Slots      []model.TariffSlot
	Range      model.TimeRange
}

// ProfileUpdate is emitted when a profile is loaded or cleared.
type ProfileUpdate struct {
	Loaded bool
	ID     string
	Name   string
	Meta   profile.Meta
}

// Comparison is a ComparisonResult together with the inputs it was computed from.
type Comparison struct {
	Result       model.ComparisonResult
	BaselineRate float64
	ProfileID    string
	TariffType   string
}

// Callback receives dashboard events.
type Callback interface {
	OnSlots(update SlotsUpdate)
	OnProfile(update ProfileUpdate)
	OnRecommendations(recs []analysis.Recommendation)
	OnComparison(c Comparison)
}

// Options configure an Engine.
type Options struct {
	Source       TariffSource
	Appliances   []model.Appliance
	BaselineRate float64
	// Location applies to zone-less timestamps in uploads.
	Location *time.Location
	DemoSeed uint64
	Logger   zerolog.Logger
}

// Engine recomputes recommendations and the cost comparison from the
// session store whenever slots, profile or baseline rate change.
type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	callback Callback
	source   TariffSource
	logger   zerolog.Logger

	appliances []model.Appliance
	baseline   float64
	location   *time.Location
	demoSeed   uint64
}

func New(s *store.Store, cb Callback, opts Options) *Engine {
	return &Engine{
		store:      s,
		callback:   cb,
		source:     opts.Source,
		logger:     opts.Logger,
		appliances: opts.Appliances,
		baseline:   opts.BaselineRate,
		location:   opts.Location,
		demoSeed:   opts.DemoSeed,
	}
}

// LoadTariff fetches slots for q from the configured source.
func (e *Engine) LoadTariff(ctx context.Context, q tariff.Query) error {
	if e.source == nil {
		return errors.New("no tariff source configured")
	}
	slots, err := e.source.Slots(ctx, q)
	if err != nil {
		e.logger.Error().Err(err).Str("tariff_type", q.TariffType).Msg("tariff fetch failed")
		return fmt.Errorf("loading tariff: %w", err)
	}
	return e.SetSlots(slots, q.TariffType)
}

// Load fetches q from the source, or generates demo prices for the day of
// q.Start when demo is set. A zero q.Start means today.
func (e *Engine) Load(ctx context.Context, q tariff.Query, demo bool) error {
	if !demo {
		return e.LoadTariff(ctx, q)
	}
	day := q.Start
	if day.IsZero() {
		e.mu.Lock()
		loc := e.location
		e.mu.Unlock()
		if loc == nil {
			loc = time.Local
		}
		day = time.Now().In(loc)
	}
	return e.LoadDemo(day, q.TariffType)
}

// LoadDemo replaces the slots with generated prices for the day containing day.
func (e *Engine) LoadDemo(day time.Time, tariffType string) error {
	e.mu.Lock()
	seed := e.demoSeed
	e.mu.Unlock()

	if tariffType == "" {
		tariffType = tariff.TypeIntegrated
	}
	return e.SetSlots(tariff.BuildSlots(tariff.DemoRecords(day, seed), tariffType), tariffType)
}

// SetSlots stores slots and recomputes every view. An empty slot set is
// stored as well, so stale prices are never shown, and reported as ErrNoSlots.
func (e *Engine) SetSlots(slots []model.TariffSlot, tariffType string) error {
	e.store.SetSlots(slots, tariffType)

	update := e.CurrentSlots()
	e.logger.Info().
		Int("slots", len(update.Slots)).
		Str("tariff_type", tariffType).
		Msg("tariff slots loaded")

	e.callback.OnSlots(update)
	e.broadcastRecommendations()
	e.broadcastComparison()

	if len(update.Slots) == 0 {
		return ErrNoSlots
	}
	return nil
}

// UploadProfile ingests raw upload bytes and replaces the current profile.
// On error the previous profile stays in place.
func (e *Engine) UploadProfile(name string, raw []byte) (store.LoadedProfile, error) {
	e.mu.Lock()
	loc := e.location
	e.mu.Unlock()

	table, err := ingest.Load(raw, ingest.Options{Location: loc})
	if err != nil {
		metrics.ObserveProfileUpload(metrics.ResultError, 0, 0)
		e.logger.Warn().Err(err).Str("file", name).Msg("load profile rejected")
		return store.LoadedProfile{}, err
	}

	p := profile.Normalize(table)
	loaded := store.LoadedProfile{
		ID:       uuid.NewString(),
		Name:     name,
		Profile:  p,
		Index:    profile.BuildIndex(p.Samples),
		LoadedAt: time.Now(),
	}
	e.store.SetProfile(loaded)
	metrics.ObserveProfileUpload(metrics.ResultSuccess, len(table.Rows), table.SkippedRows)

	e.logger.Info().
		Str("profile_id", loaded.ID).
		Str("file", name).
		Str("source", table.Source).
		Int("rows", p.Meta.RowCount).
		Int("skipped", table.SkippedRows).
		Float64("total_kwh", p.Meta.TotalEnergyKWh).
		Msg("load profile loaded")

	e.callback.OnProfile(ProfileUpdate{Loaded: true, ID: loaded.ID, Name: name, Meta: p.Meta})
	e.broadcastComparison()
	return loaded, nil
}

// ClearProfile drops the current profile.
func (e *Engine) ClearProfile() {
	if !e.store.ClearProfile() {
		return
	}
	e.logger.Info().Msg("load profile cleared")
	e.callback.OnProfile(ProfileUpdate{Loaded: false})
	e.broadcastComparison()
}

// SetBaseline changes the flat comparison rate.
func (e *Engine) SetBaseline(rate float64) error {
	if rate < 0 {
		return fmt.Errorf("baseline rate must not be negative, got %g", rate)
	}
	e.mu.Lock()
	e.baseline = rate
	e.mu.Unlock()

	e.broadcastComparison()
	return nil
}

func (e *Engine) Baseline() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseline
}

func (e *Engine) Appliances() []model.Appliance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Appliance, len(e.appliances))
	copy(out, e.appliances)
	return out
}

// Slots returns the current slots and their tariff type.
func (e *Engine) Slots() ([]model.TariffSlot, string) {
	return e.store.Slots(), e.store.TariffType()
}

// SlotCount returns the number of loaded slots.
func (e *Engine) SlotCount() int {
	return e.store.SlotCount()
}

// CurrentSlots returns the loaded slots with their type and covered range.
// Slots is empty when nothing is loaded.
func (e *Engine) CurrentSlots() SlotsUpdate {
	slots, tariffType := e.Slots()
	u := SlotsUpdate{TariffType: tariffType, Slots: slots}
	if len(slots) > 0 {
		u.Range = model.TimeRange{Start: slots[0].Start, End: slots[0].End}
		for _, s := range slots {
			if s.End.After(u.Range.End) {
				u.Range.End = s.End
			}
		}
	}
	return u
}

// Profile returns the loaded profile.
func (e *Engine) Profile() (store.LoadedProfile, bool) {
	return e.store.Profile()
}

// Recommendations returns the cheapest window for every appliance.
func (e *Engine) Recommendations() ([]analysis.Recommendation, error) {
	slots := e.store.Slots()
	if len(slots) == 0 {
		return nil, ErrNoSlots
	}
	return analysis.Recommend(slots, e.Appliances()), nil
}

// Comparison compares the loaded profile at the engine's baseline rate.
func (e *Engine) Comparison() (Comparison, error) {
	return e.ComparisonAt(e.Baseline())
}

// ComparisonAt compares the loaded profile at rate without changing the
// engine's baseline.
func (e *Engine) ComparisonAt(rate float64) (Comparison, error) {
	slots := e.store.Slots()
	if len(slots) == 0 {
		return Comparison{}, ErrNoSlots
	}
	p, ok := e.store.Profile()
	if !ok {
		return Comparison{}, ErrNoProfile
	}
	return Comparison{
		Result:       analysis.Compare(slots, p.Index, rate),
		BaselineRate: rate,
		ProfileID:    p.ID,
		TariffType:   e.store.TariffType(),
	}, nil
}

func (e *Engine) broadcastRecommendations() {
	recs, err := e.Recommendations()
	if err != nil {
		e.callback.OnRecommendations(nil)
		return
	}
	e.callback.OnRecommendations(recs)
}

func (e *Engine) broadcastComparison() {
	c, err := e.Comparison()
	if err != nil {
		return
	}
	if !c.Result.HasCoverage() {
		e.logger.Debug().
			Str("profile_id", c.ProfileID).
			Int("extra", c.Result.ExtraEntries).
			Msg("load profile does not overlap the tariff range")
	}
	e.callback.OnComparison(c)
}
