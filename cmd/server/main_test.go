package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tariff_dashboard/internal/analysis"
	"tariff_dashboard/internal/config"
	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/store"
	"tariff_dashboard/internal/tariff"
)

type nopCallback struct{}

func (nopCallback) OnSlots(dashboard.SlotsUpdate)               {}
func (nopCallback) OnProfile(dashboard.ProfileUpdate)           {}
func (nopCallback) OnRecommendations([]analysis.Recommendation) {}
func (nopCallback) OnComparison(dashboard.Comparison)           {}

func TestDayQuery(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)

	q := dayQuery(time.Date(2024, 11, 21, 17, 42, 0, 0, zurich), tariff.TypeGrid)
	assert.Equal(t, time.Date(2024, 11, 21, 0, 0, 0, 0, zurich), q.Start)
	assert.Equal(t, time.Date(2024, 11, 22, 0, 0, 0, 0, zurich), q.End)
	assert.Equal(t, tariff.TypeGrid, q.TariffType)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("chatty"))
}

func TestNewSource(t *testing.T) {
	cfg := config.Default()
	assert.NotNil(t, newSource(cfg, zerolog.Nop()))

	cfg.Tariff.Demo = true
	assert.Nil(t, newSource(cfg, zerolog.Nop()))
}

func TestLoadToday_FallsBackToDemo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Tariff.APIURL = srv.URL
	engine := dashboard.New(store.New(), nopCallback{}, dashboard.Options{
		Source: newSource(cfg, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})

	now := time.Date(2024, 11, 21, 9, 0, 0, 0, time.UTC)
	loadToday(context.Background(), engine, cfg, now)

	slots, tariffType := engine.Slots()
	require.Len(t, slots, tariff.DemoSlots)
	assert.Equal(t, tariff.TypeIntegrated, tariffType)
	assert.True(t, slots[0].Start.Equal(time.Date(2024, 11, 21, 0, 0, 0, 0, time.UTC)))
}

func TestLoadToday_API(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prices":[{"start_timestamp":"2024-11-21T10:00:00+01:00","end_timestamp":"2024-11-21T10:15:00+01:00","integrated":[{"unit":"CHF_kWh","value":0.2311}]}]}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Tariff.APIURL = srv.URL
	engine := dashboard.New(store.New(), nopCallback{}, dashboard.Options{
		Source: newSource(cfg, zerolog.Nop()),
		Logger: zerolog.Nop(),
	})

	loadToday(context.Background(), engine, cfg, time.Date(2024, 11, 21, 9, 0, 0, 0, time.UTC))

	slots, _ := engine.Slots()
	require.Len(t, slots, 1)
	assert.InDelta(t, 0.2311, slots[0].Price, 1e-9)
	assert.Equal(t, "CHF/kWh", slots[0].Unit)
}

func TestLoadProfileFile(t *testing.T) {
	engine := dashboard.New(store.New(), nopCallback{}, dashboard.Options{
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	})

	require.NoError(t, loadProfileFile(engine, "../../testdata/load_profile_sample.csv"))
	p, ok := engine.Profile()
	require.True(t, ok)
	assert.Equal(t, 96, p.Profile.Meta.RowCount)

	assert.Error(t, loadProfileFile(engine, "../../testdata/missing.csv"))
}
