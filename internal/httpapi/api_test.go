package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tariff_dashboard/internal/analysis"
	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/metrics"
	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/store"
	"tariff_dashboard/internal/tariff"
	"tariff_dashboard/internal/ws"
)

const profileCSV = `Zeitpunkt;Verbrauch [kWh]
21.11.2024 10:00;1,0
21.11.2024 10:15;2,0
21.11.2024 10:30;1,0
`

var start = time.Date(2024, 11, 21, 10, 0, 0, 0, time.UTC)

type nopCallback struct{}

func (nopCallback) OnSlots(dashboard.SlotsUpdate)               {}
func (nopCallback) OnProfile(dashboard.ProfileUpdate)           {}
func (nopCallback) OnRecommendations([]analysis.Recommendation) {}
func (nopCallback) OnComparison(dashboard.Comparison)           {}

type fakeSource struct {
	slots []model.TariffSlot
	err   error
	last  tariff.Query
}

func (f *fakeSource) Slots(_ context.Context, q tariff.Query) ([]model.TariffSlot, error) {
	f.last = q
	return f.slots, f.err
}

func workedSlots() []model.TariffSlot {
	prices := []float64{0.20, 0.10, 0.30}
	slots := make([]model.TariffSlot, len(prices))
	for i, p := range prices {
		s := start.Add(time.Duration(i) * model.Interval)
		slots[i] = model.TariffSlot{Start: s, End: s.Add(model.Interval), Price: p, Unit: "CHF/kWh"}
	}
	return slots
}

func newTestAPI(src dashboard.TariffSource) (*API, *dashboard.Engine) {
	engine := dashboard.New(store.New(), nopCallback{}, dashboard.Options{
		Source:       src,
		Appliances:   []model.Appliance{{ID: "water", Name: "Boiler", DurationMinutes: 30}},
		BaselineRate: 0.25,
		Location:     time.UTC,
		Logger:       zerolog.Nop(),
	})
	api := New(engine, nil, zerolog.Nop(), time.UTC)
	api.now = func() time.Time { return start }
	return api, engine
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	api, engine := newTestAPI(nil)
	rec := do(t, api.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","slots":0,"profile":false}`, rec.Body.String())

	require.NoError(t, engine.SetSlots(workedSlots(), tariff.TypeIntegrated))
	_, err := engine.UploadProfile("p.csv", []byte(profileCSV))
	require.NoError(t, err)

	rec = do(t, api.Router(), http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"ok","slots":3,"profile":true}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.Init()
	api, _ := newTestAPI(nil)
	router := api.Router()

	rec := do(t, router, http.MethodPost, "/api/profile?name=p.csv", strings.NewReader(profileCSV))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tariff_dashboard_profile_uploads_total")
}

func TestLoadTariff_Demo(t *testing.T) {
	api, _ := newTestAPI(nil)

	body := `{"start_timestamp":"2024-11-21T00:00:00Z","tariff_type":"electricity","demo":true}`
	rec := do(t, api.Router(), http.MethodPost, "/api/tariffs", strings.NewReader(body))

	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[ws.TariffSlotsPayload](t, rec)
	assert.Equal(t, "electricity", p.TariffType)
	assert.Len(t, p.Slots, tariff.DemoSlots)
	assert.Equal(t, "2024-11-22T00:00:00Z", p.TimeRange.End)
}

func TestLoadTariff_Source(t *testing.T) {
	src := &fakeSource{slots: workedSlots()}
	api, _ := newTestAPI(src)

	body := `{"start_timestamp":"2024-11-21 00:00","end_timestamp":"2024-11-22 00:00"}`
	rec := do(t, api.Router(), http.MethodPost, "/api/tariffs", strings.NewReader(body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tariff.TypeIntegrated, src.last.TariffType)
	assert.Equal(t, time.Date(2024, 11, 21, 0, 0, 0, 0, time.UTC), src.last.Start)
	assert.Equal(t, time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC), src.last.End)

	p := decode[ws.TariffSlotsPayload](t, rec)
	assert.Len(t, p.Slots, 3)
}

func TestLoadTariff_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    *fakeSource
		body   string
		status int
	}{
		{"source failure", &fakeSource{err: errors.New("boom")}, `{}`, http.StatusBadGateway},
		{"no slots", &fakeSource{}, `{}`, http.StatusNotFound},
		{"invalid start", &fakeSource{}, `{"start_timestamp":"morgen"}`, http.StatusBadRequest},
		{"invalid json", &fakeSource{}, `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := newTestAPI(tt.src)
			rec := do(t, api.Router(), http.MethodPost, "/api/tariffs", strings.NewReader(tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rec).Error)
		})
	}
}

// clearingCallback empties the store while the engine is still publishing,
// like a second session loading an empty range at the same moment.
type clearingCallback struct {
	nopCallback
	store *store.Store
}

func (c clearingCallback) OnRecommendations(recs []analysis.Recommendation) {
	if recs != nil {
		c.store.SetSlots(nil, tariff.TypeIntegrated)
	}
}

func TestLoadTariff_SlotsReplacedBeforeResponse(t *testing.T) {
	st := store.New()
	engine := dashboard.New(st, clearingCallback{store: st}, dashboard.Options{
		Source:       &fakeSource{slots: workedSlots()},
		Appliances:   []model.Appliance{{ID: "water", DurationMinutes: 30}},
		BaselineRate: 0.25,
		Location:     time.UTC,
		Logger:       zerolog.Nop(),
	})
	api := New(engine, nil, zerolog.Nop(), time.UTC)

	var rec *httptest.ResponseRecorder
	require.NotPanics(t, func() {
		rec = do(t, api.Router(), http.MethodPost, "/api/tariffs", strings.NewReader(`{}`))
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, dashboard.ErrNoSlots.Error(), decode[errorResponse](t, rec).Error)
}

func TestListSlots(t *testing.T) {
	api, engine := newTestAPI(nil)
	router := api.Router()

	rec := do(t, router, http.MethodGet, "/api/slots", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, engine.SetSlots(workedSlots(), "integrated"))
	rec = do(t, router, http.MethodGet, "/api/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "energy_kwh")

	_, err := engine.UploadProfile("p.csv", []byte(profileCSV))
	require.NoError(t, err)

	rec = do(t, router, http.MethodGet, "/api/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]slotRow](t, rec)
	require.Len(t, rows, 3)
	assert.Equal(t, "2024-11-21T10:15:00Z", rows[1].Start)
	require.NotNil(t, rows[1].EnergyKWh)
	assert.InDelta(t, 2.0, *rows[1].EnergyKWh, 1e-9)
	assert.InDelta(t, 0.2, *rows[1].Cost, 1e-9)
}

func TestListSlots_Range(t *testing.T) {
	api, engine := newTestAPI(nil)
	router := api.Router()
	require.NoError(t, engine.SetSlots(workedSlots(), tariff.TypeIntegrated))

	rec := do(t, router, http.MethodGet, "/api/slots?from=2024-11-21T10:15:00Z&to=2024-11-21T10:30:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]slotRow](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-11-21T10:15:00Z", rows[0].Start)

	rec = do(t, router, http.MethodGet, "/api/slots?from=21.11.2024%2010:15", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]slotRow](t, rec), 2)

	rec = do(t, router, http.MethodGet, "/api/slots?to=2024-11-21T10:15:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]slotRow](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/api/slots?from=2024-11-22T00:00:00Z", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/slots?from=gestern", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, router, http.MethodGet, "/api/slots?to=morgen", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlotAt(t *testing.T) {
	api, engine := newTestAPI(nil)
	router := api.Router()

	rec := do(t, router, http.MethodGet, "/api/slots/at?t=2024-11-21T10:20:00Z", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, engine.SetSlots(workedSlots(), tariff.TypeIntegrated))
	_, err := engine.UploadProfile("p.csv", []byte(profileCSV))
	require.NoError(t, err)

	rec = do(t, router, http.MethodGet, "/api/slots/at?t=2024-11-21T10:20:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	row := decode[slotRow](t, rec)
	assert.Equal(t, "2024-11-21T10:15:00Z", row.Start)
	assert.InDelta(t, 0.10, row.Price, 1e-12)
	require.NotNil(t, row.EnergyKWh)
	assert.InDelta(t, 2.0, *row.EnergyKWh, 1e-9)

	rec = do(t, router, http.MethodGet, "/api/slots/at?t=2024-11-21T10:45:00Z", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/slots/at", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadProfile_Multipart(t *testing.T) {
	api, engine := newTestAPI(nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "verbrauch.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(profileCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/profile", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[ws.ProfilePayload](t, rec)
	assert.Equal(t, "verbrauch.csv", p.Name)
	assert.Equal(t, 3, p.RowCount)
	assert.InDelta(t, 4.0, p.TotalEnergyKWh, 1e-9)
	assert.InDelta(t, 45, p.SpanMinutes, 1e-9)
	assert.NotEmpty(t, p.ID)

	loaded, ok := engine.Profile()
	require.True(t, ok)
	assert.Equal(t, p.ID, loaded.ID)
}

func TestUploadProfile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty", "", http.StatusBadRequest},
		{"single column", "zeitpunkt\n2024-11-21T00:00:00Z\n", http.StatusUnprocessableEntity},
		{"no data", "timestamp,value\nyesterday,1.0\n", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, engine := newTestAPI(nil)
			rec := do(t, api.Router(), http.MethodPost, "/api/profile", strings.NewReader(tt.body))
			assert.Equal(t, tt.status, rec.Code)
			_, ok := engine.Profile()
			assert.False(t, ok)
		})
	}
}

func TestProfileGetAndClear(t *testing.T) {
	api, _ := newTestAPI(nil)
	router := api.Router()

	rec := do(t, router, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/profile?name=a.csv", strings.NewReader(profileCSV))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a.csv", decode[ws.ProfilePayload](t, rec).Name)

	rec = do(t, router, http.MethodDelete, "/api/profile", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppliancesAndRecommendations(t *testing.T) {
	api, engine := newTestAPI(nil)
	router := api.Router()

	rec := do(t, router, http.MethodGet, "/api/appliances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Appliance](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/api/recommendations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, engine.SetSlots(workedSlots(), "integrated"))
	rec = do(t, router, http.MethodGet, "/api/recommendations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	recs := decode[[]ws.RecommendationPayload](t, rec)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Found)
	assert.Equal(t, "2024-11-21T10:00:00Z", recs[0].Start)
	assert.Equal(t, "2024-11-21T10:30:00Z", recs[0].End)
	assert.InDelta(t, 0.15, recs[0].AveragePrice, 1e-9)
}

func TestComparison(t *testing.T) {
	api, engine := newTestAPI(nil)
	router := api.Router()
	require.NoError(t, engine.SetSlots(workedSlots(), "integrated"))

	rec := do(t, router, http.MethodGet, "/api/comparison", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := engine.UploadProfile("p.csv", []byte(profileCSV))
	require.NoError(t, err)

	rec = do(t, router, http.MethodGet, "/api/comparison", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[ws.ComparisonPayload](t, rec)
	assert.InDelta(t, 0.70, c.DynamicCost, 1e-9)
	assert.InDelta(t, 1.00, c.StaticCost, 1e-9)
	assert.InDelta(t, 0.30, c.Savings, 1e-9)
	assert.True(t, c.HasCoverage)

	rec = do(t, router, http.MethodGet, "/api/comparison?baseline=0,5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c = decode[ws.ComparisonPayload](t, rec)
	assert.InDelta(t, 2.0, c.StaticCost, 1e-9)
	// Query rate does not change the session baseline
	assert.InDelta(t, 0.25, engine.Baseline(), 1e-12)

	for _, bad := range []string{"-1", "abc"} {
		rec = do(t, router, http.MethodGet, "/api/comparison?baseline="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestExport(t *testing.T) {
	api, engine := newTestAPI(nil)
	router := api.Router()

	rec := do(t, router, http.MethodGet, "/api/export.xlsx", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, engine.SetSlots(workedSlots(), "grid"))

	rec = do(t, router, http.MethodGet, "/api/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tariff-grid-2024-11-21.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = do(t, router, http.MethodGet, "/api/export.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	rec = do(t, router, http.MethodGet, "/api/export.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CORS(t *testing.T) {
	api, _ := newTestAPI(nil)
	var access bytes.Buffer
	h := api.Handler(&access)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, access.String(), "GET /health")
}

func TestRouter_WebSocketMounted(t *testing.T) {
	engine := dashboard.New(store.New(), nopCallback{}, dashboard.Options{Logger: zerolog.Nop()})
	hub := ws.NewHub(zerolog.Nop())
	api := New(engine, ws.NewHandler(hub, engine, zerolog.Nop(), time.UTC), zerolog.Nop(), time.UTC)

	rec := do(t, api.Router(), http.MethodGet, "/ws", nil)
	// Plain GET without upgrade headers reaches the websocket handler and is rejected there
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
