// Package httpapi exposes the dashboard engine over HTTP.
package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/metrics"
)

// MaxUploadBytes limits load-profile uploads.
const MaxUploadBytes = 16 << 20

// API serves the REST endpoints of one dashboard session.
type API struct {
	engine       *dashboard.Engine
	ws           http.Handler
	logger       zerolog.Logger
	location     *time.Location
	fetchTimeout time.Duration
	now          func() time.Time
}

// New creates the API. ws serves /ws and may be nil.
func New(engine *dashboard.Engine, ws http.Handler, logger zerolog.Logger, loc *time.Location) *API {
	if loc == nil {
		loc = time.Local
	}
	return &API{
		engine:       engine,
		ws:           ws,
		logger:       logger,
		location:     loc,
		fetchTimeout: 30 * time.Second,
		now:          time.Now,
	}
}

func (a *API) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/tariffs", a.loadTariff).Methods(http.MethodPost)
	api.HandleFunc("/slots", a.listSlots).Methods(http.MethodGet)
	api.HandleFunc("/slots/at", a.slotAt).Methods(http.MethodGet)
	api.HandleFunc("/profile", a.uploadProfile).Methods(http.MethodPost)
	api.HandleFunc("/profile", a.getProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", a.clearProfile).Methods(http.MethodDelete)
	api.HandleFunc("/appliances", a.listAppliances).Methods(http.MethodGet)
	api.HandleFunc("/recommendations", a.recommendations).Methods(http.MethodGet)
	api.HandleFunc("/comparison", a.comparison).Methods(http.MethodGet)
	api.HandleFunc("/export.{format:xlsx|pdf}", a.export).Methods(http.MethodGet)

	if a.ws != nil {
		r.Handle("/ws", a.ws)
	}
	return r
}

// Handler wraps the router with CORS and writes an access log to accessLog.
func (a *API) Handler(accessLog io.Writer) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.LoggingHandler(accessLog, cors(a.Router()))
}
