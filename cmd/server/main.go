package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tariff_dashboard/internal/config"
	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/httpapi"
	"tariff_dashboard/internal/metrics"
	"tariff_dashboard/internal/store"
	"tariff_dashboard/internal/tariff"
	"tariff_dashboard/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	frontendDir := flag.String("frontend-dir", "frontend/build", "directory containing frontend build")
	demo := flag.Bool("demo", false, "serve generated demo prices instead of calling the tariff API")
	profilePath := flag.String("profile", "", "load profile CSV to load at startup")
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *demo {
		cfg.Tariff.Demo = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.LogLevel))

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("loading timezone")
	}

	metrics.Init()

	// Set up WebSocket hub and dashboard engine
	hub := ws.NewHub(log.Logger)
	bridge := ws.NewBridge(hub, log.Logger)
	engine := dashboard.New(store.New(), bridge, dashboard.Options{
		Source:       newSource(cfg, log.Logger),
		Appliances:   cfg.Appliances,
		BaselineRate: cfg.BaselineRate,
		Location:     loc,
		DemoSeed:     uint64(time.Now().UnixNano()),
		Logger:       log.Logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Tariff.Timeout)
	loadToday(ctx, engine, cfg, time.Now().In(loc))
	cancel()

	if *profilePath != "" {
		if err := loadProfileFile(engine, *profilePath); err != nil {
			log.Warn().Err(err).Str("file", *profilePath).Msg("startup profile not loaded")
		}
	}

	api := httpapi.New(engine, ws.NewHandler(hub, engine, log.Logger, loc), log.Logger, loc)
	router := api.Router()

	// Serve frontend static files
	if _, err := os.Stat(*frontendDir); err == nil {
		log.Info().Str("dir", *frontendDir).Msg("serving frontend")
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(*frontendDir)))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("tariff_type", cfg.Tariff.Type).
		Bool("demo", cfg.Tariff.Demo).
		Float64("baseline_rate", cfg.BaselineRate).
		Msg("server starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// newSource returns the tariff API client, or nil in demo mode.
func newSource(cfg config.Config, logger zerolog.Logger) dashboard.TariffSource {
	if cfg.Tariff.Demo {
		return nil
	}
	return tariff.NewClient(cfg.Tariff.APIURL,
		tariff.WithHTTPClient(&http.Client{Timeout: cfg.Tariff.Timeout}),
		tariff.WithLogger(logger),
		tariff.WithCacheTTL(cfg.Tariff.CacheTTL),
		tariff.WithRetry(cfg.Tariff.MaxRetries, cfg.Tariff.Backoff),
	)
}

// dayQuery covers the calendar day of now in its location.
func dayQuery(now time.Time, tariffType string) tariff.Query {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return tariff.Query{Start: start, End: start.AddDate(0, 0, 1), TariffType: tariffType}
}

// loadToday fills the engine with today's prices. A failed fetch falls back
// to demo prices so the dashboard is never empty.
func loadToday(ctx context.Context, engine *dashboard.Engine, cfg config.Config, now time.Time) {
	q := dayQuery(now, cfg.Tariff.Type)
	if !cfg.Tariff.Demo {
		err := engine.LoadTariff(ctx, q)
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("initial tariff fetch failed, using demo prices")
	}
	if err := engine.LoadDemo(q.Start, q.TariffType); err != nil {
		log.Error().Err(err).Msg("loading demo prices")
	}
}

func loadProfileFile(engine *dashboard.Engine, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = engine.UploadProfile(path, raw)
	return err
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
