// Package config loads the dashboard configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/tariff"
)

// TariffConfig configures the tariff source.
type TariffConfig struct {
	APIURL     string        `yaml:"api_url"`
	Type       string        `yaml:"type"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	// Demo serves generated prices instead of calling the API.
	Demo bool `yaml:"demo"`
}

// Config defines the dashboard configuration.
type Config struct {
	ListenAddr   string            `yaml:"listen_addr"`
	LogLevel     string            `yaml:"log_level"`
	Timezone     string            `yaml:"timezone"`
	BaselineRate float64           `yaml:"baseline_rate"`
	Tariff       TariffConfig      `yaml:"tariff"`
	Appliances   []model.Appliance `yaml:"appliances"`
}

// DefaultAppliances is the catalog shown when the config names none.
func DefaultAppliances() []model.Appliance {
	return []model.Appliance{
		{ID: "ev", Name: "E-Auto laden", Description: "Ladefenster fuer eine typische 7.4 kW Wallbox (4 Stunden)", DurationMinutes: 240},
		{ID: "dryer", Name: "Tumbler", Description: "Standardprogramm Trocken (90 Minuten)", DurationMinutes: 90},
		{ID: "heat_pump", Name: "Waermepumpe / Heizungsschub", Description: "Zusaetzlicher Heizzyklus (120 Minuten)", DurationMinutes: 120},
		{ID: "water", Name: "Boiler / Warmwasser", Description: "Aufheizen des Boilers (60 Minuten)", DurationMinutes: 60},
	}
}

func Default() Config {
	return Config{
		ListenAddr:   ":8080",
		LogLevel:     "info",
		Timezone:     "Europe/Zurich",
		BaselineRate: 0.25,
		Tariff: TariffConfig{
			APIURL:     tariff.DefaultAPIURL,
			Type:       tariff.TypeIntegrated,
			Timeout:    30 * time.Second,
			CacheTTL:   5 * time.Minute,
			MaxRetries: 5,
			Backoff:    5 * time.Second,
		},
		Appliances: DefaultAppliances(),
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.Tariff.APIURL = getenvDefault("TARIFF_API_URL", cfg.Tariff.APIURL)
	cfg.Tariff.Type = getenvDefault("TARIFF_TYPE", cfg.Tariff.Type)
	cfg.Tariff.CacheTTL = getenvDurationDefault("TARIFF_CACHE_TTL", cfg.Tariff.CacheTTL)
	cfg.BaselineRate = getenvFloatDefault("BASELINE_RATE", cfg.BaselineRate)
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)

	if len(cfg.Appliances) == 0 {
		cfg.Appliances = DefaultAppliances()
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.BaselineRate < 0 {
		errs = append(errs, fmt.Errorf("baseline_rate must not be negative, got %g", c.BaselineRate))
	}
	if c.Tariff.Type == "" {
		errs = append(errs, errors.New("tariff.type is required"))
	}
	for _, a := range c.Appliances {
		if a.ID == "" || a.DurationMinutes <= 0 {
			errs = append(errs, fmt.Errorf("appliance %q needs an id and a positive duration", a.Name))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone; empty means the process's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDurationDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
