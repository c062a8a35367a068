package tariff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"tariff_dashboard/internal/cache"
	"tariff_dashboard/internal/metrics"
	"tariff_dashboard/internal/model"
)

// DefaultAPIURL is the public dynamic-price endpoint of CKW.
const DefaultAPIURL = "https://e-ckw-public-data.de-c1.eu1.cloudhub.io/api/v1/netzinformationen/energie/dynamische-preise"

// ErrUnavailable is returned while the circuit breaker rejects calls.
var ErrUnavailable = errors.New("tariff API temporarily unavailable")

// StatusError is a non-success HTTP response from the tariff API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tariff API returned %d: %s", e.Code, e.Body)
}

// Query selects a time range and tariff type.
type Query struct {
	Start      time.Time
	End        time.Time
	TariffType string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if !q.Start.IsZero() {
		v.Set("start_timestamp", q.Start.UTC().Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		v.Set("end_timestamp", q.End.UTC().Format(time.RFC3339))
	}
	if q.TariffType != "" {
		v.Set("tariff_type", q.TariffType)
	}
	return v
}

// Client fetches tariff records over HTTP. Rate-limited responses are retried
// with a linearly growing wait; repeated failures open a circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      *cache.Cache[[]Record]
	logger     zerolog.Logger
	maxRetries int
	backoff    time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithCacheTTL caches successful responses per query for ttl.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) { c.cache = cache.New[[]Record](ttl, metrics.CacheObserver{}) }
}

// WithRetry sets how often a 429 is retried and the base wait between tries.
func WithRetry(maxRetries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zerolog.Nop(),
		maxRetries: 5,
		backoff:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.New[[]Record](0, nil)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tariff-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return c
}

// Fetch returns the raw records for q.
func (c *Client) Fetch(ctx context.Context, q Query) ([]Record, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing tariff API URL: %w", err)
	}
	u.RawQuery = q.values().Encode()
	key := u.String()

	if records, ok := c.cache.Get(key); ok {
		return records, nil
	}

	started := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchWithRetry(ctx, key)
	})
	if err != nil {
		metrics.ObserveTariffFetch(metrics.ResultError, time.Since(started))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}

	records := out.([]Record)
	result := metrics.ResultSuccess
	if len(records) == 0 {
		result = metrics.ResultEmpty
	}
	metrics.ObserveTariffFetch(result, time.Since(started))

	c.logger.Debug().
		Int("records", len(records)).
		Dur("took", time.Since(started)).
		Msg("tariff records fetched")

	c.cache.Set(key, records)
	return records, nil
}

// Slots fetches q and normalizes the records for q.TariffType.
func (c *Client) Slots(ctx context.Context, q Query) ([]model.TariffSlot, error) {
	records, err := c.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return BuildSlots(records, q.TariffType), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, target string) ([]Record, error) {
	for attempt := range c.maxRetries + 1 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt == c.maxRetries {
				break
			}
			wait := time.Duration(attempt+1) * c.backoff
			c.logger.Info().
				Dur("wait", wait).
				Int("attempt", attempt+1).
				Int("max", c.maxRetries).
				Msg("rate limited")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		return DecodePayload(body)
	}
	return nil, fmt.Errorf("exhausted %d retries", c.maxRetries)
}
