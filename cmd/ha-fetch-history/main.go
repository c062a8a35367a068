// ha-fetch-history downloads the state history of a Home Assistant power
// sensor and writes it as an entity_id,state,last_changed CSV, the export
// format the dashboard accepts as a load profile. Existing output is resumed.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tariff_dashboard/internal/ingest"
	"tariff_dashboard/internal/profile"
)

type record struct {
	entityID string
	state    string
	changed  time.Time
}

func main() {
	urlFlag := flag.String("url", "", "Home Assistant base URL (overrides HA_URL)")
	tokenFlag := flag.String("token", "", "Long-lived access token (overrides HA_TOKEN)")
	entityFlag := flag.String("entity", "", "power sensor entity ID (overrides HA_ENTITY)")
	days := flag.Int("days", 7, "Days to fetch on first run (ignored if output file has data)")
	output := flag.String("output", "input/ha-power.csv", "Output CSV path")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	loadDotEnv(".env")

	haURL := resolveFlag(*urlFlag, "HA_URL")
	haToken := resolveFlag(*tokenFlag, "HA_TOKEN")
	entityID := resolveFlag(*entityFlag, "HA_ENTITY")
	if haURL == "" {
		log.Fatal().Msg("HA_URL not set, use -url or set HA_URL in .env")
	}
	if haToken == "" {
		log.Fatal().Msg("HA_TOKEN not set, use -token or set HA_TOKEN in .env")
	}
	if entityID == "" {
		log.Fatal().Msg("HA_ENTITY not set, use -entity or set HA_ENTITY in .env")
	}

	existing, latest := loadExistingRecords(*output)

	var startTime time.Time
	if !latest.IsZero() {
		startTime = latest.Add(-1 * time.Minute)
		log.Info().Time("from", startTime).Msg("resuming from latest state minus 1min overlap")
	} else {
		startTime = time.Now().AddDate(0, 0, -*days)
		log.Info().Int("days", *days).Time("from", startTime).Msg("first run")
	}

	f := &historyFetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(haURL, "/"),
		token:   haToken,
		backoff: time.Second,
	}

	ctx := context.Background()
	endTime := time.Now()
	var fetched []record
	for start := startTime; start.Before(endTime); start = start.Add(24 * time.Hour) {
		end := start.Add(24 * time.Hour)
		if end.After(endTime) {
			end = endTime
		}

		dayRecords, err := f.fetchDay(ctx, entityID, start, end)
		if err != nil {
			log.Fatal().Err(err).Str("day", start.Format("2006-01-02")).Msg("fetching history")
		}
		fetched = append(fetched, dayRecords...)
		log.Info().Str("day", start.Format("2006-01-02")).Int("records", len(dayRecords)).Msg("fetched")

		if end.Before(endTime) {
			time.Sleep(500 * time.Millisecond)
		}
	}

	merged := mergeRecords(existing, fetched)

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatal().Err(err).Msg("creating output directory")
	}
	if err := writeCSV(*output, merged); err != nil {
		log.Fatal().Err(err).Msg("writing CSV")
	}

	meta, err := summarize(*output)
	if err != nil {
		log.Fatal().Err(err).Msg("written CSV is not a valid load profile")
	}
	log.Info().
		Int("records", len(merged)).
		Int("previous", len(existing)).
		Int("fetched", len(fetched)).
		Float64("total_kwh", meta.TotalEnergyKWh).
		Str("file", *output).
		Msg("history written")
}

// loadDotEnv reads a .env file and sets variables not already in the environment.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"`)
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, val)
		}
	}
}

func resolveFlag(flagVal, envKey string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(envKey)
}

// loadExistingRecords reads a previous output file and returns its records
// and the latest change time. A missing or unreadable file yields nothing.
func loadExistingRecords(path string) ([]record, time.Time) {
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil {
		return nil, time.Time{}
	}

	var records []record
	var latest time.Time
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(row) < 3 {
			continue
		}
		changed, err := time.Parse(time.RFC3339Nano, row[2])
		if err != nil {
			continue
		}
		records = append(records, record{entityID: row[0], state: row[1], changed: changed})
		if changed.After(latest) {
			latest = changed
		}
	}
	return records, latest
}

type historyFetcher struct {
	client  *http.Client
	baseURL string
	token   string
	backoff time.Duration
}

func (f *historyFetcher) fetchDay(ctx context.Context, entityID string, start, end time.Time) ([]record, error) {
	target := fmt.Sprintf("%s/api/history/period/%s?%s",
		f.baseURL,
		url.PathEscape(start.UTC().Format(time.RFC3339)),
		url.Values{
			"end_time":         {end.UTC().Format(time.RFC3339)},
			"filter_entity_id": {entityID},
		}.Encode()+"&minimal_response&no_attributes",
	)

	var body []byte
	var err error
	for attempt := range 5 {
		body, err = f.doRequest(ctx, target)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return nil, err
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * f.backoff
		log.Warn().Err(err).Dur("wait", wait).Msg("retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("after 5 attempts: %w", err)
	}

	return parseHistoryResponse(body)
}

type apiError struct {
	statusCode int
	message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.message)
}

func isRetryable(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		// network errors
		return true
	}
	return ae.statusCode == http.StatusTooManyRequests || ae.statusCode >= 500
}

func (f *historyFetcher) doRequest(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &apiError{statusCode: resp.StatusCode, message: "authentication failed, check HA_TOKEN"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{statusCode: resp.StatusCode, message: string(body)}
	}
	return body, nil
}

// parseHistoryResponse parses the history API response: one array per
// entity. With minimal_response only the first entry carries entity_id.
// Non-numeric states are dropped.
func parseHistoryResponse(data []byte) ([]record, error) {
	var outer [][]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	var records []record
	for _, entityHistory := range outer {
		var currentEntityID string
		for _, raw := range entityHistory {
			var entry struct {
				EntityID    string `json:"entity_id"`
				State       string `json:"state"`
				LastChanged string `json:"last_changed"`
			}
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if entry.EntityID != "" {
				currentEntityID = entry.EntityID
			}
			if currentEntityID == "" {
				continue
			}
			if _, err := strconv.ParseFloat(entry.State, 64); err != nil {
				continue
			}

			changed, err := time.Parse(time.RFC3339Nano, entry.LastChanged)
			if err != nil {
				continue
			}

			records = append(records, record{
				entityID: currentEntityID,
				state:    entry.State,
				changed:  changed.UTC(),
			})
		}
	}
	return records, nil
}

func mergeRecords(existing, fetched []record) []record {
	type key struct {
		entityID string
		unixNano int64
	}

	seen := make(map[key]record, len(existing)+len(fetched))
	for _, r := range existing {
		seen[key{r.entityID, r.changed.UnixNano()}] = r
	}
	for _, r := range fetched {
		// fetched overwrites existing on conflict
		seen[key{r.entityID, r.changed.UnixNano()}] = r
	}

	merged := make([]record, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].entityID != merged[j].entityID {
			return merged[i].entityID < merged[j].entityID
		}
		return merged[i].changed.Before(merged[j].changed)
	})
	return merged
}

func writeCSV(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"entity_id", "state", "last_changed"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write([]string{r.entityID, r.state, r.changed.Format("2006-01-02T15:04:05.000Z07:00")}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// summarize reads path back through the load profile ingestion.
func summarize(path string) (profile.Meta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return profile.Meta{}, err
	}
	table, err := ingest.Load(raw, ingest.Options{Location: time.UTC})
	if err != nil {
		return profile.Meta{}, err
	}
	return profile.Normalize(table).Meta, nil
}
