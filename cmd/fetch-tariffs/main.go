// fetch-tariffs downloads dynamic tariff records for a date range from the
// tariff API in chunks and writes them as one JSON payload that
// tariff-compare can read with -tariff.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tariff_dashboard/internal/config"
	"tariff_dashboard/internal/tariff"
)

type fetcher interface {
	Fetch(ctx context.Context, q tariff.Query) ([]tariff.Record, error)
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	startDate := flag.String("start", "", "start date (YYYY-MM-DD), defaults to today")
	endDate := flag.String("end", "", "end date (YYYY-MM-DD, exclusive), defaults to start + 1 day")
	tariffType := flag.String("type", "", "tariff type (integrated, grid, grid_usage, electricity)")
	chunkDays := flag.Int("chunk-days", 7, "days per API request")
	pause := flag.Duration("pause", time.Second, "pause between requests")
	output := flag.String("output", "tariffs.json", "output JSON path")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("loading timezone")
	}
	if *tariffType == "" {
		*tariffType = cfg.Tariff.Type
	}

	start, end, err := parseRange(*startDate, *endDate, time.Now().In(loc), loc)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid date range")
	}

	log.Info().
		Str("start", start.Format("2006-01-02")).
		Str("end", end.Format("2006-01-02")).
		Str("tariff_type", *tariffType).
		Msg("fetching tariffs")

	client := tariff.NewClient(cfg.Tariff.APIURL,
		tariff.WithHTTPClient(&http.Client{Timeout: cfg.Tariff.Timeout}),
		tariff.WithLogger(log.Logger),
		tariff.WithRetry(cfg.Tariff.MaxRetries, cfg.Tariff.Backoff),
	)

	records, err := fetchRange(context.Background(), client, start, end, *chunkDays, *tariffType, *pause)
	if err != nil {
		log.Fatal().Err(err).Msg("fetching tariffs")
	}

	data, err := tariff.EncodePayload(records)
	if err != nil {
		log.Fatal().Err(err).Msg("encoding tariffs")
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("writing output")
	}

	log.Info().Int("records", len(records)).Str("file", *output).Msg("tariffs written")
}

// parseRange resolves the -start and -end flags. Both are calendar days in
// loc; end is exclusive.
func parseRange(startDate, endDate string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if startDate != "" {
		var err error
		start, err = time.ParseInLocation("2006-01-02", startDate, loc)
		if err != nil {
			return start, start, fmt.Errorf("start date: %w", err)
		}
	}

	end := start.AddDate(0, 0, 1)
	if endDate != "" {
		var err error
		end, err = time.ParseInLocation("2006-01-02", endDate, loc)
		if err != nil {
			return start, end, fmt.Errorf("end date: %w", err)
		}
	}
	if !start.Before(end) {
		return start, end, fmt.Errorf("end %s is not after start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}
	return start, end, nil
}

// fetchRange requests [start, end) in chunks of chunkDays and merges the
// results, dropping records repeated at chunk borders.
func fetchRange(ctx context.Context, f fetcher, start, end time.Time, chunkDays int, tariffType string, pause time.Duration) ([]tariff.Record, error) {
	if chunkDays < 1 {
		chunkDays = 1
	}

	var chunks [][]tariff.Record
	for chunkStart := start; chunkStart.Before(end); {
		chunkEnd := chunkStart.AddDate(0, 0, chunkDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		log.Info().
			Str("from", chunkStart.Format("2006-01-02")).
			Str("to", chunkEnd.Format("2006-01-02")).
			Msg("fetching chunk")

		records, err := f.Fetch(ctx, tariff.Query{Start: chunkStart, End: chunkEnd, TariffType: tariffType})
		if err != nil {
			return nil, fmt.Errorf("fetching %s to %s: %w", chunkStart.Format("2006-01-02"), chunkEnd.Format("2006-01-02"), err)
		}
		chunks = append(chunks, records)

		chunkStart = chunkEnd
		if pause > 0 && chunkStart.Before(end) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return tariff.MergeRecords(chunks...), nil
}
