package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/timestamp"
)

// MaxStateHold bounds how long a Home Assistant state is assumed to persist
// when no newer state change follows it.
const MaxStateHold = 2 * time.Hour

// HomeAssistantParser parses Home Assistant history exports of a power sensor.
//
// Expected format:
//
//	entity_id,state,last_changed
//	sensor.xxx_power,759.59,2024-11-21T13:00:00.000Z
//
// States are watts recorded on change. Each state holds until the next change
// of the same entity (at most MaxStateHold, otherwise until the end of its
// interval) and the resulting step curve is resampled to one row per
// 15-minute interval carrying the time-weighted mean power in kW.
type HomeAssistantParser struct {
	Options Options
}

func NewHomeAssistantParser(opts Options) *HomeAssistantParser {
	return &HomeAssistantParser{Options: opts}
}

// stateChange is one history line. Unavailable states are kept with
// known=false so they end the hold of the previous state.
type stateChange struct {
	entity string
	at     time.Time
	kw     float64
	known  bool
	line   int
}

func (p *HomeAssistantParser) Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	table := &Table{
		Source:         SourceHomeAssistant,
		Delimiter:      ',',
		HasHeader:      true,
		TimeColumn:     2,
		ValueColumn:    1,
		ValueHeader:    "state",
		ValuesArePower: true,
	}
	var changes []stateChange
	lineNum := 1 // header was line 1

	for {
		lineNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", lineNum, err)
		}

		change, err := p.parseRecord(record, lineNum)
		if err != nil {
			// Skip unparseable rows (e.g. "unavailable" state)
			table.SkippedRows++
			if !change.at.IsZero() {
				changes = append(changes, change)
			}
			continue
		}
		changes = append(changes, change)
	}

	table.Rows = resampleStates(changes)
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: no numeric states in Home Assistant export", ErrNoData)
	}
	return table, nil
}

// IsHomeAssistantHeader reports whether the first line of an export looks like
// a Home Assistant history download.
func IsHomeAssistantHeader(firstLine string) bool {
	return validateHeader(strings.Split(firstLine, ",")) == nil
}

func validateHeader(header []string) error {
	if len(header) < 3 {
		return fmt.Errorf("%w: expected at least 3 columns, got %d", ErrSchema, len(header))
	}

	expected := []string{"entity_id", "state", "last_changed"}
	for i, col := range expected {
		if strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF")) != col {
			return fmt.Errorf("%w: expected column %d to be %q, got %q", ErrSchema, i, col, header[i])
		}
	}

	return nil
}

// parseRecord returns the state change of one line. When only the state is
// unusable the returned change still carries entity and time.
func (p *HomeAssistantParser) parseRecord(record []string, lineNum int) (stateChange, error) {
	if len(record) < 3 {
		return stateChange{}, fmt.Errorf("line %d: expected 3 fields, got %d", lineNum, len(record))
	}

	ts, ok := timestamp.Parse(record[2], p.Options.Location)
	if !ok {
		return stateChange{}, fmt.Errorf("line %d: parsing timestamp %q", lineNum, record[2])
	}
	change := stateChange{entity: strings.TrimSpace(record[0]), at: ts, line: lineNum}

	watts, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return change, fmt.Errorf("line %d: parsing state %q: %w", lineNum, record[1], err)
	}
	if math.IsNaN(watts) || math.IsInf(watts, 0) {
		return change, fmt.Errorf("line %d: state %q is not finite", lineNum, record[1])
	}

	change.kw = watts / 1000
	change.known = true
	return change, nil
}

type powerBucket struct {
	start   time.Time
	kwHours float64
	covered time.Duration
	line    int
}

// resampleStates integrates every entity's step curve over the interval grid
// and returns one row per covered interval, sorted by time.
func resampleStates(changes []stateChange) []Row {
	byEntity := make(map[string][]stateChange)
	var entities []string
	for _, c := range changes {
		if _, ok := byEntity[c.entity]; !ok {
			entities = append(entities, c.entity)
		}
		byEntity[c.entity] = append(byEntity[c.entity], c)
	}

	var rows []Row
	for _, entity := range entities {
		rows = append(rows, resampleEntity(entity, byEntity[entity])...)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Time.Before(rows[j].Time)
	})
	return rows
}

func resampleEntity(entity string, changes []stateChange) []Row {
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].at.Before(changes[j].at)
	})

	var buckets []*powerBucket
	byStart := make(map[int64]*powerBucket)

	for i, c := range changes {
		if !c.known {
			continue
		}
		end := c.at.Truncate(model.Interval).Add(model.Interval)
		if i+1 < len(changes) {
			if next := changes[i+1].at; next.Sub(c.at) <= MaxStateHold {
				end = next
			}
		}

		for from := c.at; from.Before(end); {
			start := from.Truncate(model.Interval)
			to := start.Add(model.Interval)
			if end.Before(to) {
				to = end
			}

			b, ok := byStart[start.UnixMilli()]
			if !ok {
				b = &powerBucket{start: start, line: c.line}
				byStart[start.UnixMilli()] = b
				buckets = append(buckets, b)
			}
			d := to.Sub(from)
			b.kwHours += c.kw * d.Hours()
			b.covered += d
			from = to
		}
	}

	rows := make([]Row, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, Row{
			Time:  b.start,
			Value: b.kwHours / b.covered.Hours(),
			Aux:   []string{entity},
			Line:  b.line,
		})
	}
	return rows
}
