package tariff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/timestamp"
)

// Tariff types published by the dynamic-price API.
const (
	TypeIntegrated  = "integrated"
	TypeGrid        = "grid"
	TypeGridUsage   = "grid_usage"
	TypeElectricity = "electricity"
)

// fallbackTypes is probed in order when a record has no entry for the
// requested type. The order decides which price is shown.
var fallbackTypes = []string{TypeIntegrated, TypeGrid, TypeGridUsage, TypeElectricity}

// Record is one raw element of the tariff payload. Keys are tariff types
// holding price entry arrays plus the slot's start and end timestamps.
type Record map[string]json.RawMessage

// PriceEntry is one element of a tariff-type array. Value arrives as a
// numeric string but plain JSON numbers are accepted too.
type PriceEntry struct {
	Value decimal.Decimal
	Unit  string
}

// DecodePayload reads a tariff payload. Both a bare array of records and an
// object wrapping it under "prices" or "data" are accepted.
func DecodePayload(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("decoding tariff payload: %w", err)
		}
		for _, key := range []string{"prices", "data"} {
			if inner, ok := wrapper[key]; ok {
				data = inner
				break
			}
		}
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding tariff payload: %w", err)
	}
	return records, nil
}

// EncodePayload writes records wrapped under "prices", the shape DecodePayload
// and the tariff API share.
func EncodePayload(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(map[string][]Record{"prices": records}, "", "  ")
}

// Start returns the record's start timestamp.
func (r Record) Start() (time.Time, bool) {
	return r.time("start_timestamp", "startTimestamp")
}

// MergeRecords concatenates chunks, sorts them by start and keeps the first
// record of every start instant. Records without a start are dropped.
func MergeRecords(chunks ...[]Record) []Record {
	type keyed struct {
		start time.Time
		rec   Record
	}
	var all []keyed
	for _, chunk := range chunks {
		for _, rec := range chunk {
			if start, ok := rec.Start(); ok {
				all = append(all, keyed{start: start, rec: rec})
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].start.Before(all[j].start)
	})

	merged := make([]Record, 0, len(all))
	for i, k := range all {
		if i > 0 && k.start.Equal(all[i-1].start) {
			continue
		}
		merged = append(merged, k.rec)
	}
	return merged
}

// BuildSlots turns raw records into slots sorted by start. Records without a
// usable price entry or valid time bounds are left out; an empty result means
// there is no data for the range and tariff type.
func BuildSlots(records []Record, tariffType string) []model.TariffSlot {
	slots := make([]model.TariffSlot, 0, len(records))
	for _, rec := range records {
		slot, ok := buildSlot(rec, tariffType)
		if !ok {
			continue
		}
		slots = append(slots, slot)
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

func buildSlot(rec Record, tariffType string) (model.TariffSlot, bool) {
	entry, ok := rec.priceEntry(tariffType)
	if !ok {
		return model.TariffSlot{}, false
	}

	start, ok := rec.Start()
	if !ok {
		return model.TariffSlot{}, false
	}
	end, ok := rec.time("end_timestamp", "endTimestamp")
	if !ok || !start.Before(end) {
		return model.TariffSlot{}, false
	}

	unit := model.DefaultUnit
	if entry.Unit != "" {
		unit = strings.ReplaceAll(entry.Unit, "_", "/")
	}

	return model.TariffSlot{
		Start: start,
		End:   end,
		Price: entry.Value.InexactFloat64(),
		Unit:  unit,
	}, true
}

// priceEntry returns the first entry of the requested type, falling back to
// the fixed priority list. A selected entry with an unparseable value voids
// the record rather than moving on to the next type.
func (r Record) priceEntry(tariffType string) (PriceEntry, bool) {
	candidates := fallbackTypes
	if tariffType != "" {
		candidates = append([]string{tariffType}, fallbackTypes...)
	}

	for _, key := range candidates {
		raw, ok := r[key]
		if !ok {
			continue
		}
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil || len(entries) == 0 {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(entries[0]), []byte("null")) {
			continue
		}

		return parseEntry(entries[0])
	}
	return PriceEntry{}, false
}

func parseEntry(raw json.RawMessage) (PriceEntry, bool) {
	var wire struct {
		Value json.RawMessage `json:"value"`
		Unit  string          `json:"unit"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil || len(wire.Value) == 0 {
		return PriceEntry{}, false
	}

	var value decimal.Decimal
	if err := value.UnmarshalJSON(wire.Value); err != nil || string(wire.Value) == "null" {
		return PriceEntry{}, false
	}
	return PriceEntry{Value: value, Unit: wire.Unit}, true
}

func (r Record) time(keys ...string) (time.Time, bool) {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			continue
		}
		return timestamp.Parse(s, time.UTC)
	}
	return time.Time{}, false
}
