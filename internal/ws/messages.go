package ws

import (
	"encoding/json"
	"errors"
	"time"

	"tariff_dashboard/internal/analysis"
	"tariff_dashboard/internal/dashboard"
	"tariff_dashboard/internal/model"
	"tariff_dashboard/internal/profile"
	"tariff_dashboard/internal/tariff"
	"tariff_dashboard/internal/timestamp"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants
const (
	// Client -> Server
	TypeBaselineSet  = "baseline:set"
	TypeProfileClear = "profile:clear"
	TypeTariffLoad   = "tariff:load"

	// Server -> Client
	TypeTariffSlots           = "tariff:slots"
	TypeProfileLoaded         = "profile:loaded"
	TypeProfileCleared        = "profile:cleared"
	TypeRecommendationsUpdate = "recommendations:update"
	TypeComparisonUpdate      = "comparison:update"
	TypeError                 = "error"
)

// Client -> Server messages

type BaselinePayload struct {
	Rate float64 `json:"rate"`
}

type TariffLoadPayload struct {
	Start      string `json:"start_timestamp"`
	End        string `json:"end_timestamp"`
	TariffType string `json:"tariff_type"`
	Demo       bool   `json:"demo"`
}

// Query converts the payload into a tariff query. Zone-less timestamps are
// read in loc and a missing tariff type selects the integrated tariff.
func (p TariffLoadPayload) Query(loc *time.Location) (tariff.Query, error) {
	q := tariff.Query{TariffType: p.TariffType}
	if q.TariffType == "" {
		q.TariffType = tariff.TypeIntegrated
	}
	if p.Start != "" {
		start, ok := timestamp.Parse(p.Start, loc)
		if !ok {
			return q, errors.New("invalid start_timestamp")
		}
		q.Start = start
	}
	if p.End != "" {
		end, ok := timestamp.Parse(p.End, loc)
		if !ok {
			return q, errors.New("invalid end_timestamp")
		}
		q.End = end
	}
	return q, nil
}

// Server -> Client messages

type TimeRangeInfo struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type SlotPayload struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

type TariffSlotsPayload struct {
	TariffType string        `json:"tariff_type"`
	Slots      []SlotPayload `json:"slots"`
	TimeRange  TimeRangeInfo `json:"time_range"`
}

type ProfilePayload struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	RowCount       int           `json:"row_count"`
	TotalEnergyKWh float64       `json:"total_energy_kwh"`
	TimeRange      TimeRangeInfo `json:"time_range"`
	SpanMinutes    float64       `json:"span_minutes"`
	UnitLabel      string        `json:"unit_label"`
	Notes          []string      `json:"notes"`
}

type RecommendationPayload struct {
	ApplianceID     string  `json:"appliance_id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	DurationMinutes int     `json:"duration_minutes"`
	Found           bool    `json:"found"`
	Start           string  `json:"start,omitempty"`
	End             string  `json:"end,omitempty"`
	AveragePrice    float64 `json:"average_price"`
	Unit            string  `json:"unit,omitempty"`
}

type ComparisonPayload struct {
	ProfileID    string  `json:"profile_id"`
	TariffType   string  `json:"tariff_type"`
	BaselineRate float64 `json:"baseline_rate"`
	HasCoverage  bool    `json:"has_coverage"`

	MatchedCount int `json:"matched_count"`
	MissingCount int `json:"missing_count"`
	ExtraEntries int `json:"extra_entries"`

	MatchedEnergyKWh      float64 `json:"matched_energy_kwh"`
	TotalProfileEnergyKWh float64 `json:"total_profile_energy_kwh"`
	DynamicCost           float64 `json:"dynamic_cost"`
	StaticCost            float64 `json:"static_cost"`
	Savings               float64 `json:"savings"`
	SavingsPercent        float64 `json:"savings_percent"`
	DynamicAveragePrice   float64 `json:"dynamic_average_price"`
	CoverageSlots         float64 `json:"coverage_slots"`
	CoverageEnergy        float64 `json:"coverage_energy"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func TimeRangeFromModel(tr model.TimeRange) TimeRangeInfo {
	return TimeRangeInfo{Start: formatTime(tr.Start), End: formatTime(tr.End)}
}

func SlotsFromModel(slots []model.TariffSlot) []SlotPayload {
	out := make([]SlotPayload, len(slots))
	for i, s := range slots {
		out[i] = SlotPayload{
			Start: formatTime(s.Start),
			End:   formatTime(s.End),
			Price: s.Price,
			Unit:  s.Unit,
		}
	}
	return out
}

func TariffSlotsFromEngine(u dashboard.SlotsUpdate) TariffSlotsPayload {
	return TariffSlotsPayload{
		TariffType: u.TariffType,
		Slots:      SlotsFromModel(u.Slots),
		TimeRange:  TimeRangeFromModel(u.Range),
	}
}

func ProfileFromEngine(id, name string, meta profile.Meta) ProfilePayload {
	notes := meta.Notes
	if notes == nil {
		notes = []string{}
	}
	return ProfilePayload{
		ID:             id,
		Name:           name,
		RowCount:       meta.RowCount,
		TotalEnergyKWh: meta.TotalEnergyKWh,
		TimeRange:      TimeRangeFromModel(meta.Range),
		SpanMinutes:    meta.Duration().Minutes(),
		UnitLabel:      meta.UnitLabel,
		Notes:          notes,
	}
}

func RecommendationsFromEngine(recs []analysis.Recommendation) []RecommendationPayload {
	out := make([]RecommendationPayload, 0, len(recs))
	for _, r := range recs {
		p := RecommendationPayload{
			ApplianceID:     r.Appliance.ID,
			Name:            r.Appliance.Name,
			Description:     r.Appliance.Description,
			DurationMinutes: r.Appliance.DurationMinutes,
			Found:           r.Found,
		}
		if r.Found {
			p.Start = formatTime(r.Window.Start)
			p.End = formatTime(r.Window.End)
			p.AveragePrice = r.Window.AveragePrice
			p.Unit = r.Window.Unit
		}
		out = append(out, p)
	}
	return out
}

func ComparisonFromEngine(c dashboard.Comparison) ComparisonPayload {
	r := c.Result
	return ComparisonPayload{
		ProfileID:             c.ProfileID,
		TariffType:            c.TariffType,
		BaselineRate:          c.BaselineRate,
		HasCoverage:           r.HasCoverage(),
		MatchedCount:          r.MatchedCount,
		MissingCount:          r.MissingCount,
		ExtraEntries:          r.ExtraEntries,
		MatchedEnergyKWh:      r.MatchedEnergyKWh,
		TotalProfileEnergyKWh: r.TotalProfileEnergyKWh,
		DynamicCost:           r.DynamicCost,
		StaticCost:            r.StaticCost,
		Savings:               r.Savings,
		SavingsPercent:        r.SavingsPercent,
		DynamicAveragePrice:   r.DynamicAveragePrice,
		CoverageSlots:         r.CoverageSlots,
		CoverageEnergy:        r.CoverageEnergy,
	}
}
