package tariff

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"tariff_dashboard/internal/model"
)

// DemoSlots is the number of demo records: one day of 15-minute slots.
const DemoSlots = 96

// Surcharges added on top of grid usage to form the grid tariff.
var gridSurcharges = []float64{0.030, 0.0027, 0.0041, 0.0005, 0.023}

type demoEntry struct {
	Unit  string `json:"unit"`
	Value string `json:"value"`
}

// DemoRecords builds a day of records starting at the midnight of day in its
// location. Prices follow two sine swings with small noise; the same seed
// always yields the same payload.
func DemoRecords(day time.Time, seed uint64) []Record {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	noise := func(scale float64) float64 {
		return (rng.Float64() - 0.5) * scale
	}

	base := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	records := make([]Record, 0, DemoSlots)

	for i := 0; i < DemoSlots; i++ {
		start := base.Add(time.Duration(i) * model.Interval)
		end := start.Add(model.Interval)

		swing := 0.05 * math.Sin(float64(i)/DemoSlots*math.Pi*4)
		integrated := 0.22 + swing + noise(0.01)
		gridUsage := integrated - 0.09
		electricity := 0.12 + swing*0.6 + noise(0.007)
		grid := gridUsage
		for _, s := range gridSurcharges {
			grid += s
		}

		records = append(records, Record{
			"start_timestamp": mustJSON(start.UTC().Format("2006-01-02T15:04:05.000Z")),
			"end_timestamp":   mustJSON(end.UTC().Format("2006-01-02T15:04:05.000Z")),
			TypeIntegrated:    demoPrice(integrated),
			TypeGridUsage:     demoPrice(gridUsage),
			TypeGrid:          demoPrice(grid),
			TypeElectricity:   demoPrice(electricity),
		})
	}
	return records
}

func demoPrice(v float64) json.RawMessage {
	return mustJSON([]demoEntry{{Unit: "CHF_kWh", Value: decimal.NewFromFloat(v).StringFixed(4)}})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
