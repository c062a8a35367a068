package ws

import (
	"github.com/rs/zerolog"

	"tariff_dashboard/internal/analysis"
	"tariff_dashboard/internal/dashboard"
)

// Bridge implements dashboard.Callback and broadcasts events to the WebSocket hub.
type Bridge struct {
	hub    *Hub
	logger zerolog.Logger
}

func NewBridge(hub *Hub, logger zerolog.Logger) *Bridge {
	return &Bridge{hub: hub, logger: logger}
}

func (b *Bridge) OnSlots(u dashboard.SlotsUpdate) {
	b.broadcast(TypeTariffSlots, TariffSlotsFromEngine(u))
}

func (b *Bridge) OnProfile(u dashboard.ProfileUpdate) {
	if !u.Loaded {
		b.broadcast(TypeProfileCleared, nil)
		return
	}
	b.broadcast(TypeProfileLoaded, ProfileFromEngine(u.ID, u.Name, u.Meta))
}

func (b *Bridge) OnRecommendations(recs []analysis.Recommendation) {
	b.broadcast(TypeRecommendationsUpdate, RecommendationsFromEngine(recs))
}

func (b *Bridge) OnComparison(c dashboard.Comparison) {
	b.broadcast(TypeComparisonUpdate, ComparisonFromEngine(c))
}

func (b *Bridge) broadcast(msgType string, payload any) {
	n, err := b.hub.Publish(msgType, payload)
	if err != nil {
		b.logger.Error().Err(err).Str("type", msgType).Msg("marshaling message")
		return
	}
	b.logger.Debug().Str("type", msgType).Int("clients", n).Msg("dashboard update published")
}
