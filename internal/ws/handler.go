package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tariff_dashboard/internal/dashboard"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler manages WebSocket connections and routes messages to the engine.
type Handler struct {
	hub          *Hub
	engine       *dashboard.Engine
	logger       zerolog.Logger
	location     *time.Location
	fetchTimeout time.Duration
}

func NewHandler(hub *Hub, engine *dashboard.Engine, logger zerolog.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{hub: hub, engine: engine, logger: logger, location: loc, fetchTimeout: 30 * time.Second}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := newClient(h.hub, conn, 256)

	h.hub.Register(client)
	go client.writePump()

	h.sendSnapshot(client)

	// Read messages from client
	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		h.handleMessage(c, msg)
	}
}

func (h *Handler) handleMessage(c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.logger.Warn().Err(err).Msg("invalid message")
		return
	}

	switch env.Type {
	case TypeBaselineSet:
		var p BaselinePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn().Err(err).Msg("invalid baseline:set payload")
			return
		}
		if err := h.engine.SetBaseline(p.Rate); err != nil {
			h.sendError(c, err.Error())
		}

	case TypeProfileClear:
		h.engine.ClearProfile()

	case TypeTariffLoad:
		var p TariffLoadPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.logger.Warn().Err(err).Msg("invalid tariff:load payload")
			return
		}
		h.loadTariff(c, p)

	default:
		h.logger.Warn().Str("type", env.Type).Msg("unknown message type")
	}
}

func (h *Handler) loadTariff(c *Client, p TariffLoadPayload) {
	q, err := p.Query(h.location)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.fetchTimeout)
	defer cancel()
	err = h.engine.Load(ctx, q, p.Demo)

	switch {
	case errors.Is(err, dashboard.ErrNoSlots):
		h.sendError(c, "Keine Daten fuer den gewaehlten Zeitraum/Tariftyp gefunden.")
	case err != nil:
		h.sendError(c, "Preisabfrage fehlgeschlagen. Demo-Daten koennen als Fallback genutzt werden.")
	}
}

// sendSnapshot sends the current session state to a newly connected client.
func (h *Handler) sendSnapshot(c *Client) {
	slots, tariffType := h.engine.Slots()
	update := dashboard.SlotsUpdate{TariffType: tariffType, Slots: slots}
	if len(slots) > 0 {
		update.Range.Start = slots[0].Start
		update.Range.End = slots[len(slots)-1].End
	}
	h.send(c, TypeTariffSlots, TariffSlotsFromEngine(update))

	recs, _ := h.engine.Recommendations()
	h.send(c, TypeRecommendationsUpdate, RecommendationsFromEngine(recs))

	if p, ok := h.engine.Profile(); ok {
		h.send(c, TypeProfileLoaded, ProfileFromEngine(p.ID, p.Name, p.Profile.Meta))
	}
	if cmp, err := h.engine.Comparison(); err == nil {
		h.send(c, TypeComparisonUpdate, ComparisonFromEngine(cmp))
	}
}

func (h *Handler) sendError(c *Client, message string) {
	h.send(c, TypeError, ErrorPayload{Message: message})
}

func (h *Handler) send(c *Client, msgType string, payload any) {
	if err := h.hub.SendTo(c, msgType, payload); err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("marshaling message")
	}
}
