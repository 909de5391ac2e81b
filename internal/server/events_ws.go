package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/ledger/internal/events"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// EventsWebSocketHandler pushes ledger events to dashboard clients over a WebSocket
type EventsWebSocketHandler struct {
	bus          *events.Bus
	pingInterval time.Duration
	log          zerolog.Logger
}

// NewEventsWebSocketHandler creates a new WebSocket events handler
func NewEventsWebSocketHandler(bus *events.Bus, log zerolog.Logger) *EventsWebSocketHandler {
	return &EventsWebSocketHandler{
		bus:          bus,
		pingInterval: defaultHeartbeat,
		log:          log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws.
// The connection is write-only; client frames other than close are discarded.
func (h *EventsWebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	types := subscriptionTypes(r)
	sub := h.bus.Subscribe(types...)
	defer h.bus.Unsubscribe(sub)

	// CloseRead keeps control frames flowing and cancels ctx once the peer goes away
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Int("types", len(types)).Msg("WebSocket client connected")

	if err := h.write(ctx, conn, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to ledger event stream",
	}); err != nil {
		return
	}

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Uint64("dropped", sub.Dropped()).Msg("WebSocket client disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}

		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

func (h *EventsWebSocketHandler) write(ctx context.Context, conn *websocket.Conn, payload interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, payload)
}
