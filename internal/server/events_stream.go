package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/ledger/internal/events"
	"github.com/aristath/ledger/internal/utils"
	"github.com/rs/zerolog"
)

const defaultHeartbeat = 30 * time.Second

// EventsStreamHandler streams ledger events over Server-Sent Events
type EventsStreamHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus:       bus,
		heartbeat: defaultHeartbeat,
		log:       log.With().Str("component", "events_stream").Logger(),
	}
}

// subscriptionTypes parses the optional ?types= filter
func subscriptionTypes(r *http.Request) []events.EventType {
	var types []events.EventType
	for _, t := range utils.ParseCSV(r.URL.Query().Get("types")) {
		types = append(types, events.EventType(t))
	}
	return types
}

// ServeHTTP handles GET /api/events/stream
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	types := subscriptionTypes(r)
	sub := h.bus.Subscribe(types...)
	defer h.bus.Unsubscribe(sub)

	h.log.Info().Int("types", len(types)).Msg("Client connected to event stream")

	h.send(w, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to ledger event stream",
	})
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Uint64("dropped", sub.Dropped()).Msg("Client disconnected from event stream")
			return

		case event, ok := <-sub.C:
			if !ok {
				return
			}
			h.send(w, event)
			flusher.Flush()

		case <-heartbeat.C:
			h.send(w, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) send(w http.ResponseWriter, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode event")
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
