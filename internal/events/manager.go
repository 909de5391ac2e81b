// Package events provides ledger event emission and fan-out to dashboards.
package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager. bus may be nil, in which case events are only logged.
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	if m.bus != nil {
		m.bus.Publish(event)
	}
}

// EmitTyped emits an event from typed event data
func (m *Manager) EmitTyped(module string, data EventData) {
	m.Emit(data.EventType(), module, toMap(data))
}

// Bus returns the underlying bus (may be nil)
func (m *Manager) Bus() *Bus {
	return m.bus
}
