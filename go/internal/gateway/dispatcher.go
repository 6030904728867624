package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/Polimar/BrainBrawler/go/internal/events"
)

// EventDispatcher fans session events out to live websocket
// connections and to the event stream. It satisfies the Dispatcher
// interfaces of the game engine, election engine, and health monitor.
type EventDispatcher struct {
	cm  *ConnectionManager
	pub *events.Publisher
}

// NewEventDispatcher creates a dispatcher. pub may be nil when no
// event stream is configured.
func NewEventDispatcher(cm *ConnectionManager, pub *events.Publisher) *EventDispatcher {
	return &EventDispatcher{cm: cm, pub: pub}
}

// Dispatch delivers events in order to the session's connections and
// publishes them to the stream.
func (d *EventDispatcher) Dispatch(sessionID uuid.UUID, evs []events.Event) {
	for _, ev := range evs {
		d.cm.BroadcastToSession(sessionID, ev)
		d.pub.Publish(context.Background(), ev)
	}
}
