package webhook

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// HandlerFunc reacts to one validated event.
type HandlerFunc func(ctx context.Context, event *Event) error

// Dispatcher routes validated events to the handlers registered for their
// type. Handlers run sequentially in registration order; a failing handler
// is logged and does not stop the ones after it.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]HandlerFunc
	log      zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]HandlerFunc),
		log:      log.With().Str("component", "webhook_dispatch").Logger(),
	}
}

// Register adds a handler for an event type.
func (d *Dispatcher) Register(eventType string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], fn)
}

// Dispatch runs every handler registered for the event's type to
// completion. Returns the number of handlers invoked.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) int {
	d.mu.RLock()
	handlers := d.handlers[event.Type]
	d.mu.RUnlock()

	for i, fn := range handlers {
		if err := fn(ctx, event); err != nil {
			d.log.Error().Err(err).Str("event_type", event.Type).
				Int("handler", i).Msg("webhook handler failed")
		}
	}
	return len(handlers)
}
