// Package events distributes domain events to registered observers.
// The play engine publishes completion events here; the rating
// aggregator subscribes to schedule recomputes.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Event types published by the engine.
const (
	TypePlayCompleted = "play:completed"
)

// PlayCompleted is the payload of a play:completed event.
type PlayCompleted struct {
	PlayID   string `json:"play_id"`
	TenantID string `json:"tenant_id"`
	DeckTag  string `json:"deck_tag"`
	Votes    int    `json:"votes"`
}

// Event is a domain event delivered to observers.
type Event struct {
	// Type is the event type, e.g. TypePlayCompleted.
	Type string

	// Data is the typed payload.
	Data any

	// Context provides execution context for the event.
	Context context.Context
}

// NewPlayCompleted builds a play:completed event.
func NewPlayCompleted(ctx context.Context, playID, tenantID, deckTag string, votes int) Event {
	return Event{
		Type:    TypePlayCompleted,
		Context: ctx,
		Data: PlayCompleted{
			PlayID:   playID,
			TenantID: tenantID,
			DeckTag:  deckTag,
			Votes:    votes,
		},
	}
}

// Observer is notified of dispatched events.
type Observer interface {
	// OnEvent is called when an event is dispatched.
	OnEvent(event Event) error

	// Name returns a human-readable name for logging.
	Name() string

	// ShouldHandle reports whether this observer wants the event type.
	ShouldHandle(eventType string) bool
}

// Dispatcher fans events out to registered observers. Thread-safe.
type Dispatcher struct {
	observers []Observer
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{logger: logger}
}

// Register adds an observer; it receives all future events it opts
// into via ShouldHandle.
func (d *Dispatcher) Register(observer Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observers = append(d.observers, observer)
	d.logger.Debug("observer registered", "observer", observer.Name())
}

// Dispatch notifies observers sequentially in registration order. An
// observer error is logged and does not stop delivery to the rest.
func (d *Dispatcher) Dispatch(event Event) {
	for _, observer := range d.snapshot() {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		if err := observer.OnEvent(event); err != nil {
			d.logger.Warn("observer failed", "observer", observer.Name(), "event", event.Type, "error", err)
		}
	}
}

// DispatchAsync notifies each interested observer in its own goroutine.
func (d *Dispatcher) DispatchAsync(event Event) {
	for _, observer := range d.snapshot() {
		if !observer.ShouldHandle(event.Type) {
			continue
		}
		go func(obs Observer) {
			if err := obs.OnEvent(event); err != nil {
				d.logger.Warn("observer failed", "observer", obs.Name(), "event", event.Type, "error", err)
			}
		}(observer)
	}
}

// ObserverCount returns the number of registered observers.
func (d *Dispatcher) ObserverCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

func (d *Dispatcher) snapshot() []Observer {
	d.mu.RLock()
	defer d.mu.RUnlock()

	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	return observers
}
