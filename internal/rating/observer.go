package rating

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/narimato/narimato/internal/events"
)

// recomputeTimeout bounds a single event-driven recompute run.
const recomputeTimeout = 30 * time.Second

// Observer subscribes to play completion events and triggers a global
// ranking recompute for the tenant.
type Observer struct {
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewObserver creates a rating observer for the dispatcher.
func NewObserver(aggregator *Aggregator, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{aggregator: aggregator, logger: logger}
}

// Name identifies the observer in dispatcher logs.
func (o *Observer) Name() string { return "rating-recompute" }

// ShouldHandle opts into play completion events only.
func (o *Observer) ShouldHandle(eventType string) bool {
	return eventType == events.TypePlayCompleted
}

// OnEvent recomputes the tenant's rankings. An already-running
// recompute is not an error: the completed play is persisted and will
// be picked up by the next run.
func (o *Observer) OnEvent(event events.Event) error {
	payload, ok := event.Data.(events.PlayCompleted)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
	defer cancel()

	if _, err := o.aggregator.Recompute(ctx, payload.TenantID); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			o.logger.Debug("recompute already in flight", "tenant_id", payload.TenantID)
			return nil
		}
		return err
	}
	return nil
}
