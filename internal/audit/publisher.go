package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher captures structured audit events. The store write is the source
// of truth; the optional sink channel fans events out to external systems
// (SIEM via Kafka) without ever blocking the emitting flow.
type Publisher struct {
	store  Store
	logger *slog.Logger
	outbox chan Event
}

// NewPublisher builds a publisher. sinkCapacity 0 disables fan-out.
func NewPublisher(store Store, logger *slog.Logger, sinkCapacity int) *Publisher {
	p := &Publisher{store: store, logger: logger}
	if sinkCapacity > 0 {
		p.outbox = make(chan Event, sinkCapacity)
	}
	return p
}

// Emit persists the event and offers it to the sink channel. A full sink
// drops the copy (store retains the record) and logs the drop.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	if p.outbox != nil {
		select {
		case p.outbox <- event:
		default:
			p.logger.WarnContext(ctx, "audit sink outbox full, dropping fan-out copy",
				"action", event.Action,
				"user_id", event.UserID,
			)
		}
	}
	return nil
}

// Outbox exposes the fan-out channel for the worker. Nil when fan-out is
// disabled.
func (p *Publisher) Outbox() <-chan Event {
	return p.outbox
}

// List returns the stored trail for a user.
func (p *Publisher) List(ctx context.Context, userID string) ([]Event, error) {
	return p.store.ListByUser(ctx, userID)
}

// ListByCall returns the stored trail for a call.
func (p *Publisher) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	return p.store.ListByCall(ctx, callID)
}
