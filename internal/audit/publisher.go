package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "attest/pkg/domain"
)

// Sink receives a copy of every persisted event. Sinks are best-effort
// fan-out (broker pipelines, SIEM forwarders); the append-only store is the
// source of truth and sink failures never fail the triggering operation.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger
}

type PublisherOption func(*Publisher)

// WithSink registers an additional fan-out target.
func WithSink(sink Sink) PublisherOption {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and persists an event, then fans it out to any sinks.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.ID == uuid.Nil {
		base.ID = uuid.New()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	if base.Category == "" {
		base.Category = base.Action.Category()
	}
	if err := p.store.Append(ctx, base); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, base); err != nil && p.logger != nil {
			p.logger.WarnContext(ctx, "audit sink publish failed",
				"action", base.Action,
				"event_id", base.ID,
				"error", err,
			)
		}
	}
	return nil
}

// List returns the full trail in append order.
func (p *Publisher) List(ctx context.Context) ([]Event, error) {
	return p.store.List(ctx)
}

// ListByPrincipal returns the trail for one principal in append order.
func (p *Publisher) ListByPrincipal(ctx context.Context, principal id.Principal) ([]Event, error) {
	return p.store.ListByPrincipal(ctx, principal)
}
