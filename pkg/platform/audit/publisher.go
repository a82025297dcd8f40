// Package audit records what the engine did: every state change appends a
// durable event in the same transaction as the change, then fans the event
// out to Kafka on a best-effort basis once that transaction commits.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"credlock/pkg/platform/audit/models"
	"credlock/pkg/platform/tx"
)

// Store is the durable half of the audit trail.
type Store interface {
	Append(ctx context.Context, event models.Event) error
	List(ctx context.Context, kind models.Kind, limit int) ([]models.Event, error)
	Count(ctx context.Context) (int64, error)
}

// Producer publishes audit events to the event bus. ProduceAsync must not
// block the request path.
type Producer interface {
	ProduceAsync(ctx context.Context, key string, value []byte)
}

// Publisher appends events durably and mirrors them to Kafka. The store append
// shares the caller's transaction via context; the Kafka publish waits for the
// commit and is fire and forget, so a broker outage never fails a state change
// and a rollback never leaks an event onto the bus.
type Publisher struct {
	store    Store
	producer Producer
	logger   *slog.Logger
}

type Option func(*Publisher)

func WithProducer(p Producer) Option {
	return func(pub *Publisher) { pub.producer = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(pub *Publisher) { pub.logger = l }
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	pub := &Publisher{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(pub)
	}
	return pub
}

// Record appends the event to the store. A failure here is a failure of the
// enclosing transaction; callers decide whether the state change survives.
func (p *Publisher) Record(ctx context.Context, event models.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}

	if p.producer != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			p.logger.ErrorContext(ctx, "failed to marshal audit event",
				"error", err,
				"event_id", event.ID,
			)
			return nil
		}
		// The mirror waits for the enclosing transaction to commit, so an
		// event whose state change rolled back never reaches the bus. Keyed
		// by subject so events for one entity stay ordered per partition.
		produceCtx := context.WithoutCancel(ctx)
		tx.OnCommit(ctx, func() {
			p.producer.ProduceAsync(produceCtx, event.Subject, payload)
		})
	}
	return nil
}

// List exposes the durable trail for the admin API.
func (p *Publisher) List(ctx context.Context, kind models.Kind, limit int) ([]models.Event, error) {
	return p.store.List(ctx, kind, limit)
}

// Count reports the trail size for operational stats.
func (p *Publisher) Count(ctx context.Context) (int64, error) {
	return p.store.Count(ctx)
}
