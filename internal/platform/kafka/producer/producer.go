// Package producer publishes audit events to Kafka using franz-go. The
// producer is bound to a single topic; the audit publisher is its only caller.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer wraps the franz-go client with the narrow interface the audit
// publisher needs.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// Config holds producer configuration.
type Config struct {
	Brokers         string
	Topic           string
	Retries         int
	DeliveryTimeout time.Duration
}

// New creates a new Kafka producer and ensures the topic exists.
func New(cfg Config, logger *slog.Logger) (*Producer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}

	brokers := strings.Split(cfg.Brokers, ",")

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.Retries),
		kgo.ProducerLinger(5 * time.Millisecond),
		kgo.DefaultProduceTopic(cfg.Topic),
	}
	if cfg.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	if err := ensureTopic(client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	return &Producer{
		client: client,
		topic:  cfg.Topic,
		logger: logger,
	}, nil
}

// ensureTopic creates the topic if it does not exist yet. Broker-side
// defaults apply; an "already exists" response is fine.
func ensureTopic(client *kgo.Client, topic string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, -1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %q: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %q: %w", topic, resp.Err)
	}
	return nil
}

// ProduceAsync buffers a record for background delivery. Delivery failures
// are logged, never surfaced to the caller.
func (p *Producer) ProduceAsync(ctx context.Context, key string, value []byte) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return
	}
	p.mu.RUnlock()

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
	}

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("kafka delivery failed",
				"topic", r.Topic,
				"partition", r.Partition,
				"error", err,
			)
		}
	})
}

// Flush waits for all buffered messages to be delivered.
func (p *Producer) Flush(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.client.Flush(ctx)
}

// Close gracefully shuts down the producer.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.Flush(ctx); err != nil && p.logger != nil {
		p.logger.Warn("kafka producer closed with unflushed messages",
			"error", err,
		)
	}

	p.client.Close()
	return nil
}

// Healthy checks if the producer can communicate with brokers.
func (p *Producer) Healthy(ctx context.Context) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	p.mu.RUnlock()

	return p.client.Ping(ctx) == nil
}

// NoopProducer satisfies the audit publisher when Kafka is not configured.
type NoopProducer struct{}

func (NoopProducer) ProduceAsync(context.Context, string, []byte) {}
