//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"credlock/internal/platform/kafka/producer"
	"credlock/pkg/testutil/containers"
)

const testTopic = "credlock.audit.test"

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.kafka = mgr.GetKafka(s.T())

	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Topic:           testTopic,
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

// TestProduceAsyncDeliversMessage verifies an async record reaches the broker
// once Flush returns.
func (s *ProducerIntegrationSuite) TestProduceAsyncDeliversMessage() {
	ctx := context.Background()

	s.producer.ProduceAsync(ctx, "test-key", []byte(`{"kind":"identity_registered"}`))
	s.Require().NoError(s.producer.Flush(10 * time.Second))

	consumer, err := s.kafka.NewConsumer(ctx, "test-consumer-group", testTopic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 5*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "test-key"
	})

	s.Require().NotNil(record, "message should be consumable")
	s.JSONEq(`{"kind":"identity_registered"}`, string(record.Value))
}

// TestRecordsShareKeyOrdering verifies records with the same key land on one
// partition in produce order.
func (s *ProducerIntegrationSuite) TestRecordsShareKeyOrdering() {
	ctx := context.Background()

	s.producer.ProduceAsync(ctx, "ordering-key", []byte("first"))
	s.producer.ProduceAsync(ctx, "ordering-key", []byte("second"))
	s.Require().NoError(s.producer.Flush(10 * time.Second))

	consumer, err := s.kafka.NewConsumer(ctx, "test-ordering-group", testTopic)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var values []string
	for len(values) < 2 {
		fetches := consumer.PollFetches(pollCtx)
		if fetches.IsClientClosed() || pollCtx.Err() != nil {
			break
		}
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == "ordering-key" {
				values = append(values, string(r.Value))
			}
		})
	}

	s.Require().Len(values, 2)
	s.Equal("first", values[0])
	s.Equal("second", values[1])
}

// TestProducerHealthy verifies the health probe against a live broker.
func (s *ProducerIntegrationSuite) TestProducerHealthy() {
	s.True(s.producer.Healthy(context.Background()))
}

// TestProduceAfterCloseIsDropped verifies a closed producer swallows records
// instead of panicking.
func (s *ProducerIntegrationSuite) TestProduceAfterCloseIsDropped() {
	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Topic:           testTopic,
		Retries:         1,
		DeliveryTimeout: 5 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.Require().NoError(prod.Close())

	prod.ProduceAsync(context.Background(), "late-key", []byte("late"))
}
