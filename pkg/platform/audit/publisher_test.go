package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credlock/pkg/platform/audit"
	"credlock/pkg/platform/audit/models"
	auditmemory "credlock/pkg/platform/audit/store/memory"
	"credlock/pkg/platform/tx"
)

type capturedMessage struct {
	key   string
	value []byte
}

type capturingProducer struct {
	messages []capturedMessage
}

func (p *capturingProducer) ProduceAsync(_ context.Context, key string, value []byte) {
	p.messages = append(p.messages, capturedMessage{key: key, value: value})
}

func testEvent() models.Event {
	return models.New(models.KindCertIssued, "issuer", "0xsubject", map[string]string{
		"title": "BSc Computer Science",
	})
}

func TestRecordMirrorsAfterCommit(t *testing.T) {
	producer := &capturingProducer{}
	store := auditmemory.NewStore()
	publisher := audit.NewPublisher(store, audit.WithProducer(producer))
	runner := tx.NewInMemoryRunner()
	ctx := context.Background()
	event := testEvent()

	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := publisher.Record(ctx, event); err != nil {
			return err
		}
		// Still inside the transaction: nothing on the bus yet.
		assert.Empty(t, producer.messages)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, producer.messages, 1)
	assert.Equal(t, event.Subject, producer.messages[0].key)

	var mirrored models.Event
	require.NoError(t, json.Unmarshal(producer.messages[0].value, &mirrored))
	assert.Equal(t, event.ID, mirrored.ID)
}

func TestRecordRollbackKeepsBusClean(t *testing.T) {
	producer := &capturingProducer{}
	publisher := audit.NewPublisher(auditmemory.NewStore(), audit.WithProducer(producer))
	runner := tx.NewInMemoryRunner()
	ctx := context.Background()

	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := publisher.Record(ctx, testEvent()); err != nil {
			return err
		}
		return errors.New("state change failed")
	})
	require.Error(t, err)
	assert.Empty(t, producer.messages)
}

func TestRecordOutsideTransactionMirrorsImmediately(t *testing.T) {
	producer := &capturingProducer{}
	publisher := audit.NewPublisher(auditmemory.NewStore(), audit.WithProducer(producer))

	require.NoError(t, publisher.Record(context.Background(), testEvent()))
	assert.Len(t, producer.messages, 1)
}
