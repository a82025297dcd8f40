package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	certmodels "credlock/internal/certificate/models"
	"credlock/internal/certificate/store/memory"
	"credlock/internal/ledger"
	"credlock/internal/ledger/mocks"
	"credlock/pkg/domain"
	"credlock/pkg/platform/audit"
	auditmodels "credlock/pkg/platform/audit/models"
	auditmemory "credlock/pkg/platform/audit/store/memory"
	"credlock/pkg/platform/sentinel"
)

func testHash(suffix string) domain.ContentHash {
	return domain.ContentHash("0x" + strings.Repeat("0", 64-len(suffix)) + suffix)
}

func testWallet(suffix string) domain.WalletAddress {
	return domain.WalletAddress("0x" + strings.Repeat("e", 40-len(suffix)) + suffix)
}

type fixture struct {
	sweeper    *Sweeper
	client     *mocks.MockClient
	store      *memory.Store
	auditStore *auditmemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	store := memory.NewStore()
	auditStore := auditmemory.NewStore()

	sw := New(store, ledger.NewReconciler(client),
		WithAuditPublisher(audit.NewPublisher(auditStore)),
		WithBatchSize(10),
	)
	return &fixture{sweeper: sw, client: client, store: store, auditStore: auditStore}
}

func (f *fixture) expectStatus(hash domain.ContentHash, status map[string]any) {
	raw, _ := json.Marshal(status)
	f.client.EXPECT().
		QueryState(gomock.Any(), ledger.OpGetCertificate, map[string]any{
			"content_hash": hash.String(),
		}).
		Return(json.RawMessage(raw), nil)
}

func (f *fixture) expectAnchors(anchors []map[string]any, nextBlock uint64) {
	raw, _ := json.Marshal(map[string]any{
		"anchors":    anchors,
		"next_block": nextBlock,
	})
	f.client.EXPECT().
		QueryState(gomock.Any(), ledger.OpListAnchors, gomock.Any()).
		Return(json.RawMessage(raw), nil)
}

func TestSweepRecoversLedgerRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("1")

	require.NoError(t, f.store.Insert(ctx, &certmodels.Record{
		ContentHash:   hash,
		SubjectWallet: testWallet("1"),
		Status:        certmodels.StatusIssued,
		IssuedAt:      time.Now().UTC(),
	}))

	f.expectStatus(hash, map[string]any{
		"exists":    true,
		"tx_ref":    "0xtx",
		"block_ref": "0xblock",
	})
	f.expectAnchors(nil, 0)

	require.NoError(t, f.sweeper.Sweep(ctx))

	record, err := f.store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "0xtx", record.LedgerTxRef)
	assert.Equal(t, "0xblock", record.LedgerBlockRef)
	assert.True(t, record.Confirmed())

	events, err := f.auditStore.List(ctx, auditmodels.KindReconcileHealed, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ledger_refs_recovered", events[0].Details["action"])
}

func TestSweepFlagsRecordWithoutAnchor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("2")

	require.NoError(t, f.store.Insert(ctx, &certmodels.Record{
		ContentHash:   hash,
		SubjectWallet: testWallet("1"),
		Status:        certmodels.StatusIssued,
		IssuedAt:      time.Now().UTC(),
	}))

	f.expectStatus(hash, map[string]any{"exists": false})
	f.expectAnchors(nil, 0)

	require.NoError(t, f.sweeper.Sweep(ctx))

	// The record survives flagging.
	_, err := f.store.Get(ctx, hash)
	require.NoError(t, err)

	events, err := f.auditStore.List(ctx, auditmodels.KindReconcileFlagged, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSweepAdoptsLedgerOnlyAnchor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("3")

	f.expectAnchors([]map[string]any{{
		"content_hash":   hash.String(),
		"subject_wallet": testWallet("1").String(),
		"subject_key":    testHash("9").String(),
		"issuer_wallet":  testWallet("2").String(),
		"title":          "BSc Computer Science",
		"tx_ref":         "0xtx",
		"block_ref":      "0xblock",
		"anchored_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}}, 0)

	require.NoError(t, f.sweeper.Sweep(ctx))

	record, err := f.store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, certmodels.StatusIssued, record.Status)
	assert.Equal(t, "BSc Computer Science", record.Title)
	assert.Equal(t, "0xblock", record.LedgerBlockRef)

	events, err := f.auditStore.List(ctx, auditmodels.KindReconcileHealed, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "anchor_adopted", events[0].Details["action"])
}

func TestSweepPropagatesLedgerRevocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("4")

	require.NoError(t, f.store.Insert(ctx, &certmodels.Record{
		ContentHash:    hash,
		SubjectWallet:  testWallet("1"),
		Status:         certmodels.StatusIssued,
		LedgerTxRef:    "0xtx",
		LedgerBlockRef: "0xblock",
		IssuedAt:       time.Now().UTC(),
	}))

	f.expectAnchors([]map[string]any{{
		"content_hash":   hash.String(),
		"subject_wallet": testWallet("1").String(),
		"tx_ref":         "0xtx",
		"block_ref":      "0xblock",
		"revoked":        true,
		"anchored_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}}, 0)

	require.NoError(t, f.sweeper.Sweep(ctx))

	record, err := f.store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, certmodels.StatusRevoked, record.Status)
	require.NotNil(t, record.RevokedAt)
}

func TestSweepAbortsWhenLedgerUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("5")

	require.NoError(t, f.store.Insert(ctx, &certmodels.Record{
		ContentHash:   hash,
		SubjectWallet: testWallet("1"),
		Status:        certmodels.StatusIssued,
		IssuedAt:      time.Now().UTC(),
	}))

	f.client.EXPECT().
		QueryState(gomock.Any(), ledger.OpGetCertificate, gomock.Any()).
		Return(nil, ledger.Unavailable(errors.New("connection refused")))

	err := f.sweeper.Sweep(ctx)
	require.Error(t, err)
	assert.True(t, ledger.IsUnavailable(err))

	// No audit events were emitted for an aborted pass.
	count, err := f.auditStore.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// flakyStore fails Get a fixed number of times before delegating, imitating
// a transient store outage during the anchor scan.
type flakyStore struct {
	*memory.Store
	failures int
}

func (s *flakyStore) Get(ctx context.Context, hash domain.ContentHash) (*certmodels.Record, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("store unavailable")
	}
	return s.Store.Get(ctx, hash)
}

func TestSweepHoldsCursorWhenReconcileFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	store := &flakyStore{Store: memory.NewStore(), failures: 1}
	sw := New(store, ledger.NewReconciler(client), WithBatchSize(10))
	ctx := context.Background()
	hash := testHash("7")

	page, _ := json.Marshal(map[string]any{
		"anchors": []map[string]any{{
			"content_hash": hash.String(),
			"tx_ref":       "0xtx",
			"block_ref":    "0xblock",
			"anchored_at":  time.Now().UTC().Format(time.RFC3339Nano),
		}},
		"next_block": 7,
	})
	empty, _ := json.Marshal(map[string]any{"anchors": []map[string]any{}, "next_block": 7})

	// Both passes scan from block zero: the entry that failed to reconcile
	// holds the cursor in place.
	client.EXPECT().
		QueryState(gomock.Any(), ledger.OpListAnchors, map[string]any{
			"from_block": uint64(0),
			"limit":      10,
		}).
		Return(json.RawMessage(page), nil).
		Times(2)
	client.EXPECT().
		QueryState(gomock.Any(), ledger.OpListAnchors, map[string]any{
			"from_block": uint64(7),
			"limit":      10,
		}).
		Return(json.RawMessage(empty), nil)

	require.NoError(t, sw.Sweep(ctx))
	_, err := store.Store.Get(ctx, hash)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, sw.Sweep(ctx))
	record, err := store.Store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "0xblock", record.LedgerBlockRef)
}

func TestSweepAdvancesBlockCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.expectAnchors([]map[string]any{{
		"content_hash": testHash("6").String(),
		"tx_ref":       "0xtx1",
		"block_ref":    "0xblock1",
		"anchored_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}}, 7)
	raw, _ := json.Marshal(map[string]any{"anchors": []map[string]any{}, "next_block": 7})
	f.client.EXPECT().
		QueryState(gomock.Any(), ledger.OpListAnchors, map[string]any{
			"from_block": uint64(7),
			"limit":      10,
		}).
		Return(json.RawMessage(raw), nil)

	require.NoError(t, f.sweeper.Sweep(ctx))

	_, err := f.store.Get(ctx, testHash("6"))
	require.NoError(t, err)
}
