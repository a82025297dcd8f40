package verify

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
	"credlock/internal/verify/receipt"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
)

func testHash(suffix string) domain.ContentHash {
	return domain.ContentHash("0x" + strings.Repeat("0", 64-len(suffix)) + suffix)
}

func testWallet(suffix string) domain.WalletAddress {
	return domain.WalletAddress("0x" + strings.Repeat("a", 40-len(suffix)) + suffix)
}

type fixture struct {
	svc    *Service
	client *mocks.MockClient
	store  *memory.Store
	signer *receipt.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	store := memory.NewStore()
	signer := receipt.NewSigner("test-signing-key", 15*time.Minute)

	svc := New(ledger.NewReconciler(client), store,
		WithReceiptSigner(signer),
	)
	return &fixture{svc: svc, client: client, store: store, signer: signer}
}

func (f *fixture) expectStatus(hash domain.ContentHash, status map[string]any) {
	raw, _ := json.Marshal(status)
	f.client.EXPECT().
		QueryState(gomock.Any(), ledger.OpGetCertificate, map[string]any{
			"content_hash": hash.String(),
		}).
		Return(json.RawMessage(raw), nil)
}

func TestVerifyValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("1")

	require.NoError(t, f.store.Insert(ctx, &certmodels.Record{
		ContentHash:    hash,
		SubjectWallet:  testWallet("1"),
		Title:          "BSc Computer Science",
		LedgerTxRef:    "0xtx",
		LedgerBlockRef: "0xblock",
		Status:         certmodels.StatusIssued,
		IssuedAt:       time.Now().UTC(),
	}))
	f.expectStatus(hash, map[string]any{
		"exists":       true,
		"subject_name": "Asha Rao",
		"tx_ref":       "0xtx",
		"block_ref":    "0xblock",
	})

	result, err := f.svc.Verify(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, StatusValid, result.Status)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, "Asha Rao", result.Metadata.SubjectName)
	assert.Equal(t, "BSc Computer Science", result.Metadata.Title)
	assert.Equal(t, "0xblock", result.Metadata.BlockRef)

	// The receipt round-trips through the signer.
	claims, err := f.signer.Parse(result.Receipt)
	require.NoError(t, err)
	assert.Equal(t, hash.String(), claims.ContentHash)
	assert.Equal(t, string(StatusValid), claims.Status)
}

func TestVerifyRevokedOverridesLocalRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("2")

	// Local state still says ISSUED; the ledger's revocation wins.
	require.NoError(t, f.store.Insert(ctx, &certmodels.Record{
		ContentHash:    hash,
		SubjectWallet:  testWallet("1"),
		LedgerTxRef:    "0xtx",
		LedgerBlockRef: "0xblock",
		Status:         certmodels.StatusIssued,
		IssuedAt:       time.Now().UTC(),
	}))
	f.expectStatus(hash, map[string]any{
		"exists":  true,
		"revoked": true,
	})

	result, err := f.svc.Verify(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, result.Status)
}

func TestVerifyLocalOnlyRecordIsUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hash := testHash("3")

	// A record the ledger never confirmed must not verify as VALID.
	require.NoError(t, f.store.Insert(ctx, &certmodels.Record{
		ContentHash:   hash,
		SubjectWallet: testWallet("1"),
		Status:        certmodels.StatusIssued,
		IssuedAt:      time.Now().UTC(),
	}))
	f.expectStatus(hash, map[string]any{"exists": false})

	result, err := f.svc.Verify(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, result.Status)
	assert.Nil(t, result.Metadata)
	assert.Empty(t, result.Receipt)
}

func TestVerifyUnknownHash(t *testing.T) {
	f := newFixture(t)
	hash := testHash("4")

	f.expectStatus(hash, map[string]any{"exists": false})

	result, err := f.svc.Verify(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, result.Status)
}

func TestVerifyLedgerUnavailable(t *testing.T) {
	f := newFixture(t)

	f.client.EXPECT().
		QueryState(gomock.Any(), ledger.OpGetCertificate, gomock.Any()).
		Return(nil, ledger.Unavailable(errors.New("connection refused")))

	_, err := f.svc.Verify(context.Background(), testHash("5"))
	require.Error(t, err)
	assert.True(t, ledger.IsUnavailable(err))
}

func TestVerifyDocumentHashesServerSide(t *testing.T) {
	f := newFixture(t)
	document := []byte("diploma bytes")
	hash := domain.HashContent(document)

	f.expectStatus(hash, map[string]any{"exists": true})

	result, err := f.svc.VerifyDocument(context.Background(), document)
	require.NoError(t, err)
	assert.Equal(t, hash, result.ContentHash)
	assert.Equal(t, StatusValid, result.Status)
}

func TestVerifyRejectsEmptyInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Verify(context.Background(), domain.ContentHash(""))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = f.svc.VerifyDocument(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestVerifyIsRepeatable(t *testing.T) {
	f := newFixture(t)
	hash := testHash("6")

	f.expectStatus(hash, map[string]any{"exists": true, "revoked": true})
	f.expectStatus(hash, map[string]any{"exists": true, "revoked": true})

	first, err := f.svc.Verify(context.Background(), hash)
	require.NoError(t, err)
	second, err := f.svc.Verify(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
}
