package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"credlock/internal/issuer/models"
	"credlock/internal/issuer/store/memory"
	"credlock/internal/ledger"
	"credlock/internal/ledger/mocks"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	"credlock/pkg/platform/audit"
	auditmodels "credlock/pkg/platform/audit/models"
	auditmemory "credlock/pkg/platform/audit/store/memory"
	"credlock/pkg/platform/tx"
)

type fakeCache struct {
	entries map[domain.WalletAddress]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[domain.WalletAddress]bool)}
}

func (c *fakeCache) Get(_ context.Context, wallet domain.WalletAddress) (bool, bool, error) {
	v, ok := c.entries[wallet]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, wallet domain.WalletAddress, authorized bool) error {
	c.entries[wallet] = authorized
	return nil
}

func (c *fakeCache) Evict(_ context.Context, wallet domain.WalletAddress) error {
	delete(c.entries, wallet)
	return nil
}

func testWallet(suffix string) domain.WalletAddress {
	return domain.WalletAddress("0x" + strings.Repeat("d", 40-len(suffix)) + suffix)
}

type fixture struct {
	svc        *Service
	client     *mocks.MockClient
	issuers    *memory.IssuerStore
	auditStore *auditmemory.Store
	cache      *fakeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	issuers := memory.NewIssuerStore()
	auditStore := auditmemory.NewStore()
	cache := newFakeCache()

	svc := New(
		memory.NewRequestStore(),
		issuers,
		tx.NewInMemoryRunner(),
		ledger.NewReconciler(client),
		WithAuditPublisher(audit.NewPublisher(auditStore)),
		WithRoleCache(cache),
	)
	return &fixture{svc: svc, client: client, issuers: issuers, auditStore: auditStore, cache: cache}
}

func (f *fixture) expectGrant() {
	f.client.EXPECT().
		SubmitTransaction(gomock.Any(), ledger.OpGrantIssuerRole, gomock.Any()).
		Return(ledger.TxRef("0xgrant"), nil).
		AnyTimes()
	f.client.EXPECT().
		AwaitFinality(gomock.Any(), ledger.TxRef("0xgrant")).
		Return(ledger.BlockRef("0xblock"), nil).
		AnyTimes()
}

func (f *fixture) expectRevoke() {
	f.client.EXPECT().
		SubmitTransaction(gomock.Any(), ledger.OpRevokeIssuerRole, gomock.Any()).
		Return(ledger.TxRef("0xrevoke"), nil).
		AnyTimes()
	f.client.EXPECT().
		AwaitFinality(gomock.Any(), ledger.TxRef("0xrevoke")).
		Return(ledger.BlockRef("0xblock"), nil).
		AnyTimes()
}

func TestSubmitRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	request, err := f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, request.Status)
	assert.NotEqual(t, uuid.Nil, request.ID)

	events, err := f.auditStore.List(ctx, auditmodels.KindIssuerRequested, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSubmitRequestDuplicatePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)

	_, err = f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicatePendingRequest))
}

func TestSubmitRequestAllowedAfterResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	request, err := f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, request.ID, "admin")
	require.NoError(t, err)

	// A terminal request releases the wallet for a fresh application.
	_, err = f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	f.expectGrant()
	ctx := context.Background()

	request, err := f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)

	issuer, err := f.svc.Approve(ctx, request.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.IssuerActive, issuer.Status)
	assert.Equal(t, "Acme University", issuer.Name)

	resolved, err := f.svc.ListRequests(ctx, models.RequestApproved)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, request.ID, resolved[0].ID)

	// The fresh ledger answer landed in the cache.
	cached, found := f.cache.entries[testWallet("1")]
	assert.True(t, found)
	assert.True(t, cached)
}

func TestApproveLedgerFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.client.EXPECT().
		SubmitTransaction(gomock.Any(), ledger.OpGrantIssuerRole, gomock.Any()).
		Return(ledger.TxRef(""), ledger.Unavailable(errors.New("connection refused")))
	ctx := context.Background()

	request, err := f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, request.ID, "admin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	// The request is still PENDING and no issuer was created.
	pending, err := f.svc.ListRequests(ctx, models.RequestPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	count, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestApproveAlreadyResolved(t *testing.T) {
	f := newFixture(t)
	f.expectGrant()
	ctx := context.Background()

	request, err := f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, request.ID, "admin")
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, request.ID, "admin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
}

func TestApproveUnknownRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), uuid.New(), "admin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestRejectNeverTouchesLedger(t *testing.T) {
	// No ledger expectations are registered: any call fails the test.
	f := newFixture(t)
	ctx := context.Background()

	request, err := f.svc.SubmitRequest(ctx, "Acme University", testWallet("1"))
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, request.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)
	require.NotNil(t, rejected.ResolvedAt)
}

func TestRevokeIssuer(t *testing.T) {
	f := newFixture(t)
	f.expectGrant()
	f.expectRevoke()
	ctx := context.Background()

	_, err := f.svc.AddIssuer(ctx, "Acme University", testWallet("1"), "admin")
	require.NoError(t, err)

	revoked, err := f.svc.RevokeIssuer(ctx, testWallet("1"), "admin")
	require.NoError(t, err)
	assert.Equal(t, models.IssuerRevoked, revoked.Status)

	_, err = f.svc.RevokeIssuer(ctx, testWallet("1"), "admin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevoked))
}

func TestRevokeIssuerLedgerFailureLeavesActive(t *testing.T) {
	f := newFixture(t)
	f.expectGrant()
	f.client.EXPECT().
		SubmitTransaction(gomock.Any(), ledger.OpRevokeIssuerRole, gomock.Any()).
		Return(ledger.TxRef(""), ledger.Unavailable(errors.New("timeout")))
	ctx := context.Background()

	_, err := f.svc.AddIssuer(ctx, "Acme University", testWallet("1"), "admin")
	require.NoError(t, err)

	_, err = f.svc.RevokeIssuer(ctx, testWallet("1"), "admin")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	count, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestIsAuthorizedLedgerWinsOverRoster(t *testing.T) {
	f := newFixture(t)
	f.expectGrant()
	ctx := context.Background()

	_, err := f.svc.AddIssuer(ctx, "Acme University", testWallet("1"), "admin")
	require.NoError(t, err)

	// Ledger reachable and says no: the answer is no, roster notwithstanding.
	f.client.EXPECT().
		HasRole(gomock.Any(), testWallet("1")).
		Return(false, nil)

	authorized, err := f.svc.IsAuthorized(ctx, testWallet("1"))
	require.NoError(t, err)
	assert.False(t, authorized)

	// The denial also replaced the stale cache entry.
	cached, found := f.cache.entries[testWallet("1")]
	assert.True(t, found)
	assert.False(t, cached)
}

func TestIsAuthorizedFallsBackToCacheDuringOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.entries[testWallet("1")] = true
	f.client.EXPECT().
		HasRole(gomock.Any(), testWallet("1")).
		Return(false, ledger.Unavailable(errors.New("connection refused")))

	authorized, err := f.svc.IsAuthorized(ctx, testWallet("1"))
	require.NoError(t, err)
	assert.True(t, authorized)
}

func TestIsAuthorizedFallsBackToRosterDuringOutage(t *testing.T) {
	f := newFixture(t)
	f.expectGrant()
	ctx := context.Background()

	_, err := f.svc.AddIssuer(ctx, "Acme University", testWallet("1"), "admin")
	require.NoError(t, err)
	f.cache.entries = map[domain.WalletAddress]bool{}

	f.client.EXPECT().
		HasRole(gomock.Any(), gomock.Any()).
		Return(false, ledger.Unavailable(errors.New("connection refused"))).
		Times(2)

	authorized, err := f.svc.IsAuthorized(ctx, testWallet("1"))
	require.NoError(t, err)
	assert.True(t, authorized)

	// An unknown wallet during an outage is simply unauthorized.
	authorized, err = f.svc.IsAuthorized(ctx, testWallet("2"))
	require.NoError(t, err)
	assert.False(t, authorized)
}
