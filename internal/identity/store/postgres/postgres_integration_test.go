//go:build integration

package postgres_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credlock/internal/identity/models"
	"credlock/internal/identity/store/postgres"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
	"credlock/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.NewStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "identities")
	s.Require().NoError(err)
}

func testKey(suffix string) domain.IdentityKey {
	return domain.IdentityKey("0x" + strings.Repeat("0", 64-len(suffix)) + suffix)
}

func testWallet(suffix string) domain.WalletAddress {
	return domain.WalletAddress("0x" + strings.Repeat("0", 40-len(suffix)) + suffix)
}

func newIdentity(keySuffix, walletSuffix string) *models.Identity {
	return &models.Identity{
		Key:          testKey(keySuffix),
		DisplayName:  "Ada Lovelace",
		Wallet:       testWallet(walletSuffix),
		RegisteredAt: time.Now().UTC(),
	}
}

func (s *PostgresStoreSuite) TestInsertAndGetRoundtrip() {
	ctx := context.Background()
	identity := newIdentity("a1", "b1")

	s.Require().NoError(s.store.Insert(ctx, identity))

	got, err := s.store.Get(ctx, identity.Key)
	s.Require().NoError(err)
	s.Equal(identity.Key, got.Key)
	s.Equal(identity.DisplayName, got.DisplayName)
	s.Equal(identity.Wallet, got.Wallet)
	s.WithinDuration(identity.RegisteredAt, got.RegisteredAt, time.Second)
}

func (s *PostgresStoreSuite) TestInsertDuplicateKeyIsConflict() {
	ctx := context.Background()

	s.Require().NoError(s.store.Insert(ctx, newIdentity("a1", "b1")))

	err := s.store.Insert(ctx, newIdentity("a1", "b2"))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestInsertDuplicateWalletIsAlreadyUsed() {
	ctx := context.Background()

	s.Require().NoError(s.store.Insert(ctx, newIdentity("a1", "b1")))

	err := s.store.Insert(ctx, newIdentity("a2", "b1"))
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestGetByWallet() {
	ctx := context.Background()
	identity := newIdentity("a1", "b1")

	s.Require().NoError(s.store.Insert(ctx, identity))

	got, err := s.store.GetByWallet(ctx, identity.Wallet)
	s.Require().NoError(err)
	s.Equal(identity.Key, got.Key)

	_, err = s.store.GetByWallet(ctx, testWallet("ff"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateWallet() {
	ctx := context.Background()
	identity := newIdentity("a1", "b1")

	s.Require().NoError(s.store.Insert(ctx, identity))

	updated, err := s.store.UpdateWallet(ctx, identity.Key, testWallet("c1"))
	s.Require().NoError(err)
	s.Equal(testWallet("c1"), updated.Wallet)

	// Old binding is gone.
	_, err = s.store.GetByWallet(ctx, identity.Wallet)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateWalletToTakenWallet() {
	ctx := context.Background()

	s.Require().NoError(s.store.Insert(ctx, newIdentity("a1", "b1")))
	s.Require().NoError(s.store.Insert(ctx, newIdentity("a2", "b2")))

	_, err := s.store.UpdateWallet(ctx, testKey("a1"), testWallet("b2"))
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestUpdateWalletUnknownKey() {
	_, err := s.store.UpdateWallet(context.Background(), testKey("a1"), testWallet("b1"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCount() {
	ctx := context.Background()

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.EqualValues(0, count)

	s.Require().NoError(s.store.Insert(ctx, newIdentity("a1", "b1")))
	s.Require().NoError(s.store.Insert(ctx, newIdentity("a2", "b2")))

	count, err = s.store.Count(ctx)
	s.Require().NoError(err)
	s.EqualValues(2, count)
}

// TestConcurrentInsertSameKey drives concurrent registrations of the same
// identity through the database constraint and expects exactly one winner.
func (s *PostgresStoreSuite) TestConcurrentInsertSameKey() {
	ctx := context.Background()

	const goroutines = 20
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	var conflicts atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			identity := newIdentity("a1", "b1")
			identity.Wallet = testWallet("b1") // all racing on the same key+wallet

			err := s.store.Insert(ctx, identity)
			switch {
			case err == nil:
				succeeded.Add(1)
			default:
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.EqualValues(1, succeeded.Load())
	s.EqualValues(goroutines-1, conflicts.Load())
}
