package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credlock/internal/identity/models"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
)

func identityFixture(key, wallet string) *models.Identity {
	return &models.Identity{
		Key:          domain.IdentityKey(key),
		DisplayName:  "Alice",
		Wallet:       domain.WalletAddress(wallet),
		RegisteredAt: time.Now().UTC(),
	}
}

func testKey(suffix string) string {
	return "0x" + strings.Repeat("a", 64-len(suffix)) + suffix
}

func testWallet(suffix string) string {
	return "0x" + strings.Repeat("b", 40-len(suffix)) + suffix
}

func TestInsertAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	identity := identityFixture(testKey("1"), testWallet("1"))
	require.NoError(t, store.Insert(ctx, identity))

	got, err := store.Get(ctx, identity.Key)
	require.NoError(t, err)
	assert.Equal(t, identity.Wallet, got.Wallet)

	byWallet, err := store.GetByWallet(ctx, identity.Wallet)
	require.NoError(t, err)
	assert.Equal(t, identity.Key, byWallet.Key)
}

func TestInsertDuplicateKey(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, identityFixture(testKey("1"), testWallet("1"))))

	err := store.Insert(ctx, identityFixture(testKey("1"), testWallet("2")))
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInsertDuplicateWallet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, identityFixture(testKey("1"), testWallet("1"))))

	err := store.Insert(ctx, identityFixture(testKey("2"), testWallet("1")))
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestUpdateWallet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	identity := identityFixture(testKey("1"), testWallet("1"))
	require.NoError(t, store.Insert(ctx, identity))

	updated, err := store.UpdateWallet(ctx, identity.Key, domain.WalletAddress(testWallet("9")))
	require.NoError(t, err)
	assert.Equal(t, testWallet("9"), updated.Wallet.String())

	// The old wallet is released, the new one resolves to the identity.
	_, err = store.GetByWallet(ctx, domain.WalletAddress(testWallet("1")))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	got, err := store.GetByWallet(ctx, domain.WalletAddress(testWallet("9")))
	require.NoError(t, err)
	assert.Equal(t, identity.Key, got.Key)
}

func TestUpdateWalletTaken(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, identityFixture(testKey("1"), testWallet("1"))))
	require.NoError(t, store.Insert(ctx, identityFixture(testKey("2"), testWallet("2"))))

	_, err := store.UpdateWallet(ctx, domain.IdentityKey(testKey("1")), domain.WalletAddress(testWallet("2")))
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestUpdateWalletSameWalletIsNoop(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	identity := identityFixture(testKey("1"), testWallet("1"))
	require.NoError(t, store.Insert(ctx, identity))

	updated, err := store.UpdateWallet(ctx, identity.Key, identity.Wallet)
	require.NoError(t, err)
	assert.Equal(t, identity.Wallet, updated.Wallet)
}

func TestUpdateWalletMissingIdentity(t *testing.T) {
	store := NewStore()

	_, err := store.UpdateWallet(context.Background(), domain.IdentityKey(testKey("1")), domain.WalletAddress(testWallet("1")))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCount(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, identityFixture(testKey("1"), testWallet("1"))))
	require.NoError(t, store.Insert(ctx, identityFixture(testKey("2"), testWallet("2"))))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}
