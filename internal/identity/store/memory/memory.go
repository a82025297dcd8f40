// Package memory stores identities in memory for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"credlock/internal/identity/models"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
)

type Store struct {
	mu         sync.RWMutex
	identities map[domain.IdentityKey]*models.Identity
	walletIdx  map[domain.WalletAddress]domain.IdentityKey
}

func NewStore() *Store {
	return &Store{
		identities: make(map[domain.IdentityKey]*models.Identity),
		walletIdx:  make(map[domain.WalletAddress]domain.IdentityKey),
	}
}

// Insert atomically creates the identity if both the key and the wallet are
// free.
func (s *Store) Insert(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.Key]; exists {
		return fmt.Errorf("identity key taken: %w", sentinel.ErrConflict)
	}
	if _, exists := s.walletIdx[identity.Wallet]; exists {
		return fmt.Errorf("wallet taken: %w", sentinel.ErrAlreadyUsed)
	}

	clone := *identity
	s.identities[identity.Key] = &clone
	s.walletIdx[identity.Wallet] = identity.Key
	return nil
}

func (s *Store) Get(_ context.Context, key domain.IdentityKey) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *identity
	return &clone, nil
}

func (s *Store) GetByWallet(_ context.Context, wallet domain.WalletAddress) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.walletIdx[wallet]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.identities[key]
	return &clone, nil
}

// UpdateWallet swaps the wallet bound to the key, keeping the wallet index in
// step under one lock so a partial swap can never be observed.
func (s *Store) UpdateWallet(_ context.Context, key domain.IdentityKey, wallet domain.WalletAddress) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if boundTo, exists := s.walletIdx[wallet]; exists && boundTo != key {
		return nil, fmt.Errorf("wallet taken: %w", sentinel.ErrAlreadyUsed)
	}

	delete(s.walletIdx, identity.Wallet)
	identity.Wallet = wallet
	s.walletIdx[wallet] = key

	clone := *identity
	return &clone, nil
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.identities)), nil
}
