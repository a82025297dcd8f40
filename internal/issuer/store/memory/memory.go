// Package memory stores issuer requests and the issuer roster in memory for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"credlock/internal/issuer/models"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
)

// RequestStore keeps issuer requests with a one-pending-per-wallet guard.
type RequestStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*models.Request
}

func NewRequestStore() *RequestStore {
	return &RequestStore{requests: make(map[uuid.UUID]*models.Request)}
}

// Insert creates the request unless the wallet already has a PENDING one.
func (s *RequestStore) Insert(_ context.Context, request *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.requests {
		if existing.Wallet == request.Wallet && existing.Status == models.RequestPending {
			return fmt.Errorf("pending request exists: %w", sentinel.ErrConflict)
		}
	}
	clone := *request
	s.requests[request.ID] = &clone
	return nil
}

func (s *RequestStore) Get(_ context.Context, id uuid.UUID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *request
	return &clone, nil
}

// Resolve moves a PENDING request to a terminal status.
func (s *RequestStore) Resolve(_ context.Context, id uuid.UUID, status models.RequestStatus, at time.Time) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if request.Status.Resolved() {
		return nil, fmt.Errorf("request already resolved: %w", sentinel.ErrInvalidState)
	}

	request.Status = status
	request.ResolvedAt = &at
	clone := *request
	return &clone, nil
}

// List returns requests newest first, optionally filtered by status.
func (s *RequestStore) List(_ context.Context, status models.RequestStatus) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Request
	for _, request := range s.requests {
		if status != "" && request.Status != status {
			continue
		}
		clone := *request
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

// IssuerStore keeps the authorized issuer roster.
type IssuerStore struct {
	mu      sync.RWMutex
	issuers map[domain.WalletAddress]*models.Issuer
}

func NewIssuerStore() *IssuerStore {
	return &IssuerStore{issuers: make(map[domain.WalletAddress]*models.Issuer)}
}

// Upsert activates the wallet as an issuer, reactivating a revoked row.
func (s *IssuerStore) Upsert(_ context.Context, issuer *models.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *issuer
	s.issuers[issuer.Wallet] = &clone
	return nil
}

func (s *IssuerStore) Get(_ context.Context, wallet domain.WalletAddress) (*models.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issuer, ok := s.issuers[wallet]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *issuer
	return &clone, nil
}

// MarkRevoked flips an ACTIVE issuer to REVOKED.
func (s *IssuerStore) MarkRevoked(_ context.Context, wallet domain.WalletAddress, at time.Time) (*models.Issuer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuer, ok := s.issuers[wallet]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if issuer.Status == models.IssuerRevoked {
		return nil, fmt.Errorf("issuer already revoked: %w", sentinel.ErrInvalidState)
	}

	issuer.Status = models.IssuerRevoked
	issuer.RevokedAt = &at
	clone := *issuer
	return &clone, nil
}

// List returns the roster, most recently added first.
func (s *IssuerStore) List(_ context.Context) ([]*models.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Issuer, 0, len(s.issuers))
	for _, issuer := range s.issuers {
		clone := *issuer
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out, nil
}

func (s *IssuerStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, issuer := range s.issuers {
		if issuer.Status == models.IssuerActive {
			count++
		}
	}
	return count, nil
}
