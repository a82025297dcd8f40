// Package memory stores certificate records in memory for tests and local
// development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"credlock/internal/certificate/models"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
)

type Store struct {
	mu      sync.RWMutex
	records map[domain.ContentHash]*models.Record
}

func NewStore() *Store {
	return &Store{records: make(map[domain.ContentHash]*models.Record)}
}

// Insert atomically creates the record if the content hash is free.
func (s *Store) Insert(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ContentHash]; exists {
		return fmt.Errorf("content hash taken: %w", sentinel.ErrConflict)
	}
	clone := *record
	s.records[record.ContentHash] = &clone
	return nil
}

func (s *Store) Get(_ context.Context, hash domain.ContentHash) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *Store) MarkRevoked(_ context.Context, hash domain.ContentHash, txRef, blockRef string, at time.Time) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if record.Status == models.StatusRevoked {
		return nil, fmt.Errorf("already revoked: %w", sentinel.ErrInvalidState)
	}

	record.Status = models.StatusRevoked
	record.RevokedAt = &at
	if txRef != "" {
		record.LedgerTxRef = txRef
	}
	if blockRef != "" {
		record.LedgerBlockRef = blockRef
	}
	clone := *record
	return &clone, nil
}

func (s *Store) ListBySubjectWallet(_ context.Context, wallet domain.WalletAddress) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Record
	for _, record := range s.records {
		if record.SubjectWallet != wallet || record.Status != models.StatusIssued {
			continue
		}
		clone := *record
		out = append(out, &clone)
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) ListAll(_ context.Context, limit int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Record, 0, len(s.records))
	for _, record := range s.records {
		clone := *record
		out = append(out, &clone)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListUnconfirmed returns records lacking a finality-confirmed block ref.
func (s *Store) ListUnconfirmed(_ context.Context, limit int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Record
	for _, record := range s.records {
		if record.Confirmed() {
			continue
		}
		clone := *record
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SetLedgerRefs fills in ledger references discovered by the sweep.
func (s *Store) SetLedgerRefs(_ context.Context, hash domain.ContentHash, txRef, blockRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[hash]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.LedgerTxRef = txRef
	record.LedgerBlockRef = blockRef
	return nil
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func sortNewestFirst(records []*models.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].IssuedAt.Equal(records[j].IssuedAt) {
			return records[i].ContentHash > records[j].ContentHash
		}
		return records[i].IssuedAt.After(records[j].IssuedAt)
	})
}
