// Package service implements the identity registry: one identity key bound to
// exactly one wallet, with conflicts detected by the storage layer's unique
// constraints rather than read-then-write checks.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"credlock/internal/identity/models"
	"credlock/internal/platform/metrics"
	"credlock/pkg/domain"
	dErrors "credlock/pkg/domain-errors"
	auditmodels "credlock/pkg/platform/audit/models"
	"credlock/pkg/platform/sentinel"
	"credlock/pkg/platform/tx"
)

// Store persists identities. Implementations signal uniqueness violations with
// sentinel errors: ErrConflict when the identity key is taken, ErrAlreadyUsed
// when the wallet is taken.
type Store interface {
	Insert(ctx context.Context, identity *models.Identity) error
	Get(ctx context.Context, key domain.IdentityKey) (*models.Identity, error)
	GetByWallet(ctx context.Context, wallet domain.WalletAddress) (*models.Identity, error)
	UpdateWallet(ctx context.Context, key domain.IdentityKey, wallet domain.WalletAddress) (*models.Identity, error)
	Count(ctx context.Context) (int64, error)
}

// AuditPublisher records audit events inside the caller's transaction.
type AuditPublisher interface {
	Record(ctx context.Context, event auditmodels.Event) error
}

type Service struct {
	store   Store
	tx      tx.Runner
	logger  *slog.Logger
	audit   AuditPublisher
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds an identity key to a wallet. Re-registering an identical
// binding returns the existing identity; a key bound to a different wallet or
// a wallet bound to a different key is a conflict.
func (s *Service) Register(ctx context.Context, key domain.IdentityKey, displayName string, wallet domain.WalletAddress) (*models.Identity, error) {
	displayName = strings.TrimSpace(displayName)
	switch {
	case key.IsZero():
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity key required")
	case displayName == "":
		return nil, dErrors.New(dErrors.CodeBadRequest, "display name required")
	case wallet.IsZero():
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}

	identity := &models.Identity{
		Key:          key,
		DisplayName:  displayName,
		Wallet:       wallet,
		RegisteredAt: time.Now().UTC(),
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Insert(ctx, identity); err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindIdentityRegistered,
			"",
			key.String(),
			map[string]string{"wallet": wallet.String()},
		))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			if existing, getErr := s.store.Get(ctx, key); getErr == nil && existing.Wallet == wallet {
				return existing, nil
			}
			return nil, dErrors.New(dErrors.CodeDuplicateIdentity, "identity already registered with a different wallet")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.New(dErrors.CodeDuplicateWallet, "wallet already bound to another identity")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register identity")
		}
	}

	if s.metrics != nil {
		s.metrics.IdentitiesRegistered.Inc()
	}
	s.logger.InfoContext(ctx, "identity registered",
		"identity_key", key.String(),
		"wallet", wallet.Short(),
	)
	return identity, nil
}

// Lookup fetches an identity by key.
func (s *Service) Lookup(ctx context.Context, key domain.IdentityKey) (*models.Identity, error) {
	if key.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity key required")
	}
	identity, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return identity, nil
}

// LookupByWallet fetches an identity by its bound wallet address.
func (s *Service) LookupByWallet(ctx context.Context, wallet domain.WalletAddress) (*models.Identity, error) {
	if wallet.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}
	identity, err := s.store.GetByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity")
	}
	return identity, nil
}

// MigrateWallet atomically replaces the wallet bound to an identity key. The
// swap and its audit record commit together or not at all.
func (s *Service) MigrateWallet(ctx context.Context, key domain.IdentityKey, newWallet domain.WalletAddress) (*models.Identity, error) {
	if key.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identity key required")
	}
	if newWallet.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "wallet address required")
	}

	var updated *models.Identity
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.store.UpdateWallet(ctx, key, newWallet)
		if err != nil {
			return err
		}
		return s.recordAudit(ctx, auditmodels.New(
			auditmodels.KindWalletMigrated,
			"",
			key.String(),
			map[string]string{"wallet": newWallet.String()},
		))
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.New(dErrors.CodeWalletInUse, "wallet already bound to another identity")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to migrate wallet")
		}
	}

	if s.metrics != nil {
		s.metrics.WalletsMigrated.Inc()
	}
	s.logger.InfoContext(ctx, "wallet migrated",
		"identity_key", key.String(),
		"wallet", newWallet.Short(),
	)
	return updated, nil
}

// Count reports the number of registered identities.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

func (s *Service) recordAudit(ctx context.Context, event auditmodels.Event) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, event)
}
