// Package postgres persists identities in PostgreSQL. Uniqueness of both the
// identity key and the wallet is enforced by database constraints, so the
// check-and-insert race is closed even across processes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"credlock/internal/identity/models"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
	"credlock/pkg/platform/tx"
)

const (
	keyConstraint    = "identities_pkey"
	walletConstraint = "identities_wallet_key"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *Store) Insert(ctx context.Context, identity *models.Identity) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO identities (identity_key, display_name, wallet_address, registered_at)
		VALUES ($1, $2, $3, $4)`,
		identity.Key.String(),
		identity.DisplayName,
		identity.Wallet.String(),
		identity.RegisteredAt,
	)
	if err != nil {
		switch violatedConstraint(err) {
		case keyConstraint:
			return fmt.Errorf("identity key taken: %w", sentinel.ErrConflict)
		case walletConstraint:
			return fmt.Errorf("wallet taken: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key domain.IdentityKey) (*models.Identity, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT identity_key, display_name, wallet_address, registered_at
		FROM identities
		WHERE identity_key = $1`,
		key.String(),
	)
	return scanIdentity(row, "find identity by key")
}

func (s *Store) GetByWallet(ctx context.Context, wallet domain.WalletAddress) (*models.Identity, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT identity_key, display_name, wallet_address, registered_at
		FROM identities
		WHERE wallet_address = $1`,
		wallet.String(),
	)
	return scanIdentity(row, "find identity by wallet")
}

// UpdateWallet swaps the bound wallet in a single statement; the wallet unique
// constraint arbitrates concurrent migrations to the same wallet.
func (s *Store) UpdateWallet(ctx context.Context, key domain.IdentityKey, wallet domain.WalletAddress) (*models.Identity, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		UPDATE identities
		SET wallet_address = $2
		WHERE identity_key = $1
		RETURNING identity_key, display_name, wallet_address, registered_at`,
		key.String(),
		wallet.String(),
	)
	identity, err := scanIdentity(row, "update wallet")
	if err != nil {
		if violatedConstraint(err) == walletConstraint {
			return nil, fmt.Errorf("wallet taken: %w", sentinel.ErrAlreadyUsed)
		}
		return nil, err
	}
	return identity, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

func scanIdentity(row *sql.Row, op string) (*models.Identity, error) {
	var (
		identity models.Identity
		key      string
		wallet   string
	)
	if err := row.Scan(&key, &identity.DisplayName, &wallet, &identity.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	identity.Key = domain.IdentityKey(key)
	identity.Wallet = domain.WalletAddress(wallet)
	return &identity, nil
}

// violatedConstraint returns the name of the unique constraint a statement
// violated, or "" when the error is something else.
func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}
