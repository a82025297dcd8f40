// Package postgres persists issuer requests and the issuer roster in
// PostgreSQL. The one-pending-request-per-wallet rule is a partial unique
// index, so concurrent submissions race on the constraint, not on reads.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"credlock/internal/issuer/models"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
	"credlock/pkg/platform/tx"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func q(ctx context.Context, db *sql.DB) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return db
}

// RequestStore persists issuer requests.
type RequestStore struct {
	db *sql.DB
}

func NewRequestStore(db *sql.DB) *RequestStore {
	return &RequestStore{db: db}
}

func (s *RequestStore) Insert(ctx context.Context, request *models.Request) error {
	_, err := q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO issuer_requests (id, issuer_name, wallet_address, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5)`,
		request.ID,
		request.Name,
		request.Wallet.String(),
		string(request.Status),
		request.SubmittedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pending request exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert issuer request: %w", err)
	}
	return nil
}

func (s *RequestStore) Get(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	row := q(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, issuer_name, wallet_address, status, submitted_at, resolved_at
		FROM issuer_requests
		WHERE id = $1`,
		id,
	)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find issuer request: %w", err)
	}
	return request, nil
}

// Resolve moves a PENDING request to a terminal status in one guarded update.
func (s *RequestStore) Resolve(ctx context.Context, id uuid.UUID, status models.RequestStatus, at time.Time) (*models.Request, error) {
	row := q(ctx, s.db).QueryRowContext(ctx, `
		UPDATE issuer_requests
		SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = $4
		RETURNING id, issuer_name, wallet_address, status, submitted_at, resolved_at`,
		id,
		string(status),
		at,
		string(models.RequestPending),
	)
	request, err := scanRequest(row)
	if err == nil {
		return request, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve issuer request: %w", err)
	}

	if _, getErr := s.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("request already resolved: %w", sentinel.ErrInvalidState)
}

func (s *RequestStore) List(ctx context.Context, status models.RequestStatus) ([]*models.Request, error) {
	query := `
		SELECT id, issuer_name, wallet_address, status, submitted_at, resolved_at
		FROM issuer_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY submitted_at DESC`

	rows, err := q(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issuer requests: %w", err)
	}
	defer rows.Close()

	var out []*models.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issuer request: %w", err)
		}
		out = append(out, request)
	}
	return out, rows.Err()
}

// IssuerStore persists the authorized issuer roster.
type IssuerStore struct {
	db *sql.DB
}

func NewIssuerStore(db *sql.DB) *IssuerStore {
	return &IssuerStore{db: db}
}

// Upsert activates the wallet as an issuer, reactivating a revoked row.
func (s *IssuerStore) Upsert(ctx context.Context, issuer *models.Issuer) error {
	_, err := q(ctx, s.db).ExecContext(ctx, `
		INSERT INTO issuers (wallet_address, name, status, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_address) DO UPDATE
		SET name = EXCLUDED.name, status = EXCLUDED.status, revoked_at = NULL`,
		issuer.Wallet.String(),
		issuer.Name,
		string(issuer.Status),
		issuer.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert issuer: %w", err)
	}
	return nil
}

func (s *IssuerStore) Get(ctx context.Context, wallet domain.WalletAddress) (*models.Issuer, error) {
	row := q(ctx, s.db).QueryRowContext(ctx, `
		SELECT wallet_address, name, status, added_at, revoked_at
		FROM issuers
		WHERE wallet_address = $1`,
		wallet.String(),
	)
	issuer, err := scanIssuer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find issuer: %w", err)
	}
	return issuer, nil
}

func (s *IssuerStore) MarkRevoked(ctx context.Context, wallet domain.WalletAddress, at time.Time) (*models.Issuer, error) {
	row := q(ctx, s.db).QueryRowContext(ctx, `
		UPDATE issuers
		SET status = $2, revoked_at = $3
		WHERE wallet_address = $1 AND status = $4
		RETURNING wallet_address, name, status, added_at, revoked_at`,
		wallet.String(),
		string(models.IssuerRevoked),
		at,
		string(models.IssuerActive),
	)
	issuer, err := scanIssuer(row)
	if err == nil {
		return issuer, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revoke issuer: %w", err)
	}

	if _, getErr := s.Get(ctx, wallet); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("issuer already revoked: %w", sentinel.ErrInvalidState)
}

func (s *IssuerStore) List(ctx context.Context) ([]*models.Issuer, error) {
	rows, err := q(ctx, s.db).QueryContext(ctx, `
		SELECT wallet_address, name, status, added_at, revoked_at
		FROM issuers
		ORDER BY added_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list issuers: %w", err)
	}
	defer rows.Close()

	var out []*models.Issuer
	for rows.Next() {
		issuer, err := scanIssuer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issuer: %w", err)
		}
		out = append(out, issuer)
	}
	return out, rows.Err()
}

func (s *IssuerStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := q(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issuers WHERE status = $1`,
		string(models.IssuerActive),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count issuers: %w", err)
	}
	return count, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanRequest(r row) (*models.Request, error) {
	var (
		request    models.Request
		wallet     string
		status     string
		resolvedAt sql.NullTime
	)
	if err := r.Scan(&request.ID, &request.Name, &wallet, &status, &request.SubmittedAt, &resolvedAt); err != nil {
		return nil, err
	}
	request.Wallet = domain.WalletAddress(wallet)
	request.Status = models.RequestStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		request.ResolvedAt = &t
	}
	return &request, nil
}

func scanIssuer(r row) (*models.Issuer, error) {
	var (
		issuer    models.Issuer
		wallet    string
		status    string
		revokedAt sql.NullTime
	)
	if err := r.Scan(&wallet, &issuer.Name, &status, &issuer.AddedAt, &revokedAt); err != nil {
		return nil, err
	}
	issuer.Wallet = domain.WalletAddress(wallet)
	issuer.Status = models.IssuerStatus(status)
	if revokedAt.Valid {
		t := revokedAt.Time
		issuer.RevokedAt = &t
	}
	return &issuer, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
