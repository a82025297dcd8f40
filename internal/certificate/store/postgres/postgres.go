// Package postgres persists certificate records in PostgreSQL. The content
// hash primary key is the single arbiter for concurrent issuance of the same
// document, which holds across processes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"credlock/internal/certificate/models"
	"credlock/pkg/domain"
	"credlock/pkg/platform/sentinel"
	"credlock/pkg/platform/tx"
)

const selectColumns = `
	content_hash, subject_key, subject_wallet, issuer_key, issuer_wallet,
	title, ledger_tx_ref, ledger_block_ref, blob_ref, status, issued_at, revoked_at`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
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

func (s *Store) Insert(ctx context.Context, record *models.Record) error {
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO certificates (
			content_hash, subject_key, subject_wallet, issuer_key, issuer_wallet,
			title, ledger_tx_ref, ledger_block_ref, blob_ref, status, issued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		record.ContentHash.String(),
		record.SubjectKey.String(),
		record.SubjectWallet.String(),
		record.IssuerKey.String(),
		record.IssuerWallet.String(),
		record.Title,
		record.LedgerTxRef,
		record.LedgerBlockRef,
		record.BlobRef,
		string(record.Status),
		record.IssuedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("content hash taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, hash domain.ContentHash) (*models.Record, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM certificates WHERE content_hash = $1`,
		hash.String(),
	)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return record, nil
}

// MarkRevoked flips status in one guarded statement. Zero rows affected means
// either the record is missing or it is already revoked; the follow-up read
// tells the two apart.
func (s *Store) MarkRevoked(ctx context.Context, hash domain.ContentHash, txRef, blockRef string, at time.Time) (*models.Record, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		UPDATE certificates
		SET status = $2,
		    revoked_at = $3,
		    ledger_tx_ref = COALESCE(NULLIF($4, ''), ledger_tx_ref),
		    ledger_block_ref = COALESCE(NULLIF($5, ''), ledger_block_ref)
		WHERE content_hash = $1 AND status = $6
		RETURNING `+selectColumns,
		hash.String(),
		string(models.StatusRevoked),
		at,
		txRef,
		blockRef,
		string(models.StatusIssued),
	)
	record, err := scanRecord(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revoke certificate: %w", err)
	}

	if _, getErr := s.Get(ctx, hash); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("already revoked: %w", sentinel.ErrInvalidState)
}

func (s *Store) ListBySubjectWallet(ctx context.Context, wallet domain.WalletAddress) ([]*models.Record, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+selectColumns+`
		FROM certificates
		WHERE subject_wallet = $1 AND status = $2
		ORDER BY issued_at DESC, content_hash DESC`,
		wallet.String(),
		string(models.StatusIssued),
	)
	if err != nil {
		return nil, fmt.Errorf("list certificates by wallet: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) ListAll(ctx context.Context, limit int) ([]*models.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+selectColumns+`
		FROM certificates
		ORDER BY issued_at DESC, content_hash DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return collectRecords(rows)
}

// ListUnconfirmed returns records lacking a finality-confirmed block ref,
// oldest first so the sweep retries the longest-outstanding ones first.
func (s *Store) ListUnconfirmed(ctx context.Context, limit int) ([]*models.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+selectColumns+`
		FROM certificates
		WHERE ledger_block_ref = ''
		ORDER BY issued_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unconfirmed certificates: %w", err)
	}
	return collectRecords(rows)
}

func (s *Store) SetLedgerRefs(ctx context.Context, hash domain.ContentHash, txRef, blockRef string) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE certificates
		SET ledger_tx_ref = $2, ledger_block_ref = $3
		WHERE content_hash = $1`,
		hash.String(),
		txRef,
		blockRef,
	)
	if err != nil {
		return fmt.Errorf("set ledger refs: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set ledger refs rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return count, nil
}

type recordRow interface {
	Scan(dest ...any) error
}

func scanRecord(row recordRow) (*models.Record, error) {
	var (
		record    models.Record
		hash      string
		subKey    string
		subWallet string
		issKey    string
		issWallet string
		status    string
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&hash, &subKey, &subWallet, &issKey, &issWallet,
		&record.Title, &record.LedgerTxRef, &record.LedgerBlockRef,
		&record.BlobRef, &status, &record.IssuedAt, &revokedAt,
	)
	if err != nil {
		return nil, err
	}
	record.ContentHash = domain.ContentHash(hash)
	record.SubjectKey = domain.IdentityKey(subKey)
	record.SubjectWallet = domain.WalletAddress(subWallet)
	record.IssuerKey = domain.IdentityKey(issKey)
	record.IssuerWallet = domain.WalletAddress(issWallet)
	record.Status = models.Status(status)
	if revokedAt.Valid {
		t := revokedAt.Time
		record.RevokedAt = &t
	}
	return &record, nil
}

func collectRecords(rows *sql.Rows) ([]*models.Record, error) {
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
