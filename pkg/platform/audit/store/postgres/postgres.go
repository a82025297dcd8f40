// Package postgres persists audit events in PostgreSQL. Appends participate
// in a caller transaction when one is carried in context, so audit rows commit
// atomically with the state change they describe.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"credlock/pkg/platform/audit/models"
	"credlock/pkg/platform/tx"
)

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

func (s *Store) Append(ctx context.Context, event models.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshaling audit details: %w", err)
	}

	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, actor, subject, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, string(event.Kind), event.Actor, event.Subject, details, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, kind models.Kind, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, kind, actor, subject, details, created_at
		FROM audit_events`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, string(kind))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			event   models.Event
			details []byte
		)
		if err := rows.Scan(&event.ID, &event.Kind, &event.Actor, &event.Subject, &details, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &event.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling audit details: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.q(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting audit events: %w", err)
	}
	return count, nil
}
