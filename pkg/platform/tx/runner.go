package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "credlock/pkg/domain-errors"
)

// Runner provides a transactional boundary for service mutations.
// Implementations may wrap a database transaction or an in-memory lock.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

// InMemoryRunner serializes mutations for in-memory stores.
type InMemoryRunner struct {
	mu      sync.Mutex
	timeout time.Duration
}

func NewInMemoryRunner() *InMemoryRunner {
	return &InMemoryRunner{}
}

func (t *InMemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	hookCtx, h := withHooks(ctx)
	if err := fn(hookCtx); err != nil {
		return err
	}
	h.run()
	return nil
}

// PostgresRunner opens a SQL transaction and carries it in context so every
// store sharing the pool participates in the same transaction. Nested calls
// reuse the transaction already in flight.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRunner(db *sql.DB) *PostgresRunner {
	return &PostgresRunner{db: db}
}

func (t *PostgresRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback() //nolint:errcheck // rollback after commit is a no-op
	}()

	txCtx, h := withHooks(WithTx(ctx, sqlTx))
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	h.run()
	return nil
}
