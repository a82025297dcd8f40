package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context so stores that share a pool can
// participate in the same transaction (state change + audit append).
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

type hookCtxKey struct{}

var hookKey = hookCtxKey{}

// hooks collects callbacks to run once the enclosing transaction commits.
// A rolled-back transaction discards them.
type hooks struct {
	fns []func()
}

func withHooks(ctx context.Context) (context.Context, *hooks) {
	h := &hooks{}
	return context.WithValue(ctx, hookKey, h), h
}

func (h *hooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

// OnCommit defers fn until the enclosing transaction commits. Outside a
// transaction fn runs immediately.
func OnCommit(ctx context.Context, fn func()) {
	if h, ok := ctx.Value(hookKey).(*hooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn()
}
