// Package tx carries a database transaction through the context so that
// stores sharing a *sql.DB can join a caller's transaction. The audit store
// uses this to append events atomically with the domain write that caused
// them.
package tx

import (
	"context"
	"database/sql"
)

type contextKey struct{}

// WithTx returns a context carrying the transaction. A nil transaction
// leaves the context unchanged.
func WithTx(ctx context.Context, transaction *sql.Tx) context.Context {
	if transaction == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, transaction)
}

// From returns the transaction carried by the context, if any. Stores fall
// back to their own *sql.DB when none is present.
func From(ctx context.Context) (*sql.Tx, bool) {
	transaction, ok := ctx.Value(contextKey{}).(*sql.Tx)
	return transaction, ok
}
