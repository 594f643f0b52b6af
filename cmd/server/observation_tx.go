package main

import (
	"context"
	"database/sql"
	"time"

	obsstore "auditgov/internal/observation/store"
	txcontext "auditgov/pkg/platform/tx"
)

// observationPostgresTx runs a unit of work in one database transaction.
// The store joins it through the context, as does the audit outbox store.
type observationPostgresTx struct {
	db      *sql.DB
	store   obsstore.Store
	timeout time.Duration
}

func newObservationPostgresTx(db *sql.DB, store obsstore.Store, timeout time.Duration) *observationPostgresTx {
	return &observationPostgresTx{db: db, store: store, timeout: timeout}
}

func (t *observationPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, s obsstore.Store) error) error {
	return txcontext.Run(ctx, t.db, t.timeout, func(ctx context.Context) error {
		return fn(ctx, t.store)
	})
}
