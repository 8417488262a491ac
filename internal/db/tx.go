package db

import (
	"context"
	"database/sql"

	"mentorship/common/metrics"

	"github.com/uptrace/bun"
)

// TxFunc is one step sequence executed inside a single transaction.
type TxFunc func(ctx context.Context, tx bun.IDB) error

// TxRunner opens a transactional scope. Any error returned by fn rolls the whole
// scope back; a nil return commits.
type TxRunner interface {
	RunInTx(ctx context.Context, op string, fn TxFunc) error
}

type txRunner struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewTxRunner(db *bun.DB, m *metrics.Metrics) TxRunner {
	return &txRunner{db: db, metrics: m}
}

func (r *txRunner) RunInTx(ctx context.Context, op string, fn TxFunc) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx)
	})
	if err != nil {
		r.metrics.Database.RecordRollback(ctx, op)
	}
	return err
}
