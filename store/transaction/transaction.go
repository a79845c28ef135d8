package transaction

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bituncoin/btnledger/core"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.TransactionStore {
	return &txStore{db: db}
}

type txStore struct {
	db *nap.DB
}

func (s *txStore) Create(ctx context.Context, tx *core.Transaction) error {
	b := sq.Insert("transactions").
		Columns("id", "trace_id", "from_address", "to_address", "amount", "currency",
			"kind", "status", "reason", "cross_chain", "target_chain", "created_at").
		Values(tx.ID, nullable(tx.TraceID), tx.From, tx.To, tx.Amount, tx.Currency,
			tx.Kind, tx.Status, tx.Reason, tx.CrossChain, tx.TargetChain, tx.CreatedAt)
	_, err := b.RunWith(s.db).ExecContext(ctx)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t
}

func (s *txStore) Find(ctx context.Context, id string) (*core.Transaction, error) {
	return s.findWhere(ctx, sq.Eq{"id": id})
}

func (s *txStore) FindTrace(ctx context.Context, traceID string) (*core.Transaction, error) {
	return s.findWhere(ctx, sq.Eq{"trace_id": traceID})
}

func (s *txStore) findWhere(ctx context.Context, pred any) (*core.Transaction, error) {
	b := sq.Select(scanColumns...).From("transactions").Where(pred)
	row := b.RunWith(s.db).QueryRowContext(ctx)

	var tx core.Transaction
	if err := scanTransaction(row, &tx); err != nil {
		return nil, err
	}

	return &tx, nil
}

func (s *txStore) UpdateStatus(ctx context.Context, tx *core.Transaction, to core.TransactionStatus, reason string) error {
	b := sq.Update("transactions").
		Set("status", to).
		Set("reason", reason).
		Set("amount", tx.Amount).
		Set("applied_at", nullableTime(tx.AppliedAt)).
		Where("id = ? AND status = ?", tx.ID, tx.Status)
	result, err := b.RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return core.ErrConcurrentModification
	}

	tx.Status = to
	tx.Reason = reason
	return nil
}

func (s *txStore) ListAddress(ctx context.Context, address string, limit int) ([]*core.Transaction, error) {
	b := sq.Select(scanColumns...).
		From("transactions").
		Where(sq.Or{sq.Eq{"from_address": address}, sq.Eq{"to_address": address}}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	return s.list(ctx, b)
}

func (s *txStore) ListStatus(ctx context.Context, status core.TransactionStatus, limit int) ([]*core.Transaction, error) {
	b := sq.Select(scanColumns...).
		From("transactions").
		Where(sq.Eq{"status": status}).
		OrderBy("created_at").
		Limit(uint64(limit))
	return s.list(ctx, b)
}

func (s *txStore) list(ctx context.Context, b sq.SelectBuilder) ([]*core.Transaction, error) {
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var txs []*core.Transaction
	for rows.Next() {
		var tx core.Transaction
		if err := scanTransaction(rows, &tx); err != nil {
			return nil, err
		}

		txs = append(txs, &tx)
	}

	return txs, rows.Err()
}
