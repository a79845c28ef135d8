package bridge

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bituncoin/btnledger/core"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.BridgeIntentStore {
	return &intentStore{db: db}
}

type intentStore struct {
	db *nap.DB
}

var columns = []string{"transaction_id", "source_chain", "target_chain", "lock_id", "phase", "attempts", "created_at", "updated_at"}

func (s *intentStore) Create(ctx context.Context, intent *core.BridgeIntent) error {
	b := sq.Insert("bridge_intents").
		Columns("transaction_id", "source_chain", "target_chain", "lock_id", "phase", "created_at").
		Values(intent.TransactionID, intent.SourceChain, intent.TargetChain, intent.LockID, intent.Phase, intent.CreatedAt)
	_, err := b.RunWith(s.db).ExecContext(ctx)
	return err
}

func (s *intentStore) Find(ctx context.Context, transactionID string) (*core.BridgeIntent, error) {
	return s.findWhere(ctx, sq.Eq{"transaction_id": transactionID})
}

func (s *intentStore) FindLock(ctx context.Context, lockID string) (*core.BridgeIntent, error) {
	return s.findWhere(ctx, sq.Eq{"lock_id": lockID})
}

func (s *intentStore) findWhere(ctx context.Context, pred any) (*core.BridgeIntent, error) {
	b := sq.Select(columns...).From("bridge_intents").Where(pred)
	row := b.RunWith(s.db).QueryRowContext(ctx)

	var intent core.BridgeIntent
	if err := scanIntent(row, &intent); err != nil {
		return nil, err
	}

	return &intent, nil
}

func (s *intentStore) UpdatePhase(ctx context.Context, intent *core.BridgeIntent, to core.BridgePhase) error {
	b := sq.Update("bridge_intents").
		Set("phase", to).
		Set("lock_id", intent.LockID).
		Set("attempts", intent.Attempts).
		Set("updated_at", time.Now()).
		Where("transaction_id = ? AND phase = ?", intent.TransactionID, intent.Phase)
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

	intent.Phase = to
	return nil
}

func (s *intentStore) ListPhase(ctx context.Context, phase core.BridgePhase, limit int) ([]*core.BridgeIntent, error) {
	b := sq.Select(columns...).
		From("bridge_intents").
		Where(sq.Eq{"phase": phase}).
		OrderBy("updated_at").
		Limit(uint64(limit))
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var intents []*core.BridgeIntent
	for rows.Next() {
		var intent core.BridgeIntent
		if err := scanIntent(rows, &intent); err != nil {
			return nil, err
		}

		intents = append(intents, &intent)
	}

	return intents, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIntent(scanner scanner, intent *core.BridgeIntent) error {
	return scanner.Scan(
		&intent.TransactionID,
		&intent.SourceChain,
		&intent.TargetChain,
		&intent.LockID,
		&intent.Phase,
		&intent.Attempts,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
}
