package stake

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/bituncoin/btnledger/core"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.StakeStore {
	return &stakeStore{db: db}
}

type stakeStore struct {
	db *nap.DB
}

var columns = []string{"id", "account_id", "currency", "principal", "apy_basis_points", "started_at", "last_accrual_at", "version"}

func (s *stakeStore) Create(ctx context.Context, position *core.StakePosition) error {
	b := sq.Insert("stakes").
		Columns(columns...).
		Values(position.ID, position.AccountID, position.Currency, position.Principal,
			position.APYBasisPoints, position.StartedAt, position.LastAccrualAt, position.Version)
	_, err := b.RunWith(s.db).ExecContext(ctx)
	return err
}

func (s *stakeStore) Find(ctx context.Context, accountID string, currency core.Currency) (*core.StakePosition, error) {
	b := sq.Select(columns...).
		From("stakes").
		Where(sq.Eq{"account_id": accountID, "currency": currency})
	row := b.RunWith(s.db).QueryRowContext(ctx)

	var position core.StakePosition
	if err := scanPosition(row, &position); err != nil {
		return nil, err
	}

	return &position, nil
}

func (s *stakeStore) List(ctx context.Context, accountID string) ([]*core.StakePosition, error) {
	b := sq.Select(columns...).
		From("stakes").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("currency")
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var positions []*core.StakePosition
	for rows.Next() {
		var position core.StakePosition
		if err := scanPosition(rows, &position); err != nil {
			return nil, err
		}

		positions = append(positions, &position)
	}

	return positions, rows.Err()
}

func (s *stakeStore) Update(ctx context.Context, position *core.StakePosition) error {
	b := sq.Update("stakes").
		Set("principal", position.Principal).
		Set("last_accrual_at", position.LastAccrualAt).
		Set("version", position.Version+1).
		Where("id = ? AND version = ?", position.ID, position.Version)
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

	position.Version++
	return nil
}

func (s *stakeStore) Delete(ctx context.Context, position *core.StakePosition) error {
	b := sq.Delete("stakes").Where("id = ? AND version = ?", position.ID, position.Version)
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

	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(scanner scanner, position *core.StakePosition) error {
	return scanner.Scan(
		&position.ID,
		&position.AccountID,
		&position.Currency,
		&position.Principal,
		&position.APYBasisPoints,
		&position.StartedAt,
		&position.LastAccrualAt,
		&position.Version,
	)
}
