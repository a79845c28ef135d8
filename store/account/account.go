package account

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/bituncoin/btnledger/core"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pandodao/generic"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.AccountStore {
	accounts, err := lru.New[string, *core.Account](1024)
	if err != nil {
		panic(err)
	}

	return &accountStore{
		db:       db,
		accounts: accounts,
	}
}

type accountStore struct {
	db       *nap.DB
	accounts *lru.Cache[string, *core.Account]
}

func (s *accountStore) Create(ctx context.Context, account *core.Account) error {
	tx := generic.Must(s.db.Begin())
	defer tx.Rollback()

	b := sq.Insert("accounts").
		Columns("id", "created_at").
		Values(account.ID, account.CreatedAt)
	if _, err := b.RunWith(tx).ExecContext(ctx); err != nil {
		return err
	}

	for currency, address := range account.Addresses {
		b := sq.Insert("account_addresses").
			Columns("account_id", "currency", "address").
			Values(account.ID, currency, address)
		if _, err := b.RunWith(tx).ExecContext(ctx); err != nil {
			return err
		}
	}

	for _, factor := range account.Factors {
		if err := insertFactor(ctx, tx, account.ID, factor); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertFactor(ctx context.Context, tx *sql.Tx, accountID string, factor core.AuthFactor) error {
	b := sq.Insert("account_factors").
		Columns("account_id", "kind", "enabled", "pending", "secret", "enrolled_at").
		Values(accountID, factor.Kind, factor.Enabled, factor.Pending, factor.Secret, sqlTime(factor))
	_, err := b.RunWith(tx).ExecContext(ctx)
	return err
}

func sqlTime(factor core.AuthFactor) any {
	if factor.EnrolledAt.IsZero() {
		return nil
	}

	return factor.EnrolledAt
}

func (s *accountStore) Find(ctx context.Context, id string) (*core.Account, error) {
	if a, ok := s.accounts.Get(id); ok {
		return a, nil
	}

	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	s.accounts.Add(id, a)
	return a, nil
}

func (s *accountStore) find(ctx context.Context, id string) (*core.Account, error) {
	b := sq.Select("id", "created_at").From("accounts").Where(sq.Eq{"id": id})
	row := b.RunWith(s.db).QueryRowContext(ctx)

	account := core.Account{
		Addresses: map[core.Currency]string{},
		Factors:   map[core.FactorKind]core.AuthFactor{},
	}
	if err := row.Scan(&account.ID, &account.CreatedAt); err != nil {
		return nil, err
	}

	if err := s.loadAddresses(ctx, &account); err != nil {
		return nil, err
	}

	return &account, s.loadFactors(ctx, &account)
}

func (s *accountStore) loadAddresses(ctx context.Context, account *core.Account) error {
	b := sq.Select("currency", "address").
		From("account_addresses").
		Where(sq.Eq{"account_id": account.ID})
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return err
	}

	defer rows.Close()

	for rows.Next() {
		var (
			currency core.Currency
			address  string
		)
		if err := rows.Scan(&currency, &address); err != nil {
			return err
		}

		account.Addresses[currency] = address
	}

	return rows.Err()
}

func (s *accountStore) loadFactors(ctx context.Context, account *core.Account) error {
	b := sq.Select("kind", "enabled", "pending", "secret", "enrolled_at").
		From("account_factors").
		Where(sq.Eq{"account_id": account.ID})
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return err
	}

	defer rows.Close()

	for rows.Next() {
		var (
			factor     core.AuthFactor
			enrolledAt sql.NullTime
		)
		if err := rows.Scan(&factor.Kind, &factor.Enabled, &factor.Pending, &factor.Secret, &enrolledAt); err != nil {
			return err
		}

		factor.EnrolledAt = enrolledAt.Time
		account.Factors[factor.Kind] = factor
	}

	return rows.Err()
}

func (s *accountStore) FindAddress(ctx context.Context, address string) (*core.Account, error) {
	b := sq.Select("account_id").
		From("account_addresses").
		Where(sq.Eq{"address": address})
	row := b.RunWith(s.db).QueryRowContext(ctx)

	var id string
	if err := row.Scan(&id); err != nil {
		return nil, err
	}

	return s.Find(ctx, id)
}

func (s *accountStore) UpdateFactors(ctx context.Context, account *core.Account) error {
	tx := generic.Must(s.db.Begin())
	defer tx.Rollback()

	del := sq.Delete("account_factors").Where(sq.Eq{"account_id": account.ID})
	if _, err := del.RunWith(tx).ExecContext(ctx); err != nil {
		return err
	}

	for _, factor := range account.Factors {
		if err := insertFactor(ctx, tx, account.ID, factor); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.accounts.Remove(account.ID)
	return nil
}
