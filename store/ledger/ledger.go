package ledger

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/bituncoin/btnledger/core"
	"github.com/pandodao/generic"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.LedgerStore {
	return &ledgerStore{db: db}
}

type ledgerStore struct {
	db *nap.DB
}

func (s *ledgerStore) GetBalance(ctx context.Context, accountID string, currency core.Currency) (*core.Balance, error) {
	b := sq.Select("account_id", "currency", "available", "locked", "version").
		From("balances").
		Where(sq.Eq{"account_id": accountID, "currency": currency})
	row := b.RunWith(s.db).QueryRowContext(ctx)

	var balance core.Balance
	err := row.Scan(&balance.AccountID, &balance.Currency, &balance.Available, &balance.Locked, &balance.Version)
	if errors.Is(err, sql.ErrNoRows) {
		// a currency the account never touched reads as zero
		return &core.Balance{AccountID: accountID, Currency: currency}, nil
	}

	if err != nil {
		return nil, err
	}

	return &balance, nil
}

func (s *ledgerStore) ListBalances(ctx context.Context, accountID string) ([]*core.Balance, error) {
	b := sq.Select("account_id", "currency", "available", "locked", "version").
		From("balances").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("currency")
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var balances []*core.Balance
	for rows.Next() {
		var balance core.Balance
		if err := rows.Scan(&balance.AccountID, &balance.Currency, &balance.Available, &balance.Locked, &balance.Version); err != nil {
			return nil, err
		}

		balances = append(balances, &balance)
	}

	return balances, rows.Err()
}

func (s *ledgerStore) Apply(ctx context.Context, updates []*core.BalanceUpdate) error {
	tx := generic.Must(s.db.Begin())
	defer tx.Rollback()

	for _, update := range updates {
		if err := applyBalance(ctx, tx, update.Balance); err != nil {
			return err
		}

		for _, entry := range update.Entries {
			if err := insertEntry(ctx, tx, entry); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// applyBalance writes the balance row guarded by the version the writer
// read. Version 1 means first touch, which inserts instead.
func applyBalance(ctx context.Context, tx *sql.Tx, balance *core.Balance) error {
	if balance.Version == 1 {
		b := sq.Insert("balances").
			Columns("account_id", "currency", "available", "locked", "version").
			Values(balance.AccountID, balance.Currency, balance.Available, balance.Locked, balance.Version)
		if _, err := b.RunWith(tx).ExecContext(ctx); err != nil {
			return core.ErrConcurrentModification
		}

		return nil
	}

	b := sq.Update("balances").
		Set("available", balance.Available).
		Set("locked", balance.Locked).
		Set("version", balance.Version).
		Where("account_id = ? AND currency = ? AND version = ?", balance.AccountID, balance.Currency, balance.Version-1)
	result, err := b.RunWith(tx).ExecContext(ctx)
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

func insertEntry(ctx context.Context, tx *sql.Tx, entry *core.JournalEntry) error {
	b := sq.Insert("journal").
		Columns("id", "account_id", "currency", "delta", "leg", "kind", "transaction_id", "created_at").
		Values(entry.ID, entry.AccountID, entry.Currency, entry.Delta, entry.Leg, entry.Kind, entry.TransactionID, entry.CreatedAt)
	_, err := b.RunWith(tx).ExecContext(ctx)
	return err
}

func (s *ledgerStore) ListJournal(ctx context.Context, accountID string, currency core.Currency, limit int) ([]*core.JournalEntry, error) {
	b := sq.Select("id", "account_id", "currency", "delta", "leg", "kind", "transaction_id", "created_at").
		From("journal").
		Where(sq.Eq{"account_id": accountID, "currency": currency}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var entries []*core.JournalEntry
	for rows.Next() {
		var entry core.JournalEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Currency, &entry.Delta, &entry.Leg, &entry.Kind, &entry.TransactionID, &entry.CreatedAt); err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func (s *ledgerStore) ListTransactionJournal(ctx context.Context, transactionID string) ([]*core.JournalEntry, error) {
	b := sq.Select("id", "account_id", "currency", "delta", "leg", "kind", "transaction_id", "created_at").
		From("journal").
		Where(sq.Eq{"transaction_id": transactionID}).
		OrderBy("created_at")
	rows, err := b.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var entries []*core.JournalEntry
	for rows.Next() {
		var entry core.JournalEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Currency, &entry.Delta, &entry.Leg, &entry.Kind, &entry.TransactionID, &entry.CreatedAt); err != nil {
			return nil, err
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
