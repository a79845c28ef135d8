package property

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/bituncoin/btnledger/core"
	"github.com/tsenart/nap"
)

func New(db *nap.DB) core.PropertyStore {
	return &propertyStore{db: db}
}

type propertyStore struct {
	db *nap.DB
}

func (s *propertyStore) Get(ctx context.Context, key string, value any) error {
	b := sq.Select("`value`").From("properties").Where(sq.Eq{"`key`": key})
	row := b.RunWith(s.db).QueryRowContext(ctx)

	var raw []byte
	switch err := row.Scan(&raw); {
	case err == nil:
		return json.Unmarshal(raw, value)
	case errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return err
	}
}

func (s *propertyStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal property value: %w", err)
	}

	b := sq.Update("properties").
		Set("`value`", raw).
		Set("`version`", sq.Expr("`version` + 1")).
		Where(sq.Eq{"`key`": key})
	result, err := b.RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("set property: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if n > 0 {
		return nil
	}

	ins := sq.Insert("properties").Columns("`key`", "`value`").Values(key, raw)
	_, err = ins.RunWith(s.db).ExecContext(ctx)
	return err
}
