package store

import (
	"database/sql"
	"errors"

	"github.com/bituncoin/btnledger/core"
)

func IsErrNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, core.ErrNotFound)
}
