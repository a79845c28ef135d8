package transaction

import (
	"database/sql"

	"github.com/bituncoin/btnledger/core"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

var scanColumns = []string{
	"id",
	"trace_id",
	"from_address",
	"to_address",
	"amount",
	"currency",
	"kind",
	"status",
	"reason",
	"cross_chain",
	"target_chain",
	"created_at",
	"applied_at",
}

func scanTransaction(scanner scanner, tx *core.Transaction) error {
	var (
		traceID   sql.NullString
		appliedAt sql.NullTime
	)

	if err := scanner.Scan(
		&tx.ID,
		&traceID,
		&tx.From,
		&tx.To,
		&tx.Amount,
		&tx.Currency,
		&tx.Kind,
		&tx.Status,
		&tx.Reason,
		&tx.CrossChain,
		&tx.TargetChain,
		&tx.CreatedAt,
		&appliedAt,
	); err != nil {
		return err
	}

	tx.TraceID = traceID.String
	tx.AppliedAt = appliedAt.Time
	return nil
}
