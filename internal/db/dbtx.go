package db

import (
	"context"
	"database/sql"
)

// dbtx abstracts *sql.DB and *sql.Tx so the same statement helpers run
// inside and outside explicit transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
