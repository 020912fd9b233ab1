// Package db owns the sqlite connection and the embedded schema. Every
// service package talks to it through the DBTX seam so the same SQL runs
// against the pooled connection or an open transaction.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var ddl string

// DBTX is the common surface of *sql.DB and *sql.Tx that the service
// packages use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the sqlite database at path and applies pragmas
// the server depends on. Foreign keys back the workspace delete cascade.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	conn, err := sql.Open("sqlite", path+sep+"_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// CreateLocalTables applies the embedded schema statement by statement so a
// re-open against an existing file is a no-op.
func CreateLocalTables(ctx context.Context, conn *sql.DB) error {
	modified := strings.ReplaceAll(ddl, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ")
	modified = strings.ReplaceAll(modified, "CREATE INDEX ", "CREATE INDEX IF NOT EXISTS ")
	modified = strings.ReplaceAll(modified, "CREATE UNIQUE INDEX ", "CREATE UNIQUE INDEX IF NOT EXISTS ")
	for _, stmt := range strings.Split(modified, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return err
		}
	}
	return nil
}

// TxnRollback is meant to be used with defer so a rollback failure is still
// logged after the surrounding function commits or returns early.
func TxnRollback(tx *sql.Tx) {
	err := tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		slog.Error("transaction rollback failed", "error", err)
	}
}
