// Package dbx opens the bun database used by identityd.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	Postgres Driver = "postgres"
	SQLite   Driver = "sqlite"
)

// Options configures Open.
type Options struct {
	// Driver selects the dialect. Empty means DetectDriver(DSN).
	Driver Driver
	DSN    string
	// MaxOpenConns for postgres (default: 25). SQLite always uses one.
	MaxOpenConns int
	// Debug logs every query.
	Debug bool
}

// DetectDriver guesses the driver from the DSN.
func DetectDriver(dsn string) Driver {
	for _, scheme := range []string{"postgres://", "postgresql://", "unix://"} {
		if strings.HasPrefix(dsn, scheme) {
			return Postgres
		}
	}
	return SQLite
}

// Open connects and pings the database.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DetectDriver(opts.DSN)
	}

	var (
		db  *bun.DB
		err error
	)
	switch driver {
	case Postgres:
		db, err = openPostgres(ctx, opts)
	case SQLite:
		db, err = openSQLite(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

func openPostgres(ctx context.Context, opts Options) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(opts.DSN)))

	conns := opts.MaxOpenConns
	if conns <= 0 {
		conns = 25
	}
	sqldb.SetMaxOpenConns(conns)
	sqldb.SetMaxIdleConns(conns)

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openSQLite(ctx context.Context, opts Options) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// single writer
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Close closes db, nil is a no-op.
func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
