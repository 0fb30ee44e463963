// Package repository opens the bun database and seeds initial accounts.
package repository

import (
	"context"
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Open connects to dsn with the driver for dialect and pings it
func Open(ctx context.Context, dialectName, dsn string) (*bun.DB, error) {
	var (
		db  *bun.DB
		err error
	)

	switch strings.ToLower(strings.TrimSpace(dialectName)) {
	case DialectSQLite, "sqlite3":
		db, err = openSQLite(dsn)
	case DialectPostgres, "postgresql", "pg":
		db, err = openPostgres(dsn)
	default:
		return nil, goerrors.New("unsupported database dialect", goerrors.CategoryBadInput).
			WithTextCode("DB_DIALECT_UNSUPPORTED").
			WithMetadata(map[string]any{"dialect": dialectName})
	}

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open database").
			WithMetadata(map[string]any{"dialect": dialectName})
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reach database").
			WithMetadata(map[string]any{"dialect": dialectName})
	}

	return db, nil
}

func openSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	// every in memory connection is a separate database
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqldb.SetMaxOpenConns(1)
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

func openPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}
