// Package store persists advisor runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// The write pool holds one connection and takes the database lock at BEGIN,
// so concurrent saves queue on busy_timeout rather than failing mid-commit.
const (
	readPoolSize = 4
	openTimeout  = 10 * time.Second
)

func dsn(path string, write bool) string {
	q := url.Values{
		"_journal_mode": {"WAL"},
		"_busy_timeout": {"5000"},
		"_synchronous":  {"NORMAL"},
		"_foreign_keys": {"on"},
	}
	if write {
		q.Set("_txlock", "immediate")
	}
	return path + "?" + q.Encode()
}

func openPool(ctx context.Context, path string, write bool, size int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path, write))
	if err != nil {
		return nil, fmt.Errorf("open run store %s: %w", path, err)
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open run store %s: %w", path, err)
	}
	return db, nil
}

// migrate brings the run store schema up to date and returns its version.
func migrate(ctx context.Context, db *sql.DB) (int64, error) {
	dir, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return 0, err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, dir)
	if err != nil {
		return 0, fmt.Errorf("run store migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return 0, fmt.Errorf("migrate run store: %w", err)
	}
	return p.GetDBVersion(ctx)
}
