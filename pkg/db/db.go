// Package db opens the siren SQLite store and applies schema migrations.
package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// BasePathEnv overrides the directory holding siren's local state.
const BasePathEnv = "SIREN_BASE_PATH"

// BaseDir returns the directory for siren's local state.
func BaseDir() (string, error) {
	if base := os.Getenv(BasePathEnv); base != "" {
		return base, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".siren"), nil
}

// DefaultPath returns the default database location.
func DefaultPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "storage.db"), nil
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=memory",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Open opens, creating if needed, the database at path in WAL mode.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to execute %s", p)
		}
	}
	// A single connection keeps pragmas and serialises writers.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := Verify(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Verify checks the connection runs in WAL mode with foreign keys enforced.
func Verify(ctx context.Context, conn *sqlx.DB) error {
	var mode string
	if err := conn.GetContext(ctx, &mode, "PRAGMA journal_mode"); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(mode) != "wal" {
		return errors.Errorf("expected WAL journal mode, got %s", mode)
	}

	var fk int
	if err := conn.GetContext(ctx, &fk, "PRAGMA foreign_keys"); err != nil {
		return errors.Wrap(err, "failed to query foreign keys")
	}
	if fk != 1 {
		return errors.New("foreign keys are not enabled")
	}
	return nil
}

// OpenMigrated opens the database at path and applies migrations.
func OpenMigrated(ctx context.Context, path string, migrations []Migration) (*sqlx.DB, error) {
	conn, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := NewMigrationRunner(conn).Run(ctx, migrations); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
