// Package migration applies the schema the postgres repository expects.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docfabric/internal/logging"
)

// Step is one forward-only schema change. Versions are applied in order and recorded
// in schema_migrations so each runs once.
type Step struct {
	Version int
	Name    string
	SQL     string
}

// advisoryLockKey serializes migrations across API replicas starting together.
const advisoryLockKey = 0x646f6366 // "docf"

var Steps = []Step{
	{
		Version: 1,
		Name:    "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id           UUID        PRIMARY KEY,
  filename     TEXT        NOT NULL,
  content_type TEXT        NOT NULL,
  size_bytes   BIGINT      NOT NULL CHECK (size_bytes >= 0),
  metadata     JSONB       NOT NULL DEFAULT '{}'::jsonb,
  storage_path TEXT        NOT NULL UNIQUE,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT documents_updated_after_created CHECK (updated_at >= created_at)
);`,
	},
	{
		Version: 2,
		Name:    "create_index_documents_listing",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_documents_created_at_id ON documents (created_at DESC, id DESC);`,
	},
	{
		Version: 3,
		Name:    "create_index_documents_filename",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_documents_filename ON documents (filename);`,
	},
}

const (
	createLedgerSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
  version    INTEGER     PRIMARY KEY,
  name       TEXT        NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	appliedSQL = `SELECT version FROM schema_migrations`
	recordSQL  = `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
)

// EnsureMigrated applies every step of Steps not yet recorded, each in its own
// transaction, while holding a session advisory lock.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *logging.Logger, dbHost string) error {
	return Apply(ctx, db, Steps, log, dbHost)
}

// Apply is EnsureMigrated for an explicit step list.
func Apply(ctx context.Context, db *sql.DB, steps []Step, log *logging.Logger, dbHost string) (err error) {
	start := time.Now()
	fields := func(extra logging.Fields) logging.Fields {
		f := logging.Fields{"component": "database", "db_host": dbHost, "duration_ms": time.Since(start).Milliseconds()}
		for k, v := range extra {
			f[k] = v
		}
		return f
	}
	defer func() {
		if err != nil {
			log.Error(fields(logging.Fields{"event": "db_migration_failed", "status": "error", "error_message": err.Error()}))
		}
	}()

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
	}()

	if _, err := conn.ExecContext(ctx, createLedgerSQL); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	ran := 0
	for _, step := range steps {
		if applied[step.Version] {
			continue
		}
		stepStart := time.Now()
		if err := applyStep(ctx, conn, step); err != nil {
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		ran++
		log.Info(fields(logging.Fields{
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		}))
	}

	event := "db_migration_success"
	if ran == 0 {
		event = "db_migration_skip"
	}
	log.Info(fields(logging.Fields{"event": event, "status": "success", "steps_applied": ran}))
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int]bool, error) {
	rows, err := conn.QueryContext(ctx, appliedSQL)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyStep(ctx context.Context, conn *sql.Conn, step Step) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, recordSQL, step.Version, step.Name); err != nil {
		return err
	}
	return tx.Commit()
}
