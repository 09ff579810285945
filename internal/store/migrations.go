package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the ledger tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS batches (
		id             TEXT PRIMARY KEY,
		jobs           INTEGER NOT NULL,
		job_order      TEXT NOT NULL DEFAULT 'fifo',
		job_timeout_ms INTEGER NOT NULL DEFAULT 0,
		state          TEXT NOT NULL DEFAULT 'RUNNING',
		dispatched     INTEGER NOT NULL DEFAULT 0,
		succeeded      INTEGER NOT NULL DEFAULT 0,
		failed         INTEGER NOT NULL DEFAULT 0,
		started_at     TEXT NOT NULL,
		dispatched_at  TEXT,
		completed_at   TEXT
	)`,

	// One row per job. A routing failure produces a row with no dispatch
	// columns set, so dispatch and outcome are upserts on the same key.
	`CREATE TABLE IF NOT EXISTS job_records (
		batch_id      TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		job_id        INTEGER NOT NULL,
		job_name      TEXT NOT NULL DEFAULT '',
		engine        TEXT NOT NULL DEFAULT '',
		engine_name   TEXT NOT NULL DEFAULT '',
		rule          TEXT NOT NULL DEFAULT '',
		reason        TEXT NOT NULL DEFAULT '',
		program       TEXT NOT NULL DEFAULT '',
		database_name TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT '',
		code          TEXT NOT NULL DEFAULT '',
		output        TEXT NOT NULL DEFAULT '',
		error         TEXT NOT NULL DEFAULT '',
		duration_ms   INTEGER NOT NULL DEFAULT 0,
		dispatched_at TEXT,
		completed_at  TEXT,
		PRIMARY KEY (batch_id, job_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_job_records_engine ON job_records(engine)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "job_records",
		column:   "code",
		alterSQL: "ALTER TABLE job_records ADD COLUMN code TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_job_records_code ON job_records(code) WHERE code != ''",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
