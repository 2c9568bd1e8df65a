package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all history tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversions (
		id            TEXT PRIMARY KEY,
		batch_id      TEXT NOT NULL DEFAULT '',
		input         TEXT NOT NULL,
		workflow_name TEXT NOT NULL DEFAULT '',
		success       INTEGER NOT NULL,
		valid         INTEGER NOT NULL DEFAULT 0,
		overall_score REAL NOT NULL DEFAULT 0,
		error         TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS batches (
		id         TEXT PRIMARY KEY,
		total      INTEGER NOT NULL,
		successful INTEGER NOT NULL,
		failed     INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_conversions_batch_id ON conversions(batch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_created_at ON batches(created_at)`,
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
		table:    "conversions",
		column:   "strategy",
		alterSQL: "ALTER TABLE conversions ADD COLUMN strategy TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "conversions",
		column:   "mode",
		alterSQL: "ALTER TABLE conversions ADD COLUMN mode TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_conversions_mode ON conversions(mode)",
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
	exists, err := hasColumn(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
