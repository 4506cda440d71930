package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/db"
)

// Migration20261018120000CreateTaskRuns creates the task_runs table.
func Migration20261018120000CreateTaskRuns() db.Migration {
	return db.Migration{
		Version:     20261018120000,
		Description: "Create task_runs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS task_runs (
					id TEXT PRIMARY KEY,
					task TEXT NOT NULL,
					site TEXT NOT NULL,
					response TEXT NOT NULL,
					permanent_failures INTEGER NOT NULL DEFAULT 0,
					observe_calls INTEGER NOT NULL DEFAULT 0,
					error TEXT,
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create task_runs table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS task_runs")
			return errors.Wrap(err, "failed to drop task_runs table")
		},
	}
}
