package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/db"
)

// Migration20261018120100AddTaskRunIndexes indexes task runs for recency and
// per-site listings.
func Migration20261018120100AddTaskRunIndexes() db.Migration {
	return db.Migration{
		Version:     20261018120100,
		Description: "Add task_runs indexes",
		Up: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"CREATE INDEX IF NOT EXISTS idx_task_runs_started_at ON task_runs(started_at DESC)",
				"CREATE INDEX IF NOT EXISTS idx_task_runs_site ON task_runs(site, started_at DESC)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to run %q", stmt)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"DROP INDEX IF EXISTS idx_task_runs_site",
				"DROP INDEX IF EXISTS idx_task_runs_started_at",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to run %q", stmt)
				}
			}
			return nil
		},
	}
}
