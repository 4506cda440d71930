// Package migrations lists siren's schema migrations.
package migrations

import "github.com/antoinenguyen27/siren/pkg/db"

// All returns every migration. Append new migrations here.
func All() []db.Migration {
	return []db.Migration{
		Migration20261018120000CreateTaskRuns(),
		Migration20261018120100AddTaskRunIndexes(),
	}
}
