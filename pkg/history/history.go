// Package history records completed work tasks in SQLite.
package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

// Run is one executed work task.
type Run struct {
	ID                string    `db:"id" json:"id"`
	Task              string    `db:"task" json:"task"`
	Site              string    `db:"site" json:"site"`
	Response          string    `db:"response" json:"response"`
	PermanentFailures int       `db:"permanent_failures" json:"permanentFailures"`
	ObserveCalls      int       `db:"observe_calls" json:"observeCalls"`
	Error             string    `db:"-" json:"error,omitempty"`
	StartedAt         time.Time `db:"started_at" json:"startedAt"`
	FinishedAt        time.Time `db:"finished_at" json:"finishedAt"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type row struct {
	Run
	Err sql.NullString `db:"error"`
}

// Store persists runs.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps a migrated database.
func NewStore(conn *sqlx.DB) *Store {
	return &Store{db: conn}
}

// Record inserts r, assigning an id when empty.
func (s *Store) Record(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.FinishedAt
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO task_runs (id, task, site, response, permanent_failures, observe_calls, error, started_at, finished_at)
		VALUES (:id, :task, :site, :response, :permanent_failures, :observe_calls, :error, :started_at, :finished_at)
	`, row{Run: r, Err: sql.NullString{String: r.Error, Valid: r.Error != ""}})
	if err != nil {
		return Run{}, errors.Wrap(err, "failed to record task run")
	}
	return r, nil
}

// List returns the most recent runs, newest first. A non-empty site restricts
// the listing to that site.
func (s *Store) List(ctx context.Context, site string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, task, site, response, permanent_failures, observe_calls, error, started_at, finished_at
		FROM task_runs`
	args := []any{}
	if site != "" {
		query += " WHERE site = ?"
		args = append(args, site)
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list task runs")
	}

	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run := r.Run
		run.Error = r.Err.String
		runs = append(runs, run)
	}
	return runs, nil
}
