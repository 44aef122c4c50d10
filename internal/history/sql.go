package history

import (
	"context"
	"database/sql"
)

// SQLSink appends events to the scheduler_history table. The sqlite and postgres
// subpackages open the database and pick the dialect.
type SQLSink struct {
	db      *sql.DB
	dialect string // "sqlite" or "postgres"
}

func NewSQLSink(ctx context.Context, db *sql.DB, dialect string) (*SQLSink, error) {
	s := &SQLSink{db: db, dialect: dialect}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) ensureSchema(ctx context.Context) error {
	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	tsType := "TIMESTAMP"
	if s.dialect == "postgres" {
		idCol = "id BIGSERIAL PRIMARY KEY"
		tsType = "TIMESTAMPTZ"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scheduler_history(
			` + idCol + `,
			occurred_at ` + tsType + ` NOT NULL,
			run_id TEXT NOT NULL,
			event TEXT NOT NULL,
			worker_id INTEGER NOT NULL,
			pid INTEGER NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			reason TEXT NOT NULL,
			mode TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scheduler_history_run ON scheduler_history(run_id, worker_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	q := `INSERT INTO scheduler_history(occurred_at, run_id, event, worker_id, pid, from_state, to_state, reason, mode)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`
	if s.dialect == "postgres" {
		q = `INSERT INTO scheduler_history(occurred_at, run_id, event, worker_id, pid, from_state, to_state, reason, mode)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	}
	r := e.Record
	_, err := s.db.ExecContext(ctx, q,
		e.OccurredAt.UTC(), r.RunID, string(e.Type), r.WorkerID, r.PID, r.From, r.To, r.Reason, r.Mode)
	return err
}

// Count returns the number of stored events for a run; used by tests and diagnostics.
func (s *SQLSink) Count(ctx context.Context, runID string) (int, error) {
	q := `SELECT COUNT(*) FROM scheduler_history WHERE run_id = ?`
	if s.dialect == "postgres" {
		q = `SELECT COUNT(*) FROM scheduler_history WHERE run_id = $1`
	}
	var n int
	err := s.db.QueryRowContext(ctx, q, runID).Scan(&n)
	return n, err
}

func (s *SQLSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
