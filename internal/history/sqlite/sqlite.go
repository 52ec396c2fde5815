// Package sqlite implements a history.Sink backed by an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kestrux/supervisor/internal/history"
)

// Sink writes history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New opens (creating if needed) a SQLite history sink. dsn accepts
// "sqlite:///path/to/file.db", "sqlite://:memory:", a bare path, or
// ":memory:".
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty sqlite dsn")
	}
	dsn = strings.TrimPrefix(dsn, "sqlite://")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS program_history(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		type TEXT NOT NULL,
		program TEXT NOT NULL,
		replica INTEGER NOT NULL,
		pid INTEGER NOT NULL,
		state TEXT NOT NULL,
		exit_code INTEGER,
		has_exit INTEGER NOT NULL
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Send implements history.Sink.
func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO program_history(occurred_at, type, program, replica, pid, state, exit_code, has_exit)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), rec.Program, rec.Replica, rec.PID, rec.State, rec.ExitCode, rec.HasExit)
	return err
}

// Close releases the underlying database handle.
func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
