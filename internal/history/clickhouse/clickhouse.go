// Package clickhouse implements a history.Sink backed by ClickHouse.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/kestrux/supervisor/internal/history"
)

// Sink sends events to ClickHouse via its native protocol.
type Sink struct {
	conn  driver.Conn
	table string
}

// New opens a connection to ClickHouse at addr and targets table, creating
// it if it does not already exist.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime,
		type String,
		program String,
		replica Int32,
		pid Int32,
		state String,
		exit_code Int32,
		has_exit UInt8
	) ENGINE = MergeTree() ORDER BY occurred_at`, s.table)
	return s.conn.Exec(ctx, stmt)
}

// Close releases the underlying connection.
func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Send implements history.Sink.
func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, type, program, replica, pid, state, exit_code, has_exit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	err := s.conn.Exec(ctx, query,
		e.OccurredAt, string(e.Type), rec.Program, rec.Replica, rec.PID, rec.State, rec.ExitCode, rec.HasExit,
	)
	if err != nil {
		return fmt.Errorf("insert into clickhouse: %w", err)
	}
	return nil
}
