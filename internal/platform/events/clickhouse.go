package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

type clickhouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink appends events to an analytics table. Attributes are
// stored as a JSON string column so the schema never has to chase the
// producers.
func NewClickHouseSink(addr, database, username, password, table string) (Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	return &clickhouseSink{conn: conn, table: table}, nil
}

func (s *clickhouseSink) Publish(ctx context.Context, ev Event) error {
	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return fmt.Errorf("encode event attributes: %w", err)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, type, user_id, occurred_at, attributes) VALUES (?, ?, ?, ?, ?)",
		s.table,
	)
	if err := s.conn.Exec(ctx, query, ev.ID, ev.Type, ev.UserID, ev.OccurredAt, string(attrs)); err != nil {
		return fmt.Errorf("clickhouse insert: %w", err)
	}
	return nil
}

func (s *clickhouseSink) Close() error {
	return s.conn.Close()
}
