package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/sdplabs/ingest/internal/clickhouse"
)

const tableName = "ingest_audit_log"

// StoreConfig configures the ClickHouse-backed audit log.
type StoreConfig struct {
	Logger *slog.Logger
	Client clickhouse.Client
	Clock  clockwork.Clock
}

func (c *StoreConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Client == nil {
		return fmt.Errorf("clickhouse client is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Store persists audit entries in ClickHouse.
type Store struct {
	cfg *StoreConfig
}

func NewStore(cfg *StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Store{cfg: cfg}, nil
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.cfg.Clock.Now().UTC()
	}

	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
			(timestamp, severity, message, user, product, dataset, file_name, bucket, object_path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tableName)

	// Async insert with wait=true: the server may buffer the write, but the
	// call does not return until it is committed, so an immediate query sees
	// the entry.
	if err := conn.AsyncInsert(ctx, query, true,
		e.Timestamp, string(e.Severity), e.Message, e.User, e.Product,
		e.Dataset, e.FileName, e.Bucket, e.ObjectPath, e.Error,
	); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, f Filter, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting connection: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT timestamp, severity, message, user, product, dataset, file_name, bucket, object_path, error
		FROM %s
		WHERE (? = '' OR user = ?) AND (? = '' OR product = ?)
		ORDER BY timestamp DESC
		LIMIT ?
	`, tableName)

	rows, err := conn.Query(ctx, query, f.User, f.User, f.Product, f.Product, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var severity string
		if err := rows.Scan(&e.Timestamp, &severity, &e.Message, &e.User, &e.Product,
			&e.Dataset, &e.FileName, &e.Bucket, &e.ObjectPath, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		e.Severity = Severity(severity)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return entries, nil
}
