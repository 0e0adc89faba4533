package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sessionkit/core/session"
)

const (
	defaultPostgresRecordKey = "record"
	defaultPostgresChannel   = "sessionkit_changes"
)

// PostgresStore persists the record in a single-row key/value table and
// uses LISTEN/NOTIFY for change signals between instances sharing the
// same database.
type PostgresStore struct {
	pool      *pgxpool.Pool
	recordKey string
	channel   string

	// ownsPool marks a pool dialed by the store itself, which Close must
	// release. A caller-provided pool stays the caller's to close.
	ownsPool bool
}

var _ session.Store = (*PostgresStore)(nil)

// PostgresOption configures the Postgres store.
type PostgresOption func(*PostgresStore)

// WithPostgresRecordKey overrides the row key for the session record.
// Use distinct keys for distinct device/browser profiles sharing a table.
func WithPostgresRecordKey(key string) PostgresOption {
	return func(s *PostgresStore) {
		if key != "" {
			s.recordKey = key
		}
	}
}

// WithPostgresChannel overrides the NOTIFY channel name.
func WithPostgresChannel(channel string) PostgresOption {
	return func(s *PostgresStore) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// PostgresConfig provides environment-based configuration for the
// Postgres store.
type PostgresConfig struct {
	// DSN is the connection string.
	DSN string `env:"SESSION_POSTGRES_DSN,required"`

	// RecordKey is the row key the record lives under.
	RecordKey string `env:"SESSION_POSTGRES_RECORD_KEY" envDefault:"record"`
}

// NewPostgresStore creates a Postgres-backed store on an existing pool
// and ensures the backing table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		pool:      pool,
		recordKey: defaultPostgresRecordKey,
		channel:   defaultPostgresChannel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromConfig dials Postgres from configuration.
func NewPostgresStoreFromConfig(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sessionstore: postgres ping: %w", err)
	}

	s, err := NewPostgresStore(ctx, pool, WithPostgresRecordKey(cfg.RecordKey))
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.ownsPool = true
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS session_records (
			key        text PRIMARY KEY,
			value      jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (session.Record, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM session_records WHERE key = $1
	`, s.recordKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Record{}, false, nil
	}
	if err != nil {
		return session.Record{}, false, fmt.Errorf("sessionstore: postgres select: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(raw, &rec); err != nil || !rec.Valid(time.Now()) {
		_ = s.Clear(ctx)
		return session.Record{}, false, nil
	}

	return rec, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec session.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sessionstore: encode record: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_records (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`, s.recordKey, raw)
	if err != nil {
		return fmt.Errorf("sessionstore: postgres upsert: %w", err)
	}

	s.notifyChange(ctx)
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM session_records WHERE key = $1
	`, s.recordKey)
	if err != nil {
		return fmt.Errorf("sessionstore: postgres delete: %w", err)
	}

	s.notifyChange(ctx)
	return nil
}

func (s *PostgresStore) Purge(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.recordKey + ":" + key
	}

	_, err := s.pool.Exec(ctx, `
		DELETE FROM session_records WHERE key = ANY($1)
	`, prefixed)
	if err != nil {
		return fmt.Errorf("sessionstore: postgres purge: %w", err)
	}
	return nil
}

// Watch holds a dedicated connection on LISTEN and forwards
// notifications for this store's record key.
func (s *PostgresStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: acquire listen connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("sessionstore: listen: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer conn.Release()

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			if notification.Payload != s.recordKey {
				continue
			}
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()

	return ch, nil
}

func (s *PostgresStore) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

// notifyChange is best-effort, same as the Redis publish.
func (s *PostgresStore) notifyChange(ctx context.Context) {
	_, _ = s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, s.channel, s.recordKey)
}
