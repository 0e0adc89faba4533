package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionkit/core/session"
)

const (
	defaultRedisKey     = "sessionkit:record"
	defaultRedisChannel = "sessionkit:changes"

	// recordTTLSlack keeps the Redis key alive a little past the token
	// horizon so an expired record is still observable (and purgeable)
	// rather than silently vanishing mid-check.
	recordTTLSlack = time.Hour
)

// RedisStore persists the record under a single key and publishes a
// change signal after every mutation, so sibling instances subscribed to
// the same channel re-derive their state without polling.
type RedisStore struct {
	client  redis.UniversalClient
	key     string
	channel string

	// ownsClient marks a client dialed by the store itself, which Close
	// must release. A caller-provided client stays the caller's to close.
	ownsClient bool
}

var _ session.Store = (*RedisStore)(nil)

// RedisOption configures the Redis store.
type RedisOption func(*RedisStore)

// WithRedisKey overrides the record key.
func WithRedisKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithRedisChannel overrides the pub/sub channel for change signals.
func WithRedisChannel(channel string) RedisOption {
	return func(s *RedisStore) {
		if channel != "" {
			s.channel = channel
		}
	}
}

// RedisConfig provides environment-based configuration for the Redis store.
type RedisConfig struct {
	// URL is a redis connection URL, e.g. redis://localhost:6379/0.
	URL string `env:"SESSION_REDIS_URL,required"`

	// Key is the record key.
	Key string `env:"SESSION_REDIS_KEY" envDefault:"sessionkit:record"`

	// Channel is the pub/sub channel for change signals.
	Channel string `env:"SESSION_REDIS_CHANNEL" envDefault:"sessionkit:changes"`
}

// NewRedisStore creates a Redis-backed store on an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		key:     defaultRedisKey,
		channel: defaultRedisChannel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisStoreFromConfig dials Redis from configuration and verifies the
// connection.
func NewRedisStoreFromConfig(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sessionstore: redis ping: %w", err)
	}

	s := NewRedisStore(client,
		WithRedisKey(cfg.Key),
		WithRedisChannel(cfg.Channel),
	)
	s.ownsClient = true
	return s, nil
}

func (s *RedisStore) Load(ctx context.Context) (session.Record, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return session.Record{}, false, nil
	}
	if err != nil {
		return session.Record{}, false, fmt.Errorf("sessionstore: redis get: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || !rec.Valid(time.Now()) {
		_ = s.Clear(ctx)
		return session.Record{}, false, nil
	}

	return rec, true, nil
}

func (s *RedisStore) Save(ctx context.Context, rec session.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sessionstore: encode record: %w", err)
	}

	ttl := time.Until(rec.Expiry()) + recordTTLSlack
	if err := s.client.Set(ctx, s.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("sessionstore: redis set: %w", err)
	}

	s.publish(ctx)
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("sessionstore: redis del: %w", err)
	}
	s.publish(ctx)
	return nil
}

func (s *RedisStore) Purge(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key + ":" + key
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("sessionstore: redis purge: %w", err)
	}
	return nil
}

func (s *RedisStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	sub := s.client.Subscribe(ctx, s.channel)

	// Force the subscription to establish before we report success.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("sessionstore: redis subscribe: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer func() {
			_ = sub.Close()
		}()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()

	return ch, nil
}

func (s *RedisStore) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

// publish is best-effort: a missed change signal degrades cross-instance
// freshness, it does not corrupt state.
func (s *RedisStore) publish(ctx context.Context) {
	_ = s.client.Publish(ctx, s.channel, "changed").Err()
}
