package sessionstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrymomot/sessionkit/core/session"
)

// MemoryStore keeps the record and auxiliary keys in process memory.
// Intended for tests and embedding; Watch fires on every mutation, which
// lets a single test process stand in for multiple tabs.
type MemoryStore struct {
	mu       sync.Mutex
	record   []byte
	aux      map[string][]byte
	watchers []chan struct{}
	closed   bool
}

var _ session.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		aux: make(map[string][]byte),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (session.Record, bool, error) {
	s.mu.Lock()
	raw := s.record
	s.mu.Unlock()

	if raw == nil {
		return session.Record{}, false, nil
	}

	var rec session.Record
	if err := json.Unmarshal(raw, &rec); err != nil || !rec.Valid(time.Now()) {
		// Corrupt or expired values are purged, never surfaced.
		_ = s.Clear(ctx)
		return session.Record{}, false, nil
	}

	return rec, true, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec session.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.record = raw
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	cleared := s.record != nil
	s.record = nil
	s.mu.Unlock()

	if cleared {
		s.notify()
	}
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.aux, key)
	}
	return nil
}

// SetAux stores an auxiliary value, mimicking session-scoped caches that
// live beside the record.
func (s *MemoryStore) SetAux(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aux[key] = value
}

// GetAux returns an auxiliary value.
func (s *MemoryStore) GetAux(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.aux[key]
	return v, ok
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, nil
	}
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			s.removeWatcher(ch)
		}()
	}

	return ch, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
	return nil
}

func (s *MemoryStore) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryStore) removeWatcher(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i, w := range s.watchers {
		if w == ch {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			close(ch)
			return
		}
	}
}
