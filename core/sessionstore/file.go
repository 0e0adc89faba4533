package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrymomot/sessionkit/core/session"
)

// recordFileName is the fixed key the session record lives under.
const recordFileName = "session.json"

// FileStore persists the record as a JSON file, with auxiliary keys as
// sibling files in the same directory. Writes are atomic (temp file,
// fsync, rename), so readers in other processes never observe a
// half-written record. Watch uses fsnotify on the directory, which is
// how a logout in one process reaches the others.
type FileStore struct {
	dir  string
	path string

	mu sync.Mutex

	watchMu  sync.Mutex
	watchers []*fsnotify.Watcher
}

var _ session.Store = (*FileStore)(nil)

// FileConfig provides environment-based configuration for the file store.
type FileConfig struct {
	// Dir is the directory holding the session record and auxiliary keys.
	Dir string `env:"SESSION_STORE_DIR" envDefault:".session"`
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("sessionstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("sessionstore: create %s: %w", dir, err)
	}

	return &FileStore{
		dir:  dir,
		path: filepath.Join(dir, recordFileName),
	}, nil
}

// NewFileStoreFromConfig creates a file store from configuration.
func NewFileStoreFromConfig(cfg FileConfig) (*FileStore, error) {
	return NewFileStore(cfg.Dir)
}

func (s *FileStore) Load(ctx context.Context) (session.Record, bool, error) {
	s.mu.Lock()
	raw, err := os.ReadFile(s.path)
	s.mu.Unlock()

	if os.IsNotExist(err) {
		return session.Record{}, false, nil
	}
	if err != nil {
		return session.Record{}, false, fmt.Errorf("sessionstore: read record: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(raw, &rec); err != nil || !rec.Valid(time.Now()) {
		_ = s.Clear(ctx)
		return session.Record{}, false, nil
	}

	return rec, true, nil
}

func (s *FileStore) Save(ctx context.Context, rec session.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sessionstore: encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWrite(s.path, raw)
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sessionstore: clear record: %w", err)
	}
	return nil
}

func (s *FileStore) Purge(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		path := filepath.Join(s.dir, filepath.Base(key))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sessionstore: purge %s: %w", key, err)
		}
	}
	return nil
}

// Watch emits a signal whenever the record file changes on disk,
// including changes made by other processes. The returned channel closes
// when ctx is cancelled.
func (s *FileStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: watch: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("sessionstore: watch %s: %w", s.dir, err)
	}

	s.watchMu.Lock()
	s.watchers = append(s.watchers, watcher)
	s.watchMu.Unlock()

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer func() {
			_ = watcher.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != recordFileName {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
					!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return ch, nil
}

func (s *FileStore) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	var firstErr error
	for _, w := range s.watchers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.watchers = nil
	return firstErr
}

// atomicWrite replaces path with data via temp file, fsync, and rename,
// so a concurrent reader sees either the old or the new complete file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("sessionstore: temp file: %w", err)
	}
	tmp := f.Name()

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("sessionstore: write record: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sessionstore: sync record: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sessionstore: close record: %w", err)
	}
	if err := os.Chmod(tmp, 0o600); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sessionstore: chmod record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("sessionstore: replace record: %w", err)
	}
	return nil
}
