package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type fileEntry struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// FileStore keeps every entry in a single JSON file, rewritten on each change.
type FileStore struct {
	path    string
	entries map[string]fileEntry
	mu      sync.RWMutex
	saveMu  sync.Mutex
	now     func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads path if it exists. A corrupt file is ignored and the
// store starts empty.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file cache: empty path")
	}

	f := &FileStore{
		path:    path,
		entries: make(map[string]fileEntry),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read cache: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &f.entries); err != nil {
			f.entries = make(map[string]fileEntry)
		}
	}
	return f, nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.RLock()
	entry, ok := f.entries[key]
	f.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if !expired(entry.ExpiresAt, f.now()) {
		return clone(entry.Data), true, nil
	}

	f.mu.Lock()
	if e, exists := f.entries[key]; exists && expired(e.ExpiresAt, f.now()) {
		delete(f.entries, key)
	}
	f.mu.Unlock()

	return nil, false, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := f.now()
	f.mu.Lock()
	f.entries[key] = fileEntry{
		Data:      clone(value),
		Timestamp: now,
		ExpiresAt: expiry(ttl, now),
	}
	f.mu.Unlock()

	return f.save()
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	delete(f.entries, key)
	f.mu.Unlock()
	return f.save()
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) save() error {
	f.saveMu.Lock()
	defer f.saveMu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	f.mu.RLock()
	data, err := json.MarshalIndent(f.entries, "", "  ")
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return os.Rename(tmp, f.path)
}
