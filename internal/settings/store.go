// Package settings persists runtime configuration (schemas, directories, upload
// history) as JSON documents addressed by string key.
package settings

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// Well known keys.
const (
	KeySchemas       = "schemas"
	KeyDirectory     = "directory"
	KeyUploadHistory = "upload_history"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Backend stores raw documents.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store encodes values on top of a Backend.
type Store struct {
	backend Backend
}

// NewStore wraps backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Load decodes key into dst. When the key is absent dst is left untouched, so
// callers pre-fill it with their default. It reports whether the key existed.
func (s *Store) Load(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if !found || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// Save encodes value under key.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Get returns the value stored under key or def when it is absent.
func Get[T any](ctx context.Context, s *Store, key string, def T) (T, error) {
	value := def
	if _, err := s.Load(ctx, key, &value); err != nil {
		return def, err
	}
	return value, nil
}

// MemoryBackend keeps documents in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: map[string][]byte{}}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), value...)
	return nil
}

var _ Backend = (*MemoryBackend)(nil)
