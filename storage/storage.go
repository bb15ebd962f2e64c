// Package storage provides the key/value stores backing session and
// login-state persistence.
//
// Two storage scopes matter to callers: a durable scope that survives
// process restarts (the bearer token lives there, see FileStore) and a
// short-lived scope bound to the current process (the anti-CSRF login state,
// see MemoryStore). Values can additionally be sealed at rest with an AEAD
// (see SealedStore).
package storage

import (
	"errors"
	"sync"
)

// ErrBadKey is returned for keys that cannot be mapped to a storage slot.
var ErrBadKey = errors.New("invalid storage key")

// Store is a string key/value store.
//
// Get reports ok=false when the key is absent. Delete of an absent key is a
// no-op. Implementations must be safe for concurrent use.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Watcher is implemented by stores that can observe external modification of
// a key (another process writing or removing it). fn may be invoked from a
// background goroutine.
type Watcher interface {
	Watch(key string, fn func()) (stop func(), err error)
}

// MemoryStore is an in-process Store. Contents vanish with the process,
// which makes it the natural scope for single-use login state.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
