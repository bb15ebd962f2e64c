// Package csrf manages the single-use anti-forgery state binding a login
// attempt to its redirect callback.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tidegate/authflow/storage"
)

// DefaultStateKey is the storage key the pending state lives under.
const DefaultStateKey = "oauth_state"

// stateLength is the number of random bytes in a generated state value.
// 32 bytes provides 256 bits of entropy, well past the 128-bit floor for an
// unguessable single-use marker.
const stateLength = 32

// record is the persisted shape of a pending state.
type record struct {
	Value    string    `cbor:"1,keyasint"`
	IssuedAt time.Time `cbor:"2,keyasint,omitempty"`
}

// Result reports the outcome of a verification. HadStored distinguishes "no
// pending login attempt" from "values differed" without exposing either
// value.
type Result struct {
	OK        bool
	HadStored bool
}

// Manager owns the state lifecycle. At most one state is pending at a time:
// issuing a new one overwrites any previous one, and verification always
// consumes the stored value, match or not.
type Manager struct {
	mu    sync.Mutex
	store storage.Store
	key   string
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the backing store. It should be scoped to the current
// browsing session / process, not durable storage; defaults to a
// MemoryStore.
func WithStore(st storage.Store) Option {
	return func(m *Manager) {
		m.store = st
	}
}

// WithKey sets the storage key for the pending state.
func WithKey(key string) Option {
	return func(m *Manager) {
		m.key = key
	}
}

// New creates a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{key: DefaultStateKey}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = storage.NewMemoryStore()
	}
	return m
}

// generateState creates a random, URL-safe state string.
func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue persists a new pending state and returns it, replacing any previous
// one (last login attempt wins). A non-empty explicit value is used as-is,
// letting the application thread its own state value through the round trip;
// otherwise a random value is generated.
func (m *Manager) Issue(explicit string) (string, error) {
	state := explicit
	if state == "" {
		var err error
		state, err = generateState()
		if err != nil {
			return "", err
		}
	}
	b, err := cbor.Marshal(record{Value: state, IssuedAt: time.Now()})
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Set(m.key, base64.RawURLEncoding.EncodeToString(b)); err != nil {
		return "", err
	}
	return state, nil
}

// VerifyAndConsume reads the pending state, deletes it unconditionally, and
// reports whether candidate matches it. Deleting before reporting closes the
// replay window: a second attempt with the same callback URL always fails
// because the stored value is already gone. An empty candidate or an absent
// stored value never matches.
func (m *Manager) VerifyAndConsume(candidate string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	encoded, ok, err := m.store.Get(m.key)
	if derr := m.store.Delete(m.key); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// A stored value we cannot read counts as a mismatch, not an error:
		// it has been consumed either way.
		return Result{HadStored: true}, nil
	}
	var rec record
	if err := cbor.Unmarshal(b, &rec); err != nil {
		return Result{HadStored: true}, nil
	}
	if candidate == "" {
		return Result{HadStored: true}, nil
	}
	match := subtle.ConstantTimeCompare([]byte(candidate), []byte(rec.Value)) == 1
	return Result{OK: match, HadStored: true}, nil
}
