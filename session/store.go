package session

import (
	"sync"

	"github.com/tidegate/authflow/storage"
)

// DefaultTokenKey is the durable-storage key holding the raw bearer token.
const DefaultTokenKey = "auth_token"

// LoginCallback is invoked after a new login materializes a session. It is
// not invoked for passive restores of a persisted token.
type LoginCallback func(user *UserRecord, token string)

// LogoutCallback is invoked after Clear tears down an authenticated session.
type LogoutCallback func()

// Store is the single source of truth for the Session. It bridges durable
// storage (the raw token) and the in-memory snapshot observers subscribe to.
//
// All methods are safe for concurrent use. Callbacks and subscriber
// notifications run outside the store's lock.
type Store struct {
	mu       sync.Mutex
	storage  storage.Store
	tokenKey string
	onLogin  LoginCallback
	onLogout LogoutCallback

	cur     Session
	subs    map[int]func(Session)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithStorage sets the durable store holding the token. Defaults to an
// in-process MemoryStore, which callers wanting persistence across restarts
// will replace with a FileStore (optionally sealed).
func WithStorage(st storage.Store) Option {
	return func(s *Store) {
		s.storage = st
	}
}

// WithTokenKey sets the durable-storage key for the token.
func WithTokenKey(key string) Option {
	return func(s *Store) {
		s.tokenKey = key
	}
}

// WithLoginCallback sets the side effect run on each new login.
func WithLoginCallback(fn LoginCallback) Option {
	return func(s *Store) {
		s.onLogin = fn
	}
}

// WithLogoutCallback sets the side effect run on logout.
func WithLogoutCallback(fn LogoutCallback) Option {
	return func(s *Store) {
		s.onLogout = fn
	}
}

// New creates a Store. The initial session is unauthenticated with
// Loading=true, pending Restore.
func New(opts ...Option) *Store {
	s := &Store{
		tokenKey: DefaultTokenKey,
		subs:     make(map[int]func(Session)),
		cur:      Session{Loading: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.storage == nil {
		s.storage = storage.NewMemoryStore()
	}
	return s
}

// Snapshot returns the current session.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Subscribe registers fn to receive a snapshot after every session change.
// The returned cancel stops delivery.
func (s *Store) Subscribe(fn func(Session)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// commitLocked captures the snapshot and subscriber list; callers unlock and
// then deliver.
func (s *Store) commitLocked() (Session, []func(Session)) {
	snap := s.cur
	fns := make([]func(Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return snap, fns
}

func notify(snap Session, fns []func(Session)) {
	for _, fn := range fns {
		fn(snap)
	}
}

// Restore materializes the session from the persisted token, if any. It is
// passive: the login callback does not fire. A token that no longer decodes
// is removed from storage and surfaced via Err. With no persisted token the
// session settles into the empty shape immediately.
func (s *Store) Restore() Session {
	s.mu.Lock()
	raw, ok, err := s.storage.Get(s.tokenKey)
	switch {
	case err != nil:
		// Unreadable storage (e.g. sealed value under a rotated-out key)
		// is treated like a decode failure: drop it and start clean.
		s.storage.Delete(s.tokenKey)
		s.cur = Session{Err: err.Error()}
	case !ok:
		s.cur = Session{}
	default:
		user, derr := DecodeToken(raw)
		if derr != nil {
			s.storage.Delete(s.tokenKey)
			s.cur = Session{Err: derr.Error()}
		} else {
			s.cur = Session{Authenticated: true, User: user, Token: raw}
		}
	}
	snap, fns := s.commitLocked()
	s.mu.Unlock()
	notify(snap, fns)
	return snap
}

// Materialize decodes raw, persists it, and publishes the authenticated
// session. When newLogin is true the login callback fires.
//
// Materializing the token that is already active is a no-op: the current
// session is returned unchanged and no callback fires again. Decode and
// persistence failures settle the session into the unauthenticated shape
// with Err set, and are also returned for the caller to branch on.
func (s *Store) Materialize(raw string, newLogin bool) (Session, error) {
	s.mu.Lock()
	if s.cur.Authenticated && s.cur.Token == raw {
		snap := s.cur
		s.mu.Unlock()
		return snap, nil
	}
	user, err := DecodeToken(raw)
	if err != nil {
		s.cur = Session{Err: err.Error()}
		snap, fns := s.commitLocked()
		s.mu.Unlock()
		notify(snap, fns)
		return snap, err
	}
	if serr := s.storage.Set(s.tokenKey, raw); serr != nil {
		s.cur = Session{Err: serr.Error()}
		snap, fns := s.commitLocked()
		s.mu.Unlock()
		notify(snap, fns)
		return snap, serr
	}
	s.cur = Session{Authenticated: true, User: user, Token: raw}
	snap, fns := s.commitLocked()
	var cb LoginCallback
	if newLogin {
		cb = s.onLogin
	}
	s.mu.Unlock()
	if cb != nil {
		cb(user, raw)
	}
	notify(snap, fns)
	return snap, nil
}

// Clear removes the persisted token, resets the session to the empty shape,
// and runs the logout callback. Clearing an already-empty session skips the
// callback but still returns the canonical empty shape.
func (s *Store) Clear() Session {
	s.mu.Lock()
	wasAuthenticated := s.cur.Authenticated
	s.storage.Delete(s.tokenKey)
	s.cur = Session{}
	snap, fns := s.commitLocked()
	var cb LogoutCallback
	if wasAuthenticated {
		cb = s.onLogout
	}
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	notify(snap, fns)
	return snap
}

// SetLoading flips the loading flag. Starting a new attempt (loading=true)
// clears any previous error.
func (s *Store) SetLoading(loading bool) Session {
	s.mu.Lock()
	s.cur.Loading = loading
	if loading {
		s.cur.Err = ""
	}
	snap, fns := s.commitLocked()
	s.mu.Unlock()
	notify(snap, fns)
	return snap
}

// SetError records a failure without tearing down an existing session. Used
// for attempts that never got as far as a credential (the email-link
// request).
func (s *Store) SetError(msg string) Session {
	s.mu.Lock()
	s.cur.Loading = false
	s.cur.Err = msg
	snap, fns := s.commitLocked()
	s.mu.Unlock()
	notify(snap, fns)
	return snap
}

// Fail forces the unauthenticated shape with Err set, removing the persisted
// token so storage and memory stay consistent. Used for rejected callbacks.
// The logout callback does not fire: a rejection is not a logout.
func (s *Store) Fail(msg string) Session {
	s.mu.Lock()
	s.storage.Delete(s.tokenKey)
	s.cur = Session{Err: msg}
	snap, fns := s.commitLocked()
	s.mu.Unlock()
	notify(snap, fns)
	return snap
}

// Resync re-reads the persisted token after an external change (another
// process logged in or out). No callbacks fire; subscribers see the new
// snapshot. A persisted token equal to the active one is a no-op.
func (s *Store) Resync() Session {
	s.mu.Lock()
	raw, ok, err := s.storage.Get(s.tokenKey)
	switch {
	case err != nil:
		s.cur = Session{Err: err.Error()}
	case !ok:
		if !s.cur.Authenticated {
			snap := s.cur
			s.mu.Unlock()
			return snap
		}
		s.cur = Session{}
	case s.cur.Authenticated && s.cur.Token == raw:
		snap := s.cur
		s.mu.Unlock()
		return snap
	default:
		user, derr := DecodeToken(raw)
		if derr != nil {
			s.cur = Session{Err: derr.Error()}
		} else {
			s.cur = Session{Authenticated: true, User: user, Token: raw}
		}
	}
	snap, fns := s.commitLocked()
	s.mu.Unlock()
	notify(snap, fns)
	return snap
}

// SyncOn wires Resync to a store that can watch the token key (see
// storage.FileStore.Watch). The returned stop releases the watch.
func (s *Store) SyncOn(w storage.Watcher) (func(), error) {
	return w.Watch(s.tokenKey, func() {
		s.Resync()
	})
}
