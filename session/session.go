// Package session maintains the client's authentication session: a persisted
// bearer token, the identity decoded from it, and the transient loading/error
// flags the UI layer renders from.
package session

// UserRecord is the identity decoded from a bearer token's payload.
//
// Well-known claims are lifted into typed fields; Claims carries the whole
// payload verbatim for anything else the server put there.
type UserRecord struct {
	// ID is the token's subject claim. Always present.
	ID      string
	Email   string
	Name    string
	Picture string

	Claims map[string]any
}

// Session is a snapshot of the authentication state.
//
// Authenticated is true exactly when User and Token are both set. Loading is
// independent of Authenticated: an authenticated session can have a
// background attempt in flight.
type Session struct {
	Authenticated bool
	User          *UserRecord
	Token         string

	// Loading is true while a session-affecting operation is in flight
	// (initial restore, callback processing, email-link request).
	Loading bool

	// Err holds the last failure reason, or "" if none. Cleared when a new
	// attempt starts.
	Err string
}
