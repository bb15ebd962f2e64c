// Package flow orchestrates login against an external auth server: building
// provider redirects, requesting email magic links, running the callback
// handshake, and tearing the session down on logout.
package flow

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/tidegate/authflow/csrf"
	"github.com/tidegate/authflow/session"
)

// Provider identifies a login method on the auth server.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
	ProviderEmail  Provider = "email"
)

// DefaultAuthServerURL is the production auth server endpoint.
const DefaultAuthServerURL = "https://auth.tidegate.io"

// DefaultReturnPath is where the auth server sends the user back when the
// caller does not say otherwise.
const DefaultReturnPath = "/"

// Navigator abstracts the hosting environment's location bar: where the
// client currently is, how to leave the page entirely, and how to rewrite
// the visible URL in place.
type Navigator interface {
	// Location returns the current URL.
	Location() *url.URL
	// Navigate performs a full navigation to rawURL, unloading the current
	// execution context.
	Navigate(rawURL string)
	// ReplaceURL rewrites the visible URL without reloading.
	ReplaceURL(u *url.URL)
}

// EmptyCallbackPolicy decides what HandleCallback does when the current URL
// carries none of the token/state/error parameters. The hosting layer is
// expected to avoid invoking the handler on irrelevant routes; this policy
// covers the case where it does anyway.
type EmptyCallbackPolicy int

const (
	// EmptyCallbackIgnore treats an empty callback as nothing-to-do: no
	// state is consumed, the session is untouched, and a later real
	// callback on the same page load still runs.
	EmptyCallbackIgnore EmptyCallbackPolicy = iota
	// EmptyCallbackReject processes an empty callback like any other,
	// rejecting it for want of state and token.
	EmptyCallbackReject
)

// Coordinator runs the login flows. One Coordinator corresponds to one page
// load: its callback handshake runs at most once, however many times the
// hosting layer re-invokes it.
type Coordinator struct {
	sessions *session.Store
	states   *csrf.Manager
	nav      Navigator

	client            *http.Client
	authServerURL     string
	defaultReturnPath string
	emptyPolicy       EmptyCallbackPolicy

	mu         sync.Mutex
	processed  bool
	outcome    Outcome
	outcomeErr error
	attempt    uint64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAuthServerURL sets the auth server base URL.
func WithAuthServerURL(u string) Option {
	return func(c *Coordinator) {
		c.authServerURL = strings.TrimRight(u, "/")
	}
}

// WithDefaultReturnPath sets the return path used when a login call omits
// one.
func WithDefaultReturnPath(p string) Option {
	return func(c *Coordinator) {
		c.defaultReturnPath = p
	}
}

// WithHTTPClient sets the client for the email login request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Coordinator) {
		c.client = hc
	}
}

// WithEmptyCallbackPolicy sets the empty-callback behavior.
func WithEmptyCallbackPolicy(p EmptyCallbackPolicy) Option {
	return func(c *Coordinator) {
		c.emptyPolicy = p
	}
}

// New creates a Coordinator over the given session store, state manager, and
// navigator.
func New(sessions *session.Store, states *csrf.Manager, nav Navigator, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions:          sessions,
		states:            states,
		nav:               nav,
		authServerURL:     DefaultAuthServerURL,
		defaultReturnPath: DefaultReturnPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	return c
}

// returnURL resolves the absolute URL the auth server should send the user
// back to: the current origin plus returnPath.
func (c *Coordinator) returnURL(returnPath string) string {
	if returnPath == "" {
		returnPath = c.defaultReturnPath
	}
	if !strings.HasPrefix(returnPath, "/") {
		returnPath = "/" + returnPath
	}
	loc := c.nav.Location()
	u := url.URL{Scheme: loc.Scheme, Host: loc.Host, Path: returnPath}
	return u.String()
}

// loginURL builds the auth server redirect target for provider. email is
// included only for the email-redirect variant.
func (c *Coordinator) loginURL(provider Provider, state, returnPath, email string) string {
	q := url.Values{}
	q.Set("redirect_uri", c.returnURL(returnPath))
	q.Set("state", state)
	if email != "" {
		q.Set("email", email)
	}
	return c.authServerURL + "/" + string(provider) + "/login?" + q.Encode()
}

// LoginWithProvider mints a fresh state and navigates to the provider's
// login endpoint on the auth server. The page unloads; this only returns
// early, with an error, if the state could not be issued.
func (c *Coordinator) LoginWithProvider(provider Provider, returnPath, appState string) error {
	state, err := c.states.Issue(appState)
	if err != nil {
		return err
	}
	c.nav.Navigate(c.loginURL(provider, state, returnPath, ""))
	return nil
}

// LoginWithEmailRedirect is the redirect-style variant of email login, for
// servers that collect the address on their own page. Most callers want
// RequestEmailLogin instead.
func (c *Coordinator) LoginWithEmailRedirect(email, returnPath, appState string) error {
	state, err := c.states.Issue(appState)
	if err != nil {
		return err
	}
	c.nav.Navigate(c.loginURL(ProviderEmail, state, returnPath, email))
	return nil
}

// Logout clears the session and navigates to redirectTo, or the default
// return path when empty.
func (c *Coordinator) Logout(redirectTo string) {
	c.sessions.Clear()
	if redirectTo == "" {
		redirectTo = c.defaultReturnPath
	}
	c.nav.Navigate(redirectTo)
}
