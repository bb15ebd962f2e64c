// Command login-flow demonstrates the authflow login lifecycle from a
// terminal: it prints the provider redirect instead of navigating, accepts
// the callback URL pasted back in, and keeps the session in the XDG state
// directory so it survives between runs.
//
// Usage:
//
//	login-flow login [google|github]
//	login-flow email <address>
//	login-flow callback '<pasted callback URL>'
//	login-flow status
//	login-flow logout
//
// Configuration (environment or .env): AUTHFLOW_SERVER_URL,
// AUTHFLOW_STATE_DIR, AUTHFLOW_ORIGIN, AUTHFLOW_SEAL_KEY.
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/joho/godotenv"

	"github.com/tidegate/authflow/csrf"
	"github.com/tidegate/authflow/flow"
	"github.com/tidegate/authflow/session"
	"github.com/tidegate/authflow/storage"
)

// termNav prints navigations instead of performing them.
type termNav struct {
	loc *url.URL
}

func (n *termNav) Location() *url.URL { return n.loc }

func (n *termNav) Navigate(rawURL string) {
	fmt.Println("open in your browser:")
	fmt.Println("  " + rawURL)
}

func (n *termNav) ReplaceURL(u *url.URL) { n.loc = u }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	origin := os.Getenv("AUTHFLOW_ORIGIN")
	if origin == "" {
		origin = "http://localhost:8080"
	}
	loc, err := url.Parse(origin + "/welcome")
	if err != nil {
		log.Fatal(err)
	}

	stateDir := os.Getenv("AUTHFLOW_STATE_DIR")
	if stateDir == "" {
		stateDir = storage.DefaultDir("authflow-example")
	}
	// Both scopes live on disk here so the demo works across separate
	// process runs; a long-lived client would keep the login state in a
	// MemoryStore.
	var store storage.Store = storage.NewFileStore(stateDir)

	// With a seal key configured, nothing under the state dir is plaintext.
	// The key must stay stable across runs or the persisted session reads
	// as tampered and is dropped on restore.
	if sealKey := os.Getenv("AUTHFLOW_SEAL_KEY"); sealKey != "" {
		key := sha256.Sum256([]byte(sealKey))
		sealed, err := storage.NewSealedStore(store, "1", map[string][]byte{"1": key[:]})
		if err != nil {
			log.Fatal(err)
		}
		store = sealed
	}

	sessions := session.New(
		session.WithStorage(store),
		session.WithLoginCallback(func(u *session.UserRecord, _ string) {
			fmt.Printf("logged in as %s <%s>\n", u.Name, u.Email)
		}),
		session.WithLogoutCallback(func() {
			fmt.Println("logged out")
		}),
	)
	states := csrf.New(csrf.WithStore(store))

	nav := &termNav{loc: loc}
	var opts []flow.Option
	if serverURL := os.Getenv("AUTHFLOW_SERVER_URL"); serverURL != "" {
		opts = append(opts, flow.WithAuthServerURL(serverURL))
	}
	co := flow.New(sessions, states, nav, opts...)

	if len(os.Args) < 2 {
		log.Fatal("usage: login-flow login|email|callback|status|logout")
	}

	switch os.Args[1] {
	case "login":
		provider := flow.ProviderGoogle
		if len(os.Args) > 2 {
			provider = flow.Provider(os.Args[2])
		}
		if err := co.LoginWithProvider(provider, "/welcome", ""); err != nil {
			log.Fatal(err)
		}

	case "email":
		if len(os.Args) < 3 {
			log.Fatal("usage: login-flow email <address>")
		}
		if err := co.RequestEmailLogin(context.Background(), os.Args[2], "/welcome", ""); err != nil {
			log.Fatal(err)
		}
		fmt.Println("check your email for the login link")

	case "callback":
		if len(os.Args) < 3 {
			log.Fatal("usage: login-flow callback '<url>'")
		}
		cb, err := url.Parse(os.Args[2])
		if err != nil {
			log.Fatal(err)
		}
		nav.loc = cb
		outcome, err := co.HandleCallback()
		switch outcome {
		case flow.OutcomeAuthenticated:
			snap := sessions.Snapshot()
			fmt.Printf("authenticated: user %s\n", snap.User.ID)
		case flow.OutcomeRejected:
			fmt.Printf("rejected: %v\n", err)
		case flow.OutcomeNothingToDo:
			fmt.Println("no callback parameters in that URL")
		}

	case "status":
		snap := sessions.Restore()
		if snap.Authenticated {
			fmt.Printf("logged in: %s <%s>\n", snap.User.ID, snap.User.Email)
		} else if snap.Err != "" {
			fmt.Printf("logged out (%s)\n", snap.Err)
		} else {
			fmt.Println("logged out")
		}

	case "logout":
		co.Logout("")

	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}
}
