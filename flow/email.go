package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of an error response body we will read.
const maxErrorBody = 4096

// genericEmailError is shown when the server gives no usable message.
const genericEmailError = "email login request failed"

type emailLoginRequest struct {
	Email       string `json:"email"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
}

type emailLoginError struct {
	Message string `json:"message"`
}

// RequestEmailLogin asks the auth server to send a magic link to email. No
// session is created here; clicking the emailed link re-enters through the
// callback handshake.
//
// The session goes Loading for the duration. Failures surface twice, by
// design: in the session's Err for observers, and as the returned error so
// the caller can decide between "check your email" and "try again". A
// *RequestError carries a server-reported failure; any other error is a
// transport fault. On success the session's authenticated state is
// unchanged.
//
// A later login attempt supersedes this one: its state overwrites ours, so
// whatever the abandoned request's link would deliver can no longer verify.
// The abandoned request's eventual response is dropped too — the error is
// still returned to its caller, but the session only reflects the newest
// attempt.
func (c *Coordinator) RequestEmailLogin(ctx context.Context, email, returnPath, appState string) error {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	c.sessions.SetLoading(true)

	state, err := c.states.Issue(appState)
	if err != nil {
		c.sessions.SetError(err.Error())
		return err
	}

	body, err := json.Marshal(emailLoginRequest{
		Email:       email,
		RedirectURI: c.returnURL(returnPath),
		State:       state,
	})
	if err != nil {
		c.sessions.SetError(err.Error())
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authServerURL+"/email/login", bytes.NewReader(body))
	if err != nil {
		c.sessions.SetError(err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		err = fmt.Errorf("email login request: %w", err)
		if c.currentAttempt(attempt) {
			c.sessions.SetError(err.Error())
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := genericEmailError
		var serverErr emailLoginError
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(b, &serverErr) == nil && serverErr.Message != "" {
			msg = serverErr.Message
		}
		if c.currentAttempt(attempt) {
			c.sessions.SetError(msg)
		}
		return &RequestError{Status: resp.StatusCode, Message: msg}
	}

	if c.currentAttempt(attempt) {
		c.sessions.SetLoading(false)
	}
	return nil
}

// currentAttempt reports whether attempt is still the newest email-login
// attempt. A request that was superseded while in flight completes for its
// caller but no longer speaks for the session.
func (c *Coordinator) currentAttempt(attempt uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return attempt == c.attempt
}
