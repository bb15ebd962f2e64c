package flow

import (
	"fmt"
)

// Outcome is the terminal result of a callback handshake.
type Outcome int

const (
	// OutcomeProcessing means the handshake is still running. It is what a
	// re-entrant invocation sees when it arrives before the first one has
	// recorded its verdict.
	OutcomeProcessing Outcome = iota
	// OutcomeNothingToDo means the current URL carried no callback
	// parameters and the policy is to ignore that.
	OutcomeNothingToDo
	// OutcomeAuthenticated means the handshake established a session.
	OutcomeAuthenticated
	// OutcomeRejected means the handshake failed; the session holds the
	// reason.
	OutcomeRejected
)

// HandleCallback runs the redirect-back handshake against the current URL.
//
// It runs at most once per Coordinator: hosting layers that mount twice get
// the recorded outcome back on re-invocation, with no further effect (a
// re-invocation racing the first run gets OutcomeProcessing). The
// steps run in strict order: the stored state is consumed exactly once and
// before any session mutation, then a provider-reported error, a state
// mismatch, and a missing token each reject the attempt, in that order.
// Otherwise the token is materialized as a new login and the auth
// parameters are scrubbed from the visible URL.
func (c *Coordinator) HandleCallback() (Outcome, error) {
	c.mu.Lock()
	if c.processed {
		outcome, err := c.outcome, c.outcomeErr
		c.mu.Unlock()
		return outcome, err
	}
	q := c.nav.Location().Query()
	token, state, provErr := q.Get("token"), q.Get("state"), q.Get("error")
	if token == "" && state == "" && provErr == "" && c.emptyPolicy == EmptyCallbackIgnore {
		// Nothing to do. The guard stays unarmed so a real callback later
		// in this page load still processes.
		c.mu.Unlock()
		return OutcomeNothingToDo, nil
	}
	c.processed = true
	c.mu.Unlock()

	outcome, err := c.process(token, state, provErr)
	// Whatever the verdict, a reload of this page must not see the stale
	// parameters and reprocess them through a fresh page load.
	c.scrubURL()

	c.mu.Lock()
	c.outcome, c.outcomeErr = outcome, err
	c.mu.Unlock()
	return outcome, err
}

func (c *Coordinator) process(token, state, provErr string) (Outcome, error) {
	// Consume the stored state first, regardless of what the provider
	// reported: a replayed callback URL must never find it again.
	res, verr := c.states.VerifyAndConsume(state)

	if provErr != "" {
		c.sessions.Fail(provErr)
		return OutcomeRejected, &ProviderError{Code: provErr}
	}
	if verr != nil {
		c.sessions.Fail(verr.Error())
		return OutcomeRejected, verr
	}
	if !res.OK {
		// Report presence, not values: the stored state is a secret even
		// after consumption.
		err := fmt.Errorf("%w (state param present: %t, pending state present: %t)",
			ErrStateMismatch, state != "", res.HadStored)
		c.sessions.Fail(err.Error())
		return OutcomeRejected, err
	}
	if token == "" {
		c.sessions.Fail(ErrNoToken.Error())
		return OutcomeRejected, ErrNoToken
	}

	_, merr := c.sessions.Materialize(token, true)
	if merr != nil {
		return OutcomeRejected, merr
	}
	return OutcomeAuthenticated, nil
}

// scrubURL removes the auth parameters from the visible URL, preserving the
// path and any unrelated query parameters.
func (c *Coordinator) scrubURL() {
	u := *c.nav.Location()
	q := u.Query()
	q.Del("token")
	q.Del("state")
	q.Del("error")
	u.RawQuery = q.Encode()
	c.nav.ReplaceURL(&u)
}
