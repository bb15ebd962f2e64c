package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrStateMismatch indicates the callback's state parameter was absent
	// or did not equal the consumed stored value.
	ErrStateMismatch = errors.New("login state mismatch")
	// ErrNoToken indicates a callback that passed state verification but
	// carried no token.
	ErrNoToken = errors.New("no token received")
)

// ProviderError represents a failure the auth server itself reported via the
// callback's error parameter.
type ProviderError struct {
	Code string
}

func (e *ProviderError) Error() string {
	return e.Code
}

// RequestError represents a non-success response to the email login request.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("email login failed (%d): %s", e.Status, e.Message)
}
