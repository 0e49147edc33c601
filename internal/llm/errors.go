package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	// ErrUnreachable means the runtime could not be contacted at all.
	ErrUnreachable ErrorKind = "unreachable"
	// ErrTimeout means the call exceeded its deadline.
	ErrTimeout ErrorKind = "timeout"
	// ErrMalformedResponse means the runtime answered but the payload was
	// unusable: bad status, undecodable body, or empty content.
	ErrMalformedResponse ErrorKind = "malformed_response"
)

// ProviderError is the only error type a Client surfaces. Empty content is
// reported as ErrMalformedResponse, never returned as an empty success.
type ProviderError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s provider %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s provider %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError unwraps err into a *ProviderError if it is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// classifyTransportError maps an http.Client error onto the taxonomy.
func classifyTransportError(provider string, err error) *ProviderError {
	kind := ErrUnreachable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = ErrTimeout
	}
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}
