package provider

import (
	"errors"
	"fmt"
)

// ErrMissingCredential is returned when a provider has no API key configured.
var ErrMissingCredential = errors.New("missing credential")

// Cause classifies a transport failure.
type Cause string

const (
	CauseNetwork    Cause = "network"
	CauseTimeout    Cause = "timeout"
	CauseStatus     Cause = "status"
	CauseCredential Cause = "missing_credential"
	CauseBudget     Cause = "budget_exhausted"
)

// TransportError reports a failed exchange with a provider. The payload, if
// any, is not interpreted.
type TransportError struct {
	Provider   string
	Cause      Cause
	StatusCode int
	Body       []byte
	Attempts   int
	// Retryable is set for causes worth another attempt: timeouts, network
	// failures, 5xx and 429.
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("provider %s: %s", e.Provider, e.Cause)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Reason returns the fallback reason tag of the error.
func (e *TransportError) Reason() string { return string(e.Cause) }

// BudgetError wraps a budget denial so it falls back like any transport failure.
func BudgetError(provider string, err error) *TransportError {
	return &TransportError{Provider: provider, Cause: CauseBudget, Err: err}
}

func retryableStatus(code int) bool {
	return code >= 500 || code == 429
}
