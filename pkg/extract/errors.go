package extract

import "errors"

// Reason tags why extraction failed.
type Reason string

const (
	ReasonProviderError  Reason = "provider_error"
	ReasonBlockedOrEmpty Reason = "blocked_or_empty"
	ReasonMalformedText  Reason = "malformed_text"
	ReasonSchemaMismatch Reason = "schema_mismatch"
)

// Sentinels matched with errors.Is against an *Error.
var (
	ErrProvider       = errors.New("provider reported an error")
	ErrBlockedOrEmpty = errors.New("no generated content")
	ErrMalformedText  = errors.New("generated text is not a JSON object")
	ErrSchemaMismatch = errors.New("generated object does not match schema")
)

// Error is returned for every extraction failure.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

// Unwrap exposes both the reason sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) sentinel() error {
	switch e.Reason {
	case ReasonProviderError:
		return ErrProvider
	case ReasonBlockedOrEmpty:
		return ErrBlockedOrEmpty
	case ReasonMalformedText:
		return ErrMalformedText
	default:
		return ErrSchemaMismatch
	}
}

func fail(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}
