package scorer

import (
	"errors"
	"fmt"
)

// Kind classifies a scoring failure so the retry layer can apply a
// different policy to each.
type Kind string

const (
	// KindTransport covers connection and timeout failures reaching the
	// backend. Retried up to the full attempt budget.
	KindTransport Kind = "transport"
	// KindMalformed covers responses that do not parse as the expected
	// structured shape. The model can be non-deterministic, so these are
	// retried on a smaller budget.
	KindMalformed Kind = "malformed_response"
	// KindExhausted marks a permanent per-frame failure after retries.
	KindExhausted Kind = "exhausted"
)

// Error is a classified scoring failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("score %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure classification, if any.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

func transportError(format string, args ...any) error {
	return &Error{Kind: KindTransport, Err: fmt.Errorf(format, args...)}
}

func malformedError(format string, args ...any) error {
	return &Error{Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}
