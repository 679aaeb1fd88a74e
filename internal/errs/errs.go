// Package errs provides structured error envelopes shared across the connector.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a failure category.
type Code string

const (
	// CodeTransport indicates a network or TLS transport failure.
	CodeTransport Code = "transport"
	// CodeAuth indicates a signing or credential failure.
	CodeAuth Code = "auth"
	// CodeRejected indicates an exchange-side rejection (HTTP 4xx with code/msg).
	CodeRejected Code = "rejected"
	// CodeSequenceGap indicates a gap in the depth update sequence.
	CodeSequenceGap Code = "sequence_gap"
	// CodeStale indicates an update older than the current book state.
	CodeStale Code = "stale"
	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeProtocol indicates a malformed payload or a missing field.
	CodeProtocol Code = "protocol"
	// CodeCredentialsMissing indicates absent or unreadable credentials.
	CodeCredentialsMissing Code = "credentials_missing"
	// CodeReconcileExhausted indicates reconnect or resync attempts ran out.
	CodeReconcileExhausted Code = "reconcile_exhausted"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeBusy indicates a component refused work because it is saturated
	// or already shut down.
	CodeBusy Code = "busy"
)

// E captures structured error information produced across the connector.
type E struct {
	Op      string
	Code    Code
	HTTP    int
	RawCode string
	RawMsg  string
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and failure code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{Op: strings.TrimSpace(op), Code: code}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRawCode captures the raw exchange error code.
func WithRawCode(code string) Option {
	trimmed := strings.TrimSpace(code)
	return func(e *E) {
		e.RawCode = trimmed
	}
}

// WithRawMessage captures the raw exchange error message.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// Error renders the envelope as a single line.
func (e *E) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.HTTP != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTP)
	}
	if e.RawCode != "" || e.RawMsg != "" {
		fmt.Fprintf(&b, " [%s %s]", e.RawCode, e.RawMsg)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *E) Unwrap() error {
	return e.cause
}

// CodeOf extracts the failure code from err, walking the unwrap chain.
// Errors outside the envelope type report an empty code.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return ""
}

// HasCode reports whether err carries the given failure code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
