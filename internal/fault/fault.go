// Package fault defines the user-facing error taxonomy shared by capture, analysis, and session code.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable failure surfaced to the user.
type Kind string

const (
	InvalidInput      Kind = "invalid_input"
	DeviceUnavailable Kind = "device_unavailable"
	Configuration     Kind = "configuration"
	Transport         Kind = "transport"
	MalformedResponse Kind = "malformed_response"
	Upstream          Kind = "upstream"
)

// Title returns a short human label for the kind.
func (k Kind) Title() string {
	switch k {
	case InvalidInput:
		return "Invalid input"
	case DeviceUnavailable:
		return "Device unavailable"
	case Configuration:
		return "Configuration error"
	case Transport:
		return "Transport error"
	case MalformedResponse:
		return "Malformed response"
	case Upstream:
		return "Upstream error"
	default:
		return "Error"
	}
}

// Error is a classified failure with an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error from a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with a formatted context message.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}
