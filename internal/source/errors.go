package source

import (
	"errors"
	"fmt"
)

// Kind classifies source fetch and command failures
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindUnreachable Kind = "unreachable"
	KindAuthFailed  Kind = "auth_failed"
	KindMalformed   Kind = "malformed_response"
	KindNotFound    Kind = "not_found"
)

// Error is a classified failure talking to one source
type Error struct {
	Kind   Kind
	Source string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s: %s %s: %v", e.Source, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("source %s: %s %s", e.Source, e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain. Unclassified errors
// report as unreachable.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnreachable
}

// IsNotFound reports whether the error is an upstream 404
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
