package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentials is returned for an unknown username and for a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthorized is returned when a bearer token is missing, invalid,
	// expired, or names an account that does not exist.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError names the fields a client must fix. Without a Reason the
// fields were empty.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// InternalError wraps an unexpected failure. Op names the step that failed
// and is safe to show to clients; Err is for logs only.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internalError(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}

func requireFields(fields ...[2]string) error {
	var missing []string
	for _, field := range fields {
		if field[1] == "" {
			missing = append(missing, field[0])
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
