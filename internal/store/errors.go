package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey matches every DuplicateKeyError under errors.Is.
var ErrDuplicateKey = errors.New("duplicate key")

// Unique account fields reported by DuplicateKeyError.
const (
	FieldUsername = "username"
	FieldEmail    = "email"
)

// DuplicateKeyError reports which unique field rejected an insert.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}
