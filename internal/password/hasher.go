// Package password derives and verifies salted one-way password hashes.
// Plaintext passwords are never stored, logged, or compared directly.
package password

import "errors"

var (
	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordTooLong is returned when a password exceeds what the
	// algorithm can derive from. bcrypt only reads the first 72 bytes.
	ErrPasswordTooLong = errors.New("password is too long")

	// ErrInvalidHash is returned when a stored hash cannot be parsed.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Hasher derives and verifies password hashes.
type Hasher interface {
	// Hash produces a salted hash of the password. Two calls with the same
	// password return different hashes.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)
}
