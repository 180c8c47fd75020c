package types

import "time"

// Account represents a registered identity.
// Accounts are created once and never modified afterwards.
type Account struct {
	// ID is the opaque, system-generated identifier of the account.
	ID string `json:"id" db:"id"`

	// Username is the unique login name chosen at registration.
	// Matching is case-sensitive.
	Username string `json:"username" db:"username"`

	// Email is the unique contact address given at registration.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the salted one-way derivation of the password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Avatar is an optional reference to the account's picture.
	// It is stored and echoed back without interpretation.
	Avatar string `json:"avatar" db:"avatar"`

	// CreatedAt is the timestamp when the account was stored.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PublicAccount is the outbound projection of an Account.
type PublicAccount struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

// Public returns the projection of the account that is safe to send to clients.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		Username: a.Username,
		Email:    a.Email,
		Avatar:   a.Avatar,
	}
}

// AccountRegistered is the event published after an account is stored.
type AccountRegistered struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
