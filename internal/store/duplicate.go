package store

import (
	"context"

	"github.com/authkeep/authserver/types"
)

type usernameOrEmailFinder interface {
	GetByUsernameOrEmail(ctx context.Context, username, email string) (types.Account, error)
}

// resolveDuplicate names the field that made an insert of account fail.
// The insert has already been rejected by the backend's unique constraint;
// this only decides what to report. A username collision wins over an email
// collision so that repeating an identical registration always blames the
// username. hint is the field derived from the backend error, if any.
func resolveDuplicate(ctx context.Context, finder usernameOrEmailFinder, account types.Account, hint string) (*DuplicateKeyError, bool) {
	existing, err := finder.GetByUsernameOrEmail(ctx, account.Username, account.Email)
	if err == nil {
		switch {
		case existing.Username == account.Username:
			return &DuplicateKeyError{Field: FieldUsername}, true
		case existing.Email == account.Email:
			return &DuplicateKeyError{Field: FieldEmail}, true
		}
	}
	if hint != "" {
		return &DuplicateKeyError{Field: hint}, true
	}
	return nil, false
}
