package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/authkeep/authserver/types"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

// Constraint names created by the accounts migration.
const (
	constraintAccountsUsername = "accounts_username_key"
	constraintAccountsEmail    = "accounts_email_key"
)

// AccountRepository handles persistence for accounts in PostgreSQL.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	const query = `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	const query = `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts
		WHERE username = $1`
	return r.getOne(ctx, query, username)
}

// GetByUsernameOrEmail returns the account matching either field. When the
// fields match two different accounts the username match is returned.
func (r *AccountRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (types.Account, error) {
	const query = `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts
		WHERE username = $1 OR email = $2
		ORDER BY (username = $1) DESC
		LIMIT 1`
	return r.getOne(ctx, query, username, email)
}

// Create inserts account in a single statement. The unique constraints on
// username and email are the only uniqueness check; a violation is reported
// as a DuplicateKeyError.
func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	const query = `
		INSERT INTO accounts (id, username, email, password_hash, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Avatar,
		account.CreatedAt,
	); err != nil {
		if hint, ok := postgresUniqueViolation(err); ok {
			if dup, ok := resolveDuplicate(ctx, r, account, hint); ok {
				return types.Account{}, dup
			}
		}
		return types.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// Ping checks that the database is reachable.
func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AccountRepository) getOne(ctx context.Context, query string, args ...any) (types.Account, error) {
	var account types.Account
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Avatar,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}

// postgresUniqueViolation reports whether err is a unique violation and, when
// the constraint is known, which account field it guards.
func postgresUniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pgerrcode.UniqueViolation {
		return "", false
	}
	switch pqErr.Constraint {
	case constraintAccountsUsername:
		return FieldUsername, true
	case constraintAccountsEmail:
		return FieldEmail, true
	default:
		return "", true
	}
}
