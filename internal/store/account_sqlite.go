package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/authkeep/authserver/types"
	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);`

// SQLiteAccountRepository handles persistence for accounts in a single
// SQLite file. It suits local development and single-node deployments.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// OpenSQLiteAccountRepository opens (creating if needed) the database at path
// and ensures the accounts table exists.
func OpenSQLiteAccountRepository(ctx context.Context, path string) (*SQLiteAccountRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer at a time; a single connection serialises
	// writes instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &SQLiteAccountRepository{db: db}, nil
}

func (r *SQLiteAccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	const query = `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts
		WHERE id = ?1`
	return r.getOne(ctx, query, id)
}

func (r *SQLiteAccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	const query = `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts
		WHERE username = ?1`
	return r.getOne(ctx, query, username)
}

func (r *SQLiteAccountRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (types.Account, error) {
	const query = `
		SELECT id, username, email, password_hash, avatar, created_at
		FROM accounts
		WHERE username = ?1 OR email = ?2
		ORDER BY (username = ?1) DESC
		LIMIT 1`
	return r.getOne(ctx, query, username, email)
}

func (r *SQLiteAccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	const query = `
		INSERT INTO accounts (id, username, email, password_hash, avatar, created_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Avatar,
		account.CreatedAt.UnixMilli(),
	); err != nil {
		if hint, ok := sqliteUniqueViolation(err); ok {
			if dup, ok := resolveDuplicate(ctx, r, account, hint); ok {
				return types.Account{}, dup
			}
		}
		return types.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// Ping checks that the database is reachable.
func (r *SQLiteAccountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the underlying database.
func (r *SQLiteAccountRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteAccountRepository) getOne(ctx context.Context, query string, args ...any) (types.Account, error) {
	var (
		account   types.Account
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Avatar,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, fmt.Errorf("query account: %w", err)
	}
	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	return account, nil
}

func sqliteUniqueViolation(err error) (string, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return "", false
	}
	code := sqliteErr.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT {
		return "", false
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "accounts.username"):
		return FieldUsername, true
	case strings.Contains(msg, "accounts.email"):
		return FieldEmail, true
	default:
		return "", true
	}
}
