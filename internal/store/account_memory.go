package store

import (
	"context"
	"sync"
	"time"

	"github.com/authkeep/authserver/types"
	"github.com/google/uuid"
)

// MemoryAccountRepository keeps accounts in process memory. Create checks
// and inserts under a single lock, so it upholds the same uniqueness
// guarantee as the database-backed repositories.
type MemoryAccountRepository struct {
	mu         sync.RWMutex
	byID       map[string]types.Account
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:       make(map[string]types.Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *MemoryAccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return types.Account{}, ErrNotFound
	}
	return account, nil
}

func (r *MemoryAccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return types.Account{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (types.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byUsername[username]; ok {
		return r.byID[id], nil
	}
	if id, ok := r.byEmail[email]; ok {
		return r.byID[id], nil
	}
	return types.Account{}, ErrNotFound
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	if err := ctx.Err(); err != nil {
		return types.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[account.Username]; ok {
		return types.Account{}, &DuplicateKeyError{Field: FieldUsername}
	}
	if _, ok := r.byEmail[account.Email]; ok {
		return types.Account{}, &DuplicateKeyError{Field: FieldEmail}
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.CreatedAt = time.Now().UTC()

	r.byID[account.ID] = account
	r.byUsername[account.Username] = account.ID
	r.byEmail[account.Email] = account.ID
	return account, nil
}

// Ping always succeeds.
func (r *MemoryAccountRepository) Ping(ctx context.Context) error {
	return nil
}
