package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/authkeep/authserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountRepo interface {
	GetByID(ctx context.Context, id string) (types.Account, error)
	GetByUsername(ctx context.Context, username string) (types.Account, error)
	GetByUsernameOrEmail(ctx context.Context, username, email string) (types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Ping(ctx context.Context) error
}

// runAccountRepoContract exercises behaviour every backend must share.
func runAccountRepoContract(t *testing.T, newRepo func(t *testing.T) accountRepo) {
	t.Run("create and read back", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, types.Account{
			Username:     "alice",
			Email:        "a@x.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Equal(t, "", created.Avatar)

		byID, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", byID.Username)
		assert.Equal(t, "hash", byID.PasswordHash)

		byName, err := repo.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byName.ID)
		assert.Equal(t, "a@x.com", byName.Email)

		require.NoError(t, repo.Ping(ctx))
	})

	t.Run("missing records", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.GetByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetByUsernameOrEmail(ctx, "nobody", "nobody@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("username lookup is case sensitive", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, types.Account{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		_, err = repo.GetByUsername(ctx, "Alice")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.Create(ctx, types.Account{Username: "Alice", Email: "A@x.com", PasswordHash: "h"})
		assert.NoError(t, err)
	})

	t.Run("find by username or email prefers username", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		alice, err := repo.Create(ctx, types.Account{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)
		bob, err := repo.Create(ctx, types.Account{Username: "bob", Email: "b@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		found, err := repo.GetByUsernameOrEmail(ctx, "nobody", "b@x.com")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, found.ID)

		found, err = repo.GetByUsernameOrEmail(ctx, "alice", "b@x.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, found.ID)
	})

	t.Run("duplicate fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, types.Account{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		cases := []struct {
			name     string
			username string
			email    string
			field    string
		}{
			{name: "identical", username: "alice", email: "a@x.com", field: FieldUsername},
			{name: "username only", username: "alice", email: "other@x.com", field: FieldUsername},
			{name: "email only", username: "carol", email: "a@x.com", field: FieldEmail},
		}
		for _, tc := range cases {
			_, err := repo.Create(ctx, types.Account{Username: tc.username, Email: tc.email, PasswordHash: "h"})
			require.Error(t, err, tc.name)
			assert.ErrorIs(t, err, ErrDuplicateKey, tc.name)

			var dup *DuplicateKeyError
			require.True(t, errors.As(err, &dup), tc.name)
			assert.Equal(t, tc.field, dup.Field, tc.name)
		}
	})

	t.Run("concurrent creates with the same username", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const attempts = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			dupes     int
		)
		start := make(chan struct{})
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, err := repo.Create(ctx, types.Account{
					Username:     "racer",
					Email:        fmt.Sprintf("racer%d@x.com", i),
					PasswordHash: "h",
				})
				mu.Lock()
				defer mu.Unlock()
				var dup *DuplicateKeyError
				switch {
				case err == nil:
					successes++
				case errors.As(err, &dup) && dup.Field == FieldUsername:
					dupes++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, attempts-1, dupes)
	})
}
