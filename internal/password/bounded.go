package password

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Observer receives the duration of every derivation or verification.
type Observer func(op string, d time.Duration)

// Bounded limits how many hash operations run at once so that a burst of
// registrations cannot monopolise the CPU. Waiting callers give up when
// their context is done.
type Bounded struct {
	hasher  Hasher
	sem     *semaphore.Weighted
	observe Observer
	dummy   func() (string, error)
}

// BoundedOption configures a Bounded hasher.
type BoundedOption func(*Bounded)

// WithObserver reports operation timings to fn.
func WithObserver(fn Observer) BoundedOption {
	return func(b *Bounded) {
		b.observe = fn
	}
}

// NewBounded wraps hasher so that at most limit operations run concurrently.
func NewBounded(hasher Hasher, limit int, opts ...BoundedOption) *Bounded {
	if limit < 1 {
		limit = 1
	}
	b := &Bounded{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(limit)),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.dummy = sync.OnceValues(func() (string, error) {
		var buf [24]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		return hasher.Hash(hex.EncodeToString(buf[:]))
	})
	return b
}

// Hash derives a hash for password once a slot is free.
func (b *Bounded) Hash(ctx context.Context, password string) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hash slot: %w", err)
	}
	defer b.sem.Release(1)

	start := time.Now()
	hash, err := b.hasher.Hash(password)
	b.record("hash", start)
	return hash, err
}

// Verify checks password against hash once a slot is free.
func (b *Bounded) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("wait for hash slot: %w", err)
	}
	defer b.sem.Release(1)

	start := time.Now()
	ok, err := b.hasher.Verify(password, hash)
	b.record("verify", start)
	return ok, err
}

// DummyHash returns a hash of a random secret, derived once. Verifying
// against it costs the same as a real verification and never matches.
func (b *Bounded) DummyHash() (string, error) {
	return b.dummy()
}

func (b *Bounded) record(op string, start time.Time) {
	if b.observe != nil {
		b.observe(op, time.Since(start))
	}
}
