// Package lockout decides when an email is locked out after repeated
// password failures.
//
// Locking is per email regardless of client address: only a correct
// password resets the counter.
package lockout

import (
	"context"
	"time"

	"github.com/dalemusser/securenotes/internal/domain/models"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultMaxFails = 5
	DefaultLockFor  = 15 * time.Minute
)

// Store is the persistence the tracker needs.
type Store interface {
	Get(ctx context.Context, email string) (*models.LoginAttempt, error)
	IncrementFailure(ctx context.Context, email string, maxFails int, lockUntil, now time.Time) (*models.LoginAttempt, error)
	Reset(ctx context.Context, email string, now time.Time) error
}

type Config struct {
	MaxFails int
	LockFor  time.Duration
}

// Tracker implements CheckLocked / RecordFailure / RecordSuccess.
type Tracker struct {
	store    Store
	maxFails int
	lockFor  time.Duration

	// Now is the clock; tests replace it.
	Now func() time.Time
}

func New(store Store, cfg Config) *Tracker {
	if cfg.MaxFails <= 0 {
		cfg.MaxFails = DefaultMaxFails
	}
	if cfg.LockFor <= 0 {
		cfg.LockFor = DefaultLockFor
	}
	return &Tracker{
		store:    store,
		maxFails: cfg.MaxFails,
		lockFor:  cfg.LockFor,
		Now:      time.Now,
	}
}

// MaxFails returns the configured failure threshold.
func (t *Tracker) MaxFails() int { return t.maxFails }

// CheckLocked reports whether email has a lock that has not yet expired.
func (t *Tracker) CheckLocked(ctx context.Context, email string) (bool, error) {
	a, err := t.store.Get(ctx, email)
	if err != nil {
		return false, err
	}
	return a.LockedAt(t.Now()), nil
}

// RecordFailure counts one failed password check. When the count reaches the
// threshold the email is locked for the configured duration.
func (t *Tracker) RecordFailure(ctx context.Context, email string) (*models.LoginAttempt, error) {
	now := t.Now().UTC()
	return t.store.IncrementFailure(ctx, email, t.maxFails, now.Add(t.lockFor), now)
}

// RecordSuccess clears the counter and any lock.
func (t *Tracker) RecordSuccess(ctx context.Context, email string) error {
	return t.store.Reset(ctx, email, t.Now().UTC())
}
