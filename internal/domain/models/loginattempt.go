// internal/domain/models/loginattempt.go
package models

import "time"

// LoginAttempt counts consecutive failed password checks for one email.
//
// The row is created by the first failure and afterwards only upserted.
// LockedUntil is set whenever FailCount reaches the configured maximum and
// cleared, together with FailCount, on a successful password check.
type LoginAttempt struct {
	Email       string     `bson:"_id"`
	FailCount   int        `bson:"fail_count"`
	LockedUntil *time.Time `bson:"locked_until"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

// LockedAt reports whether the attempt row holds a lock that is still in
// force at now.
func (a *LoginAttempt) LockedAt(now time.Time) bool {
	return a != nil && a.LockedUntil != nil && a.LockedUntil.After(now)
}
