// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"go.uber.org/zap"
)

// DefaultOTPRetention is how long past expiry a login code is kept.
const DefaultOTPRetention = 24 * time.Hour

// ExpiredCodeStore is satisfied by the login code store.
type ExpiredCodeStore interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// OTPRetentionJob removes login codes that expired more than retention ago.
// Codes a user could still submit are never touched.
func OTPRetentionJob(store ExpiredCodeStore, retention time.Duration, now func() time.Time, logger *zap.Logger) Job {
	if retention <= 0 {
		retention = DefaultOTPRetention
	}
	if now == nil {
		now = time.Now
	}
	return Job{
		Name:     "otp-retention",
		Interval: time.Hour,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			deleted, err := store.DeleteExpiredBefore(ctx, now().Add(-retention))
			if err != nil {
				return fmt.Errorf("delete expired login codes: %w", err)
			}
			if deleted > 0 {
				logger.Info("cleaned up expired login codes", zap.Int64("deleted", deleted))
			}
			return nil
		},
	}
}

// EventCounter is satisfied by the activity store.
type EventCounter interface {
	CountByType(ctx context.Context, eventType string, since time.Time) (int64, error)
}

// summaryEvents are the failure signals worth a periodic count.
var summaryEvents = []string{
	auditlog.EventLoginFailed,
	auditlog.EventLoginBlockedLockout,
	auditlog.EventOTPFailed,
	auditlog.EventOTPDeliveryFailed,
	auditlog.EventLoginRateLimited,
}

// SecuritySummaryJob logs hourly counts of failed sign-in events together
// with the audit writer's own counters.
func SecuritySummaryJob(counter EventCounter, audit func() auditlog.Stats, now func() time.Time, logger *zap.Logger) Job {
	if now == nil {
		now = time.Now
	}
	const window = time.Hour
	return Job{
		Name:     "security-summary",
		Interval: window,
		Timeout:  30 * time.Second,
		Run: func(ctx context.Context) error {
			since := now().Add(-window)
			fields := make([]zap.Field, 0, len(summaryEvents)+4)
			for _, ev := range summaryEvents {
				n, err := counter.CountByType(ctx, ev, since)
				if err != nil {
					return fmt.Errorf("count %s: %w", ev, err)
				}
				fields = append(fields, zap.Int64(ev, n))
			}
			if audit != nil {
				st := audit()
				fields = append(fields,
					zap.Uint64("audit_enqueued", st.Enqueued),
					zap.Uint64("audit_written", st.Written),
					zap.Uint64("audit_dropped", st.Dropped),
					zap.Uint64("audit_failed", st.Failed))
			}
			logger.Info("security summary", fields...)
			return nil
		},
	}
}

// Sweeper is satisfied by the login rate limiter.
type Sweeper interface {
	Sweep() int
}

// LimiterSweepJob evicts idle per-client rate limit buckets.
func LimiterSweepJob(l Sweeper, logger *zap.Logger) Job {
	return Job{
		Name:     "ratelimit-sweep",
		Interval: 10 * time.Minute,
		Run: func(ctx context.Context) error {
			if n := l.Sweep(); n > 0 {
				logger.Debug("evicted idle rate limit buckets", zap.Int("evicted", n))
			}
			return nil
		},
	}
}
