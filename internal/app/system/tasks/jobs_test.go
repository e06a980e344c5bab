package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/securenotes/internal/app/system/auditlog"
	"github.com/dalemusser/securenotes/internal/app/system/ratelimit"
	"github.com/dalemusser/securenotes/internal/app/system/tasks"
	"github.com/dalemusser/securenotes/internal/domain/models"
	"github.com/dalemusser/securenotes/internal/testutil/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestOTPRetentionJob(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := fakes.NewOTPStore()

	_, _ = store.Insert(ctx, 1, "111111", now.Add(-25*time.Hour)) // long expired
	_, _ = store.Insert(ctx, 1, "222222", now.Add(-time.Hour))    // expired, within retention
	_, _ = store.Insert(ctx, 2, "333333", now.Add(4*time.Minute)) // live

	core, logs := observer.New(zap.InfoLevel)
	runner := tasks.New(zap.NewNop())
	runner.Register(tasks.OTPRetentionJob(store, 0, func() time.Time { return now }, zap.New(core)))

	require.NoError(t, runner.RunOnce(ctx, "otp-retention"))
	assert.Equal(t, 2, store.Len())

	latest, err := store.Latest(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "333333", latest.Code)

	entries := logs.FilterMessage("cleaned up expired login codes").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 1, entries[0].ContextMap()["deleted"])
}

func int64p(v int64) *int64 { return &v }

func TestSecuritySummaryJob(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sink := &fakes.Sink{}
	for _, e := range []models.ActivityLogEntry{
		{EventType: auditlog.EventLoginFailed, CreatedAt: now.Add(-10 * time.Minute)},
		{EventType: auditlog.EventLoginFailed, CreatedAt: now.Add(-20 * time.Minute)},
		{EventType: auditlog.EventLoginFailed, CreatedAt: now.Add(-2 * time.Hour)},
		{EventType: auditlog.EventOTPFailed, UserID: int64p(3), CreatedAt: now.Add(-time.Minute)},
		{EventType: auditlog.EventLoginSuccess, UserID: int64p(3), CreatedAt: now.Add(-time.Minute)},
	} {
		require.NoError(t, sink.Append(ctx, e))
	}

	core, logs := observer.New(zap.InfoLevel)
	stats := func() auditlog.Stats { return auditlog.Stats{Enqueued: 9, Written: 7, Dropped: 1, Failed: 1} }
	job := tasks.SecuritySummaryJob(sink, stats, func() time.Time { return now }, zap.New(core))
	require.NoError(t, job.Run(ctx))

	entries := logs.FilterMessage("security summary").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 2, fields[auditlog.EventLoginFailed])
	assert.EqualValues(t, 1, fields[auditlog.EventOTPFailed])
	assert.EqualValues(t, 0, fields[auditlog.EventLoginBlockedLockout])
	assert.EqualValues(t, 1, fields["audit_dropped"])
	assert.NotContains(t, fields, auditlog.EventLoginSuccess)
}

func TestSecuritySummaryJob_StoreError(t *testing.T) {
	sink := &fakes.Sink{FailTimes: -1, Err: errors.New("no primary")}
	job := tasks.SecuritySummaryJob(sink, nil, nil, zap.NewNop())
	assert.Error(t, job.Run(context.Background()))
}

func TestLimiterSweepJob(t *testing.T) {
	l := ratelimit.New(60, 1)
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l.Now = func() time.Time { return start }
	l.Allow("192.0.2.1")
	l.Allow("192.0.2.2")
	require.Equal(t, 2, l.Len())

	l.Now = func() time.Time { return start.Add(time.Hour) }
	job := tasks.LimiterSweepJob(l, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, l.Len())
}
