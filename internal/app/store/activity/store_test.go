package activity

import (
	"testing"
	"time"

	"github.com/dalemusser/securenotes/internal/domain/models"
	"github.com/dalemusser/securenotes/internal/testutil"
)

func int64p(v int64) *int64 { return &v }

func TestStore_AppendAndListByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now().UTC().Truncate(time.Millisecond)
	events := []string{"REGISTER_SUCCESS", "LOGIN_PASSWORD_OK_2FA_REQUIRED", "LOGIN_SUCCESS"}
	for i, ev := range events {
		err := store.Append(ctx, models.ActivityLogEntry{
			UserID:    int64p(1),
			EventType: ev,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	// Another user's event and an anonymous event.
	if err := store.Append(ctx, models.ActivityLogEntry{UserID: int64p(2), EventType: "LOGIN_SUCCESS"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, models.ActivityLogEntry{EventType: "LOGIN_FAILED"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := store.ListByUser(ctx, 1, HistoryLimit)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListByUser() returned %d entries, want 3", len(got))
	}
	if got[0].EventType != "LOGIN_SUCCESS" || got[2].EventType != "REGISTER_SUCCESS" {
		t.Errorf("ListByUser() order = [%s ... %s], want newest first", got[0].EventType, got[2].EventType)
	}
}

func TestStore_ListByUser_Limit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, models.ActivityLogEntry{UserID: int64p(3), EventType: "LOGIN_SUCCESS"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.ListByUser(ctx, 3, 2)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListByUser() returned %d entries, want 2", len(got))
	}
}

func TestStore_CountByType(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := store.Append(ctx, models.ActivityLogEntry{EventType: "LOGIN_BLOCKED_LOCKOUT"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	n, err := store.CountByType(ctx, "LOGIN_BLOCKED_LOCKOUT", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountByType() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountByType() = %d, want 3", n)
	}
}
