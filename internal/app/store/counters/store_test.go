package counters

import (
	"sync"
	"testing"

	"github.com/dalemusser/securenotes/internal/testutil"
)

func TestNext_StartsAtOneAndIncrements(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Next(ctx, SeqUsers)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}

	// Sequences are independent.
	got, err := store.Next(ctx, SeqLoginOTPs)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got != 1 {
		t.Errorf("Next(%q) = %d, want 1", SeqLoginOTPs, got)
	}
}

func TestNext_ConcurrentCallsAreUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Seed the sequence so concurrent upserts do not race on creation.
	if _, err := store.Next(ctx, SeqUsers); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.Next(ctx, SeqUsers)
			if err != nil {
				t.Errorf("Next() error = %v", err)
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d distinct ids, want %d", len(seen), n)
	}
}
