package testutil

import (
	"strings"
	"testing"
)

func TestDBName(t *testing.T) {
	a := dbName("TestStore/locked account")
	b := dbName("TestStore/locked account")
	if a == b {
		t.Errorf("dbName returned %q twice", a)
	}
	if !strings.HasPrefix(a, dbPrefix+"TestStore_locked_account_") {
		t.Errorf("dbName = %q", a)
	}

	long := dbName(strings.Repeat("x", 200))
	if len(long) > 63 {
		t.Errorf("len(dbName) = %d, want <= 63", len(long))
	}
}
