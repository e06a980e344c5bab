package testutil

import (
	"github.com/dalemusser/securenotes/internal/app/resources"
)

// MustBootTemplates boots the template engine with every set registered in
// the test binary. Feature sets register from init, so importing a feature
// package is enough to make its pages available. Safe to call repeatedly.
func MustBootTemplates(t interface{ Fatalf(string, ...any) }) {
	if err := resources.BootTemplates(false, nil); err != nil {
		t.Fatalf("boot templates: %v", err)
	}
}
