// Package htmlsanitize reduces untrusted client-supplied strings to plain text
// before they are stored or logged. It uses bluemonday's strict policy to drop
// markup, then strips control characters and bounds the length.
package htmlsanitize

import (
	"html"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// policy is the shared strict policy: no elements, no attributes.
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared sanitization policy, creating it on first use.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// PlainText strips all markup and control characters from s and truncates the
// result to at most max runes. A max of zero or less disables truncation.
//
// The result is unescaped text, so it must still be escaped when rendered.
func PlainText(s string, max int) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(getPolicy().Sanitize(s))
	out = strings.Map(func(r rune) rune {
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, out)
	out = strings.TrimSpace(out)
	return Truncate(out, max)
}

// Truncate cuts s to at most max runes without splitting a rune.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
