// Package cache stores tool results between pipeline runs.
package cache

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// Expiry says how long an entry stays fresh.
type Expiry struct {
	// TTL is the entry lifetime. Ignored when SameDay is set.
	TTL time.Duration

	// SameDay keeps the entry until local midnight of the day it was written.
	SameDay bool
}

// For returns a TTL expiry.
func For(ttl time.Duration) Expiry { return Expiry{TTL: ttl} }

// UntilMidnight returns a same-day expiry.
func UntilMidnight() Expiry { return Expiry{SameDay: true} }

// Fresh reports whether an entry written at written is still usable at now.
func (e Expiry) Fresh(written, now time.Time) bool {
	if e.SameDay {
		wy, wm, wd := written.Date()
		ny, nm, nd := now.Date()
		return wy == ny && wm == nm && wd == nd
	}
	return now.Sub(written) < e.TTL
}

// Remaining returns the lifetime of an entry written at now.
func (e Expiry) Remaining(now time.Time) time.Duration {
	if e.SameDay {
		y, m, d := now.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Sub(now)
	}
	return e.TTL
}

// Store keeps opaque values per namespace and key.
type Store interface {
	// Get returns the value and true on a fresh hit.
	Get(ctx context.Context, namespace, key string, expiry Expiry) ([]byte, bool, error)

	// Set stores a value. Callers never store failures.
	Set(ctx context.Context, namespace, key string, value []byte, expiry Expiry) error
}

// SanitizeKey keeps letters, digits and spaces, lower-cases the result and
// replaces spaces with underscores.
func SanitizeKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	key := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if key == "" {
		return "_"
	}
	return key
}

// SymbolKey normalizes a ticker symbol.
func SymbolKey(symbol string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(symbol) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
