package strikes

import (
	"context"
	"time"
)

// Ledger state for one actor on one axis.
type Entry struct {
	Strikes        int       `json:"strikes"`
	ThrottledUntil time.Time `json:"throttled_until"`
}

// Whether the entry's throttle is active at "now". The boundary itself is not throttled.
func (e Entry) ThrottledAt(now time.Time) bool {
	return !e.ThrottledUntil.IsZero() && now.Before(e.ThrottledUntil)
}

// Backing storage for strike ledgers.
//
// Incr must be atomic per key: concurrent violations by the same actor each observe a distinct
// strike count.
type LedgerStore interface {
	// Adds one strike and returns the new strike count.
	Incr(ctx context.Context, key string) (int, error)
	// Removes one strike, never going below zero.
	Decr(ctx context.Context, key string) error
	// Sets the throttle expiry. An existing later expiry is kept.
	Throttle(ctx context.Context, key string, until time.Time) error
	Get(ctx context.Context, key string) (Entry, error)
	Delete(ctx context.Context, key string) error
}
