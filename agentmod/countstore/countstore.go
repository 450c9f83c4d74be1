package countstore

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var ErrInvalidWindow = errors.New("counter window must be positive")

// Bucket is the state of a single fixed-window counter after an increment.
type Bucket struct {
	// Count within the current window, including the increment which produced this bucket.
	Count int
	// When the current window ends and a fresh bucket starts.
	ResetAt time.Time
}

// CountStore is the single capability the rate limiter needs from a counter backend.
//
// Increment must be atomic with respect to concurrent callers on the same key.
type CountStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (Bucket, error)
}

// Returns the window index for the given time: floor(unix millis / window millis).
func WindowIndex(now time.Time, window time.Duration) int64 {
	return now.UnixMilli() / window.Milliseconds()
}

// Computes the physical bucket key ("key:windowIndex") and the end of the window containing "now".
//
// Windows are aligned to the unix epoch, not to the first hit.
func windowBucket(key string, now time.Time, window time.Duration) (string, time.Time) {
	idx := WindowIndex(now, window)
	resetAt := time.UnixMilli((idx + 1) * window.Milliseconds())
	return key + ":" + strconv.FormatInt(idx, 10), resetAt
}

func validWindow(window time.Duration) error {
	if window.Milliseconds() <= 0 {
		return ErrInvalidWindow
	}
	return nil
}
