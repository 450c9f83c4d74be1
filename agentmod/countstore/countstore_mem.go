package countstore

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type memBucket struct {
	count   int
	resetAt time.Time
}

// In-process counter store. Only consistent within a single running instance.
//
// Increments on the same bucket are serialized by the map's per-key compute.
type MemCountStore struct {
	Now     func() time.Time
	buckets *xsync.MapOf[string, memBucket]
}

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		Now:     time.Now,
		buckets: xsync.NewMapOf[string, memBucket](),
	}
}

func (s *MemCountStore) Increment(ctx context.Context, key string, window time.Duration) (Bucket, error) {
	if err := validWindow(window); err != nil {
		return Bucket{}, err
	}
	bkey, resetAt := windowBucket(key, s.Now(), window)
	v, _ := s.buckets.Compute(bkey, func(old memBucket, loaded bool) (memBucket, bool) {
		if !loaded {
			return memBucket{count: 1, resetAt: resetAt}, false
		}
		old.count++
		return old, false
	})
	return Bucket{Count: v.count, ResetAt: v.resetAt}, nil
}

// Drops buckets whose window ended at or before "now". Returns the number removed.
func (s *MemCountStore) Sweep(now time.Time) int {
	removed := 0
	s.buckets.Range(func(k string, v memBucket) bool {
		if v.resetAt.After(now) {
			return true
		}
		s.buckets.Compute(k, func(old memBucket, loaded bool) (memBucket, bool) {
			expired := loaded && !old.resetAt.After(now)
			if expired {
				removed++
			}
			return old, expired
		})
		return true
	})
	return removed
}

// Number of live buckets (including expired buckets not yet swept).
func (s *MemCountStore) Len() int {
	return s.buckets.Size()
}

// Runs Sweep on a fixed interval until the context is cancelled.
func (s *MemCountStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Sweep(s.Now())
			bucketsSwept.Add(float64(n))
		}
	}
}
