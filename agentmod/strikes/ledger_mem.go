package strikes

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Process-local ledger. Not shared across instances: each instance escalates independently.
type MemLedgerStore struct {
	entries *xsync.MapOf[string, Entry]
}

var _ LedgerStore = (*MemLedgerStore)(nil)

func NewMemLedgerStore() *MemLedgerStore {
	return &MemLedgerStore{
		entries: xsync.NewMapOf[string, Entry](),
	}
}

func (s *MemLedgerStore) Incr(ctx context.Context, key string) (int, error) {
	e, _ := s.entries.Compute(key, func(old Entry, loaded bool) (Entry, bool) {
		old.Strikes++
		return old, false
	})
	return e.Strikes, nil
}

func (s *MemLedgerStore) Decr(ctx context.Context, key string) error {
	s.entries.Compute(key, func(old Entry, loaded bool) (Entry, bool) {
		if !loaded {
			return old, true
		}
		if old.Strikes > 0 {
			old.Strikes--
		}
		return old, false
	})
	return nil
}

func (s *MemLedgerStore) Throttle(ctx context.Context, key string, until time.Time) error {
	s.entries.Compute(key, func(old Entry, loaded bool) (Entry, bool) {
		if until.After(old.ThrottledUntil) {
			old.ThrottledUntil = until
		}
		return old, false
	})
	return nil
}

func (s *MemLedgerStore) Get(ctx context.Context, key string) (Entry, error) {
	e, _ := s.entries.Load(key)
	return e, nil
}

func (s *MemLedgerStore) Delete(ctx context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// Number of actors with a ledger entry.
func (s *MemLedgerStore) Len() int {
	return s.entries.Size()
}
