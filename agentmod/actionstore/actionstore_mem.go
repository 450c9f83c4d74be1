package actionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Default number of records and counter snapshots a MemStore retains.
const DefaultMemStoreSize = 10_000

// In-process store which keeps only the most recent records and counter snapshots. Older entries
// are evicted, so listings and counts only cover what is retained.
type MemStore struct {
	lk         sync.Mutex
	records    []Record
	maxRecords int
	counters   *lru.Cache[string, CounterSnapshot]
}

var _ Store = (*MemStore)(nil)
var _ CounterSink = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return NewMemStoreSize(DefaultMemStoreSize)
}

// Non-positive sizes fall back to DefaultMemStoreSize.
func NewMemStoreSize(size int) *MemStore {
	if size <= 0 {
		size = DefaultMemStoreSize
	}
	counters, err := lru.New[string, CounterSnapshot](size)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	return &MemStore{
		maxRecords: size,
		counters:   counters,
	}
}

func (s *MemStore) RecordAction(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	if len(s.records) >= s.maxRecords {
		// drop the oldest; append reallocates once capacity is used up, releasing the old array
		s.records = s.records[len(s.records)-s.maxRecords+1:]
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *MemStore) ListActions(ctx context.Context, q ListQuery) ([]Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := []Record{}
	for i := len(s.records) - 1; i >= 0 && len(out) < q.limit(); i-- {
		if q.ActorID != "" && s.records[i].ActorID != q.ActorID {
			continue
		}
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *MemStore) CountActions(ctx context.Context, kinds ...Kind) (int64, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	var n int64
	for _, r := range s.records {
		if matchKind(r.Kind, kinds) {
			n++
		}
	}
	return n, nil
}

func (s *MemStore) SaveCounter(ctx context.Context, snap CounterSnapshot) error {
	s.counters.Add(counterKey(snap.BucketKey, snap.WindowStart), snap)
	return nil
}

// Latest snapshot for a bucket and window, if any.
func (s *MemStore) Counter(bucketKey string, windowStart time.Time) (CounterSnapshot, bool) {
	return s.counters.Get(counterKey(bucketKey, windowStart))
}

func counterKey(bucketKey string, windowStart time.Time) string {
	return bucketKey + "@" + windowStart.UTC().String()
}

func matchKind(k Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
