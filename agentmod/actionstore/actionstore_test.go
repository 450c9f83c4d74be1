package actionstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testGormStore(t *testing.T) *GormStore {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	sqldb, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqldb.Close() })
	s, err := NewGormStore(db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func exerciseStore(t *testing.T, s Store) {
	assert := assert.New(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recs := []Record{
		{ActorID: "agent1", EventID: "evt1", Kind: KindWarn, Reason: "Rate limit exceeded for comment", Meta: map[string]any{"reset_at": "2024-05-01T12:01:00.000Z"}, CreatedAt: base},
		{ActorID: "agent1", EventID: "evt1", Kind: KindThrottle, Reason: "Content throttled: spam", Meta: map[string]any{"reasons": []any{"multiple_links"}, "score": float64(4)}, CreatedAt: base.Add(time.Second)},
		{ActorID: "agent2", EventID: "evt2", Kind: KindSuspendRequest, Reason: "Content escalation: malicious_attack", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, r := range recs {
		assert.NoError(s.RecordAction(ctx, r))
	}

	all, err := s.ListActions(ctx, ListQuery{})
	assert.NoError(err)
	assert.Len(all, 3)
	assert.Equal("agent2", all[0].ActorID)
	assert.NotEmpty(all[0].ID)

	mine, err := s.ListActions(ctx, ListQuery{ActorID: "agent1", Limit: 1})
	assert.NoError(err)
	assert.Len(mine, 1)
	assert.Equal(KindThrottle, mine[0].Kind)
	assert.Equal([]any{"multiple_links"}, mine[0].Meta["reasons"])
	assert.Equal(float64(4), mine[0].Meta["score"])

	n, err := s.CountActions(ctx)
	assert.NoError(err)
	assert.Equal(int64(3), n)
	n, err = s.CountActions(ctx, KindThrottle, KindSuspendRequest)
	assert.NoError(err)
	assert.Equal(int64(2), n)
}

func TestMemStore(t *testing.T) {
	exerciseStore(t, NewMemStore())
}

func TestGormStore(t *testing.T) {
	exerciseStore(t, testGormStore(t))
}

func TestGormStoreCounterUpsert(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testGormStore(t)

	ws := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.NoError(s.SaveCounter(ctx, CounterSnapshot{BucketKey: "agent1:comment", WindowStart: ws, Count: 1}))
	assert.NoError(s.SaveCounter(ctx, CounterSnapshot{BucketKey: "agent1:comment", WindowStart: ws, Count: 2}))
	assert.NoError(s.SaveCounter(ctx, CounterSnapshot{BucketKey: "agent1:comment", WindowStart: ws.Add(time.Minute), Count: 1}))

	row, err := s.Counter(ctx, "agent1:comment", ws)
	assert.NoError(err)
	assert.Equal(2, row.Count)

	var n int64
	assert.NoError(s.db.Model(&RateLimitCounter{}).Count(&n).Error)
	assert.Equal(int64(2), n)
}

func TestMemStoreBounded(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStoreSize(3)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		assert.NoError(s.RecordAction(ctx, Record{ActorID: fmt.Sprintf("agent%d", i), Kind: KindWarn, Reason: "Rate limit exceeded for like", CreatedAt: base.Add(time.Duration(i) * time.Second)}))
	}
	all, err := s.ListActions(ctx, ListQuery{})
	assert.NoError(err)
	assert.Len(all, 3)
	assert.Equal("agent9", all[0].ActorID)
	assert.Equal("agent7", all[2].ActorID)
	n, err := s.CountActions(ctx)
	assert.NoError(err)
	assert.Equal(int64(3), n)

	for i := 0; i < 5; i++ {
		assert.NoError(s.SaveCounter(ctx, CounterSnapshot{BucketKey: "k", WindowStart: base.Add(time.Duration(i) * time.Minute), Count: 1}))
	}
	_, ok := s.Counter("k", base)
	assert.False(ok)
	_, ok = s.Counter("k", base.Add(4*time.Minute))
	assert.True(ok)
}

func TestMemStoreCounter(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemStore()

	ws := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.NoError(s.SaveCounter(ctx, CounterSnapshot{BucketKey: "k", WindowStart: ws, Count: 1}))
	assert.NoError(s.SaveCounter(ctx, CounterSnapshot{BucketKey: "k", WindowStart: ws, Count: 5}))
	snap, ok := s.Counter("k", ws)
	assert.True(ok)
	assert.Equal(5, snap.Count)
	_, ok = s.Counter("k", ws.Add(time.Minute))
	assert.False(ok)
}
