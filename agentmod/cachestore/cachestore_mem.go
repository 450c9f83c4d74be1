package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemContextStore struct {
	Data *expirable.LRU[string, string]
}

var _ ContextStore = (*MemContextStore)(nil)

func NewMemContextStore(capacity int, ttl time.Duration) *MemContextStore {
	return &MemContextStore{
		Data: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

func (s *MemContextStore) GetContext(ctx context.Context, eventID string) (string, error) {
	v, ok := s.Data.Get(eventID)
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *MemContextStore) SetContext(ctx context.Context, eventID, text string) error {
	s.Data.Add(eventID, clampContext(text))
	return nil
}

func (s *MemContextStore) PurgeContext(ctx context.Context, eventID string) error {
	s.Data.Remove(eventID)
	return nil
}
