package countstore

import (
	"context"
	"log/slog"
	"time"
)

// Wraps a shared counter store with an in-process one, used when the shared store errors.
//
// This trades cross-instance consistency for availability, and is only wired up when explicitly
// enabled. Every fallback is logged and counted.
type FallbackCountStore struct {
	Primary CountStore
	Local   *MemCountStore
	Logger  *slog.Logger
}

var _ CountStore = (*FallbackCountStore)(nil)

func NewFallbackCountStore(primary CountStore, logger *slog.Logger) *FallbackCountStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackCountStore{
		Primary: primary,
		Local:   NewMemCountStore(),
		Logger:  logger.With("component", "countstore"),
	}
}

func (s *FallbackCountStore) Increment(ctx context.Context, key string, window time.Duration) (Bucket, error) {
	b, err := s.Primary.Increment(ctx, key, window)
	if err == nil {
		return b, nil
	}
	// caller gave up; nothing to fall back for
	if ctx.Err() != nil {
		return Bucket{}, err
	}
	s.Logger.Warn("shared counter store failed, using local counters", "key", key, "err", err)
	fallbackIncrements.Inc()
	return s.Local.Increment(ctx, key, window)
}
