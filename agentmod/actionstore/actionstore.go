// Persistence of moderation actions taken by the admission engine.
//
// Includes an interface, an in-process implementation, a gorm (sqlite / postgresql)
// implementation, and a sink which only logs.
package actionstore

import (
	"context"
	"time"
)

type Kind string

const (
	KindWarn           Kind = "warn"
	KindThrottle       Kind = "throttle"
	KindSuspendRequest Kind = "suspend_request"
)

// A single moderation action against an actor. Write-only from the engine's point of view.
type Record struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	EventID   string         `json:"event_id"`
	Kind      Kind           `json:"action"`
	Reason    string         `json:"reason"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Snapshot of a fixed-window rate counter, for audit and dashboards.
type CounterSnapshot struct {
	BucketKey   string
	WindowStart time.Time
	Count       int
}

type Sink interface {
	RecordAction(ctx context.Context, rec Record) error
}

type CounterSink interface {
	SaveCounter(ctx context.Context, snap CounterSnapshot) error
}

type ListQuery struct {
	// Filter to a single actor; empty for all.
	ActorID string
	// Maximum number of records, newest first. Zero means DefaultListLimit.
	Limit int
}

var DefaultListLimit = 50

type Reader interface {
	ListActions(ctx context.Context, q ListQuery) ([]Record, error)
	// Number of records with any of the given kinds (all kinds if none given).
	CountActions(ctx context.Context, kinds ...Kind) (int64, error)
}

type Store interface {
	Sink
	Reader
}

func (q ListQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultListLimit
	}
	return q.Limit
}
