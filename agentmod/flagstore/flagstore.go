// Private per-actor flags, used to mark actors for human moderator review.
package flagstore

import (
	"context"
)

const (
	// Set when any axis escalates an actor to a suspension request.
	FlagSuspendRequested = "suspend-requested"
)

type FlagStore interface {
	Get(ctx context.Context, actorID string) ([]string, error)
	Add(ctx context.Context, actorID string, flags []string) error
	Remove(ctx context.Context, actorID string, flags []string) error
}
