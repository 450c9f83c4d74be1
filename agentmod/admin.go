package agentmod

import (
	"context"
	"fmt"
	"time"

	"github.com/botpass/botpass/agentmod/strikes"
)

// Moderator view of an actor's containment state.
type ActorStatus struct {
	ActorID        string        `json:"actor_id"`
	RateLimit      strikes.Entry `json:"rate_limit"`
	Content        strikes.Entry `json:"content"`
	Throttled      bool          `json:"throttled"`
	ThrottledUntil *time.Time    `json:"throttled_until,omitempty"`
	Flags          []string      `json:"flags"`
}

func (eng *Engine) ActorStatus(ctx context.Context, actorID string) (*ActorStatus, error) {
	rl, err := eng.RateLadder.Get(ctx, actorID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	ct, err := eng.ContentLadder.Get(ctx, actorID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	flags := []string{}
	if eng.Flags != nil {
		flags, err = eng.Flags.Get(ctx, actorID)
		if err != nil {
			return nil, storeUnavailable(err)
		}
	}
	st := ActorStatus{
		ActorID:   actorID,
		RateLimit: rl,
		Content:   ct,
		Flags:     flags,
	}
	now := eng.Now()
	for _, e := range []strikes.Entry{rl, ct} {
		if e.ThrottledAt(now) && (st.ThrottledUntil == nil || e.ThrottledUntil.After(*st.ThrottledUntil)) {
			until := e.ThrottledUntil
			st.Throttled = true
			st.ThrottledUntil = &until
		}
	}
	return &st, nil
}

// Clears an actor's strikes and throttles on both axes, and any review flags. This is the only
// way strikes are ever forgiven.
func (eng *Engine) ResetActor(ctx context.Context, actorID string) error {
	if err := eng.RateLadder.Reset(ctx, actorID); err != nil {
		return storeUnavailable(fmt.Errorf("resetting rate limit ledger: %w", err))
	}
	if err := eng.ContentLadder.Reset(ctx, actorID); err != nil {
		return storeUnavailable(fmt.Errorf("resetting content ledger: %w", err))
	}
	if eng.Flags != nil {
		flags, err := eng.Flags.Get(ctx, actorID)
		if err != nil {
			return storeUnavailable(err)
		}
		if err := eng.Flags.Remove(ctx, actorID, flags); err != nil {
			return storeUnavailable(err)
		}
	}
	eng.Logger.Info("actor containment state reset", "actor", actorID)
	return nil
}

// Caches event context text, used for relevance checks on posts which do not carry context.
func (eng *Engine) SetEventContext(ctx context.Context, eventID, text string) error {
	if eventID == "" {
		return fmt.Errorf("%w: event is required", ErrInvalidAction)
	}
	if eng.Contexts == nil {
		return fmt.Errorf("no event context store configured")
	}
	if text == "" {
		return eng.Contexts.PurgeContext(ctx, eventID)
	}
	return eng.Contexts.SetContext(ctx, eventID, text)
}
