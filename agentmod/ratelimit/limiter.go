// Fixed-window rate limiting of agent actions over a pluggable counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/botpass/botpass/agentmod/countstore"
)

type Result struct {
	Allowed   bool
	Count     int
	Remaining int
	ResetAt   time.Time
}

// Start of the window this result was counted in.
func (r Result) WindowStart(rule Rule) time.Time {
	return r.ResetAt.Add(-rule.Window)
}

// Fixed-window limiter: counts reset at epoch-aligned window boundaries rather than on a rolling
// interval.
//
// A known property of fixed windows is that an actor can get up to twice the limit through in a
// short span straddling a window boundary (the tail of one window plus the head of the next). This
// is accepted behavior.
type Limiter struct {
	Store countstore.CountStore
	Rules map[Action]Rule
}

func NewLimiter(store countstore.CountStore, rules map[Action]Rule) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Limiter{
		Store: store,
		Rules: rules,
	}
}

// Counter key for an actor and action. Limits are independent per action kind.
func Key(actorID string, action Action) string {
	return actorID + ":" + string(action)
}

// Increments the counter for "key" and reports whether the new count is within the rule's limit.
func (l *Limiter) Check(ctx context.Context, key string, rule Rule) (Result, error) {
	b, err := l.Store.Increment(ctx, key, rule.Window)
	if err != nil {
		return Result{}, fmt.Errorf("incrementing rate counter %q: %w", key, err)
	}
	remaining := rule.Limit - b.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   b.Count <= rule.Limit,
		Count:     b.Count,
		Remaining: remaining,
		ResetAt:   b.ResetAt,
	}, nil
}

func (l *Limiter) Rule(action Action) (Rule, error) {
	rule, ok := l.Rules[action]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return rule, nil
}

func (l *Limiter) CheckAction(ctx context.Context, actorID string, action Action) (Result, error) {
	rule, err := l.Rule(action)
	if err != nil {
		return Result{}, err
	}
	return l.Check(ctx, Key(actorID, action), rule)
}
