// Per-actor strike ledgers which turn repeated violations into escalating decisions.
//
// A Ladder tracks one axis (eg, rate limit violations). The same generic type is instantiated
// once per axis, parameterized by the violation type the axis receives and the policy mapping
// strike counts to decisions. Ledgers never decay: only Reset returns an actor to a clean state.
package strikes

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Decision string

const (
	Allow          Decision = "allow"
	Warn           Decision = "warn"
	Throttle       Decision = "throttle"
	SuspendRequest Decision = "suspend_request"
)

type Axis string

const (
	AxisRateLimit Axis = "rate_limit"
	AxisContent   Axis = "content"
)

// Default time an actor stays throttled after a throttle decision.
var DefaultThrottleDuration = 300 * time.Second

// Budget for undoing a strike after a failed throttle write; the caller's context may already
// be expired by then.
var rollbackTimeout = 2 * time.Second

// Policy for one axis.
type Policy[V any] struct {
	// Whether "v" counts as a violation at all. Non-violations never touch the ledger.
	Violated func(v V) bool
	// Decision for a violation, given the number of strikes recorded before it.
	Decide func(v V, prior int) Decision
}

type Outcome struct {
	Decision Decision
	// Strike count after this violation (zero for Allow).
	Strikes int
	// Set only when this decision applied a throttle.
	ThrottledUntil time.Time
}

type Ladder[V any] struct {
	Axis     Axis
	Policy   Policy[V]
	Store    LedgerStore
	Throttle time.Duration
	Now      func() time.Time
}

func NewLadder[V any](axis Axis, policy Policy[V], store LedgerStore, throttle time.Duration) *Ladder[V] {
	if store == nil {
		store = NewMemLedgerStore()
	}
	if throttle <= 0 {
		throttle = DefaultThrottleDuration
	}
	return &Ladder[V]{
		Axis:     axis,
		Policy:   policy,
		Store:    store,
		Throttle: throttle,
		Now:      time.Now,
	}
}

// Axes share a store by namespacing keys.
func (l *Ladder[V]) key(actorID string) string {
	return string(l.Axis) + "/" + actorID
}

// Records a violation (if "v" is one) and returns the resulting decision.
//
// If the throttle for a throttle decision can not be stored, the strike is removed again so the
// actor's next violation lands on the same rung.
func (l *Ladder[V]) Decide(ctx context.Context, actorID string, v V) (Outcome, error) {
	if !l.Policy.Violated(v) {
		return Outcome{Decision: Allow}, nil
	}
	key := l.key(actorID)
	n, err := l.Store.Incr(ctx, key)
	if err != nil {
		return Outcome{}, fmt.Errorf("recording %s strike: %w", l.Axis, err)
	}
	out := Outcome{
		Decision: l.Policy.Decide(v, n-1),
		Strikes:  n,
	}
	if out.Decision == Throttle {
		until := l.Now().Add(l.Throttle)
		if err := l.Store.Throttle(ctx, key, until); err != nil {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
			defer cancel()
			if rerr := l.Store.Decr(rctx, key); rerr != nil {
				err = errors.Join(err, fmt.Errorf("rolling back strike: %w", rerr))
			}
			return Outcome{}, fmt.Errorf("applying %s throttle: %w", l.Axis, err)
		}
		out.ThrottledUntil = until
	}
	return out, nil
}

// Reports whether the actor is currently throttled on this axis, and until when.
func (l *Ladder[V]) IsThrottled(ctx context.Context, actorID string) (bool, time.Time, error) {
	e, err := l.Store.Get(ctx, l.key(actorID))
	if err != nil {
		return false, time.Time{}, fmt.Errorf("reading %s ledger: %w", l.Axis, err)
	}
	if !e.ThrottledAt(l.Now()) {
		return false, time.Time{}, nil
	}
	return true, e.ThrottledUntil, nil
}

func (l *Ladder[V]) Get(ctx context.Context, actorID string) (Entry, error) {
	return l.Store.Get(ctx, l.key(actorID))
}

// Clears the actor's strikes and any active throttle on this axis.
func (l *Ladder[V]) Reset(ctx context.Context, actorID string) error {
	return l.Store.Delete(ctx, l.key(actorID))
}
