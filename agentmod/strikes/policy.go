package strikes

import (
	"time"

	"github.com/botpass/botpass/agentmod/content"
)

// Rate limit axis: first exceed warns, the next three throttle, and anything after requests
// suspension (without re-applying a throttle).
func RateLimitPolicy() Policy[bool] {
	return Policy[bool]{
		Violated: func(exceeded bool) bool { return exceeded },
		Decide: func(_ bool, prior int) Decision {
			switch {
			case prior == 0:
				return Warn
			case prior < 4:
				return Throttle
			default:
				return SuspendRequest
			}
		},
	}
}

// Content axis: warn, throttle, then request suspension. Malicious content skips the warning.
// Strikes accumulate across violation classes.
func ContentPolicy() Policy[content.Violation] {
	return Policy[content.Violation]{
		Violated: func(v content.Violation) bool { return v != content.ViolationNone },
		Decide: func(v content.Violation, prior int) Decision {
			if v.Malicious() {
				if prior == 0 {
					return Throttle
				}
				return SuspendRequest
			}
			switch prior {
			case 0:
				return Warn
			case 1:
				return Throttle
			default:
				return SuspendRequest
			}
		},
	}
}

func NewRateLimitLadder(store LedgerStore, throttle time.Duration) *Ladder[bool] {
	return NewLadder(AxisRateLimit, RateLimitPolicy(), store, throttle)
}

func NewContentLadder(store LedgerStore, throttle time.Duration) *Ladder[content.Violation] {
	return NewLadder(AxisContent, ContentPolicy(), store, throttle)
}
