package agentmod

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// A counter, ledger, or other store needed to reach a decision could not be reached. The
	// action must not be admitted.
	ErrStoreUnavailable = errors.New("moderation store unavailable")
	// The action itself is malformed (eg, missing actor).
	ErrInvalidAction = errors.New("invalid action")
)

// Machine-readable reason an action was denied.
type Code string

const (
	CodeAgentThrottled          Code = "agent_throttled"
	CodeRateLimitWarn           Code = "rate_limit_warn"
	CodeRateLimitThrottle       Code = "rate_limit_throttle"
	CodeSuspendRequested        Code = "suspend_requested"
	CodeContentWarn             Code = "content_warn"
	CodeContentThrottle         Code = "content_throttle"
	CodeContentSuspendRequested Code = "content_suspend_requested"
)

// Returned by Engine.Admit when an action is denied.
type Rejection struct {
	Code    Code
	Status  int
	Message string
	Detail  map[string]any
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// Whether the denial escalated to a suspension request for human review.
func (r *Rejection) Escalated() bool {
	return r.Code == CodeSuspendRequested || r.Code == CodeContentSuspendRequested
}

// Whether the actor can expect to be admitted again after backing off.
func (r *Rejection) Recoverable() bool {
	return !r.Escalated()
}

// Helper for errors.As on a *Rejection.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

func newRejection(code Code, detail map[string]any) *Rejection {
	r := &Rejection{
		Code:   code,
		Detail: detail,
	}
	switch code {
	case CodeAgentThrottled:
		r.Status = http.StatusTooManyRequests
		r.Message = "Agent is temporarily throttled"
	case CodeRateLimitWarn:
		r.Status = http.StatusTooManyRequests
		r.Message = "Rate limit exceeded. Warning issued."
	case CodeRateLimitThrottle:
		r.Status = http.StatusTooManyRequests
		r.Message = "Rate limit exceeded. Agent throttled."
	case CodeSuspendRequested:
		r.Status = http.StatusTooManyRequests
		r.Message = "Suspension requested for abusive behavior"
	case CodeContentWarn:
		r.Status = http.StatusUnprocessableEntity
		r.Message = "Content warning issued by moderator"
	case CodeContentThrottle:
		r.Status = http.StatusTooManyRequests
		r.Message = "Content blocked and agent throttled"
	case CodeContentSuspendRequested:
		r.Status = http.StatusTooManyRequests
		r.Message = "Content violation escalated to suspension"
	}
	return r
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
