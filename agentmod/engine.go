package agentmod

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/botpass/botpass/agentmod/actionstore"
	"github.com/botpass/botpass/agentmod/cachestore"
	"github.com/botpass/botpass/agentmod/content"
	"github.com/botpass/botpass/agentmod/countstore"
	"github.com/botpass/botpass/agentmod/flagstore"
	"github.com/botpass/botpass/agentmod/helpers"
	"github.com/botpass/botpass/agentmod/ratelimit"
	"github.com/botpass/botpass/agentmod/strikes"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("agentmod")

// A mutating action an agent is attempting.
type Action struct {
	ActorID string
	EventID string
	Type    ratelimit.Action
	// Text of a post or reply. Ignored for other action types.
	Content string
	// Optional event context (title and description). When empty, the engine consults the
	// context cache for EventID.
	Context string
}

// Storage dependencies for NewEngine. Any nil field gets a process-local default.
type Stores struct {
	Counters countstore.CountStore
	// Backs both strike ladders (keys are namespaced by axis).
	Ledger  strikes.LedgerStore
	Actions actionstore.Sink
	// Optional; rate counter snapshots are only persisted when set.
	Snapshots actionstore.CounterSink
	Flags     flagstore.FlagStore
	Contexts  cachestore.ContextStore
}

// Admission engine: composes rate limiting, content analysis, and strike ladders into allow /
// deny decisions, and records the moderation actions taken.
//
// Construct with NewEngine; several fields must not be nil.
type Engine struct {
	Logger        *slog.Logger
	Config        Config
	Limiter       *ratelimit.Limiter
	Analyzer      *content.Analyzer
	RateLadder    *strikes.Ladder[bool]
	ContentLadder *strikes.Ladder[content.Violation]
	Actions       actionstore.Sink
	Snapshots     actionstore.CounterSink
	Flags         flagstore.FlagStore
	Contexts      cachestore.ContextStore
	Now           func() time.Time
}

func NewEngine(logger *slog.Logger, config Config, stores Stores) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if stores.Counters == nil {
		stores.Counters = countstore.NewMemCountStore()
	}
	if stores.Ledger == nil {
		stores.Ledger = strikes.NewMemLedgerStore()
	}
	if stores.Actions == nil {
		stores.Actions = &actionstore.LogSink{Logger: logger}
	}
	if stores.Flags == nil {
		stores.Flags = flagstore.NewMemFlagStore()
	}
	if stores.Contexts == nil {
		stores.Contexts = cachestore.NewMemContextStore(10_000, 24*time.Hour)
	}
	return &Engine{
		Logger:        logger,
		Config:        config,
		Limiter:       ratelimit.NewLimiter(stores.Counters, config.Rules),
		Analyzer:      content.NewAnalyzer(config.Content),
		RateLadder:    strikes.NewRateLimitLadder(stores.Ledger, config.ThrottleDuration),
		ContentLadder: strikes.NewContentLadder(stores.Ledger, config.ThrottleDuration),
		Actions:       stores.Actions,
		Snapshots:     stores.Snapshots,
		Flags:         stores.Flags,
		Contexts:      stores.Contexts,
		Now:           time.Now,
	}, nil
}

// Decides whether an action may proceed. Returns nil to admit, a *Rejection to deny, or another
// error (usually wrapping ErrStoreUnavailable) when no decision could be reached, in which case
// the action must not proceed either.
func (eng *Engine) Admit(ctx context.Context, act Action) (err error) {
	ctx, span := tracer.Start(ctx, "Admit")
	defer span.End()
	span.SetAttributes(attribute.String("actor", act.ActorID), attribute.String("action", string(act.Type)))

	start := time.Now()
	defer func() {
		outcome := "allowed"
		if rej, ok := AsRejection(err); ok {
			outcome = string(rej.Code)
		} else if err != nil {
			outcome = "error"
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		admitOutcomes.WithLabelValues(string(act.Type), outcome).Inc()
		admitDuration.WithLabelValues(string(act.Type)).Observe(time.Since(start).Seconds())
	}()

	if act.ActorID == "" {
		return fmt.Errorf("%w: actor is required", ErrInvalidAction)
	}
	rule, err := eng.Limiter.Rule(act.Type)
	if err != nil {
		return err
	}
	logger := eng.Logger.With("actor", act.ActorID, "action", act.Type)

	// throttled actors are rejected before anything is counted
	throttled, until, err := eng.throttledUntil(ctx, act.ActorID)
	if err != nil {
		return err
	}
	if throttled {
		logger.Debug("rejecting throttled actor", "until", until)
		return newRejection(CodeAgentThrottled, map[string]any{
			"throttled_until": helpers.ISOTime(until),
		})
	}

	if err := eng.checkRate(ctx, logger, act, rule); err != nil {
		return err
	}

	if act.Type.ProducesContent() {
		if err := eng.checkContent(ctx, logger, act); err != nil {
			return err
		}
	}
	return nil
}

func (eng *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if eng.Config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, eng.Config.StoreTimeout)
}

// Reports whether the actor is throttled on either axis, and the latest expiry.
func (eng *Engine) throttledUntil(ctx context.Context, actorID string) (bool, time.Time, error) {
	sctx, cancel := eng.storeContext(ctx)
	defer cancel()

	rateThrottled, rateUntil, err := eng.RateLadder.IsThrottled(sctx, actorID)
	if err != nil {
		return false, time.Time{}, storeUnavailable(err)
	}
	contentThrottled, contentUntil, err := eng.ContentLadder.IsThrottled(sctx, actorID)
	if err != nil {
		return false, time.Time{}, storeUnavailable(err)
	}
	if !rateThrottled && !contentThrottled {
		return false, time.Time{}, nil
	}
	if contentUntil.After(rateUntil) {
		return true, contentUntil, nil
	}
	return true, rateUntil, nil
}

func (eng *Engine) checkRate(ctx context.Context, logger *slog.Logger, act Action, rule ratelimit.Rule) error {
	key := ratelimit.Key(act.ActorID, act.Type)

	sctx, cancel := eng.storeContext(ctx)
	res, err := eng.Limiter.Check(sctx, key, rule)
	cancel()
	if err != nil {
		return storeUnavailable(err)
	}
	eng.saveCounter(ctx, logger, actionstore.CounterSnapshot{
		BucketKey:   key,
		WindowStart: res.WindowStart(rule),
		Count:       res.Count,
	})
	if res.Allowed {
		return nil
	}

	sctx, cancel = eng.storeContext(ctx)
	out, err := eng.RateLadder.Decide(sctx, act.ActorID, true)
	cancel()
	if err != nil {
		return storeUnavailable(err)
	}
	logger.Info("rate limit exceeded", "count", res.Count, "limit", rule.Limit, "decision", out.Decision, "strikes", out.Strikes)

	switch out.Decision {
	case strikes.Warn:
		resetAt := helpers.ISOTime(res.ResetAt)
		eng.recordAction(ctx, logger, strikes.AxisRateLimit, actionstore.Record{
			ActorID: act.ActorID,
			EventID: act.EventID,
			Kind:    actionstore.KindWarn,
			Reason:  fmt.Sprintf("Rate limit exceeded for %s", act.Type),
			Meta:    map[string]any{"reset_at": resetAt},
		})
		return newRejection(CodeRateLimitWarn, map[string]any{"reset_at": resetAt})
	case strikes.Throttle:
		until := helpers.ISOTime(out.ThrottledUntil)
		eng.recordAction(ctx, logger, strikes.AxisRateLimit, actionstore.Record{
			ActorID: act.ActorID,
			EventID: act.EventID,
			Kind:    actionstore.KindThrottle,
			Reason:  fmt.Sprintf("Repeated rate limit exceeded for %s", act.Type),
			Meta:    map[string]any{"throttled_until": until},
		})
		return newRejection(CodeRateLimitThrottle, map[string]any{"throttled_until": until})
	default:
		eng.recordAction(ctx, logger, strikes.AxisRateLimit, actionstore.Record{
			ActorID: act.ActorID,
			EventID: act.EventID,
			Kind:    actionstore.KindSuspendRequest,
			Reason:  fmt.Sprintf("Escalated rate limit abuse for %s", act.Type),
			Meta:    map[string]any{"escalated": true},
		})
		eng.flagForReview(ctx, logger, act.ActorID, strikes.AxisRateLimit)
		return newRejection(CodeSuspendRequested, map[string]any{"escalated": true})
	}
}

func (eng *Engine) checkContent(ctx context.Context, logger *slog.Logger, act Action) error {
	eventContext := act.Context
	if eventContext == "" && act.EventID != "" && eng.Contexts != nil {
		eventContext = eng.lookupContext(ctx, logger, act.EventID)
	}

	res := eng.Analyzer.Analyze(act.Content, eventContext)
	if res.Violation == content.ViolationNone {
		return nil
	}

	sctx, cancel := eng.storeContext(ctx)
	out, err := eng.ContentLadder.Decide(sctx, act.ActorID, res.Violation)
	cancel()
	if err != nil {
		return storeUnavailable(err)
	}
	logger.Info("content violation", "violation", res.Violation, "reasons", res.ReasonStrings(), "score", res.Score, "decision", out.Decision, "strikes", out.Strikes)

	reasons := res.ReasonStrings()
	meta := map[string]any{
		"reasons":      reasons,
		"score":        res.Score,
		"content_hash": helpers.HashOfString(act.Content),
	}
	detail := map[string]any{
		"violation": string(res.Violation),
		"reasons":   reasons,
	}
	rec := actionstore.Record{
		ActorID: act.ActorID,
		EventID: act.EventID,
		Meta:    meta,
	}

	switch out.Decision {
	case strikes.Warn:
		rec.Kind = actionstore.KindWarn
		rec.Reason = fmt.Sprintf("Content warning: %s", res.Violation)
		eng.recordAction(ctx, logger, strikes.AxisContent, rec)
		return newRejection(CodeContentWarn, detail)
	case strikes.Throttle:
		rec.Kind = actionstore.KindThrottle
		rec.Reason = fmt.Sprintf("Content throttled: %s", res.Violation)
		meta["throttled_until"] = helpers.ISOTime(out.ThrottledUntil)
		eng.recordAction(ctx, logger, strikes.AxisContent, rec)
		return newRejection(CodeContentThrottle, detail)
	default:
		rec.Kind = actionstore.KindSuspendRequest
		rec.Reason = fmt.Sprintf("Content escalation: %s", res.Violation)
		meta["escalated"] = true
		eng.recordAction(ctx, logger, strikes.AxisContent, rec)
		eng.flagForReview(ctx, logger, act.ActorID, strikes.AxisContent)
		return newRejection(CodeContentSuspendRequested, detail)
	}
}

// A failed lookup is treated as "no context": relevance checks are skipped rather than failing
// the whole admission.
func (eng *Engine) lookupContext(ctx context.Context, logger *slog.Logger, eventID string) string {
	sctx, cancel := eng.storeContext(ctx)
	defer cancel()
	text, err := eng.Contexts.GetContext(sctx, eventID)
	if err != nil {
		logger.Warn("event context lookup failed", "event", eventID, "err", err)
		contextCacheLookups.WithLabelValues("error").Inc()
		return ""
	}
	if text == "" {
		contextCacheLookups.WithLabelValues("miss").Inc()
	} else {
		contextCacheLookups.WithLabelValues("hit").Inc()
	}
	return text
}

func (eng *Engine) recordAction(ctx context.Context, logger *slog.Logger, axis strikes.Axis, rec actionstore.Record) {
	moderationActionCount.WithLabelValues(string(axis), string(rec.Kind)).Inc()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = eng.Now()
	}
	sctx, cancel := eng.storeContext(ctx)
	defer cancel()
	if err := eng.Actions.RecordAction(sctx, rec); err != nil {
		persistErrorCount.WithLabelValues("action").Inc()
		logger.Error("failed to persist moderation action", "kind", rec.Kind, "err", err)
	}
}

func (eng *Engine) saveCounter(ctx context.Context, logger *slog.Logger, snap actionstore.CounterSnapshot) {
	if eng.Snapshots == nil {
		return
	}
	sctx, cancel := eng.storeContext(ctx)
	defer cancel()
	if err := eng.Snapshots.SaveCounter(sctx, snap); err != nil {
		persistErrorCount.WithLabelValues("counter").Inc()
		logger.Warn("failed to persist rate counter", "bucket", snap.BucketKey, "err", err)
	}
}

func (eng *Engine) flagForReview(ctx context.Context, logger *slog.Logger, actorID string, axis strikes.Axis) {
	if eng.Flags == nil {
		return
	}
	sctx, cancel := eng.storeContext(ctx)
	defer cancel()
	if err := eng.Flags.Add(sctx, actorID, []string{flagstore.FlagSuspendRequested, string(axis)}); err != nil {
		persistErrorCount.WithLabelValues("flag").Inc()
		logger.Error("failed to flag actor for review", "err", err)
	}
}
