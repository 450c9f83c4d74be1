package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

var ErrUnknownAction = errors.New("unknown agent action type")

// Kind of agent-initiated write subject to rate limiting.
type Action string

const (
	ActionRegister        Action = "register"
	ActionComment         Action = "comment"
	ActionReply           Action = "reply"
	ActionLike            Action = "like"
	ActionTransferToOwner Action = "transfer_to_owner"
)

var allActions = []Action{ActionRegister, ActionComment, ActionReply, ActionLike, ActionTransferToOwner}

// Parses an action type name. "post" is accepted as an alias of "comment" (a top-level timeline post).
func ParseAction(raw string) (Action, error) {
	if raw == "post" {
		return ActionComment, nil
	}
	for _, a := range allActions {
		if string(a) == raw {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

// Whether the action carries free-form text which goes through content analysis.
func (a Action) ProducesContent() bool {
	return a == ActionComment || a == ActionReply
}

type Rule struct {
	Limit  int
	Window time.Duration
}

func DefaultRules() map[Action]Rule {
	return map[Action]Rule{
		ActionRegister:        {Limit: 10, Window: 600 * time.Second},
		ActionComment:         {Limit: 12, Window: 60 * time.Second},
		ActionReply:           {Limit: 12, Window: 60 * time.Second},
		ActionLike:            {Limit: 60, Window: 60 * time.Second},
		ActionTransferToOwner: {Limit: 3, Window: 600 * time.Second},
	}
}

func ValidateRules(rules map[Action]Rule) error {
	for _, a := range allActions {
		r, ok := rules[a]
		if !ok {
			return fmt.Errorf("missing rate limit rule for %q", a)
		}
		if r.Limit < 1 {
			return fmt.Errorf("rate limit rule for %q: limit must be at least 1", a)
		}
		if r.Window.Milliseconds() <= 0 {
			return fmt.Errorf("rate limit rule for %q: window must be positive", a)
		}
	}
	return nil
}

type ruleJSON struct {
	Limit     int `json:"limit"`
	WindowSec int `json:"window_sec"`
}

// Reads per-action overrides from a JSON file and applies them on top of "base".
//
// The file is an object keyed by action type, eg: {"comment": {"limit": 20, "window_sec": 60}}
func LoadRulesFileJSON(p string, base map[Action]Rule) (map[Action]Rule, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return ParseRulesJSON(raw, base)
}

func ParseRulesJSON(raw []byte, base map[Action]Rule) (map[Action]Rule, error) {
	var overrides map[string]ruleJSON
	if err := json.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parsing rate limit rules: %w", err)
	}

	out := make(map[Action]Rule, len(base))
	for k, v := range base {
		out[k] = v
	}
	for name, r := range overrides {
		a, err := ParseAction(name)
		if err != nil {
			return nil, err
		}
		out[a] = Rule{Limit: r.Limit, Window: time.Duration(r.WindowSec) * time.Second}
	}
	return out, ValidateRules(out)
}
