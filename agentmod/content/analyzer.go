// Heuristic classifier for agent-authored timeline text.
//
// Analysis is a pure function of the text, optional event context, and configuration.
package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/botpass/botpass/agentmod/keyword"
)

type Signal string

const (
	SignalMultipleLinks      Signal = "multiple_links"
	SignalRepeatedCharacters Signal = "repeated_characters"
	SignalPunctuationFlood   Signal = "punctuation_flood"
	SignalExcessiveLength    Signal = "excessive_length"
	SignalMaliciousKeywords  Signal = "malicious_keywords"
	SignalPromoKeywords      Signal = "promo_keywords"
	SignalContextMismatch    Signal = "context_mismatch"
)

var signalWeights = map[Signal]int{
	SignalMultipleLinks:      4,
	SignalRepeatedCharacters: 3,
	SignalPunctuationFlood:   2,
	SignalExcessiveLength:    3,
	SignalMaliciousKeywords:  5,
	SignalPromoKeywords:      2,
	SignalContextMismatch:    3,
}

type Violation string

const (
	ViolationNone            Violation = ""
	ViolationMaliciousAttack Violation = "malicious_attack"
	ViolationSpam            Violation = "spam"
	ViolationFlood           Violation = "flood"
	ViolationOffTopic        Violation = "off_topic"
)

// Malicious content skips the warning stage of escalation.
func (v Violation) Malicious() bool {
	return v == ViolationMaliciousAttack
}

// Minimum number of context tokens needed before relevance is judged at all.
const minContextTokens = 4

type Result struct {
	Violation Violation
	Score     int
	Reasons   []Signal
}

func (r *Result) add(s Signal) {
	r.Score += signalWeights[s]
	r.Reasons = append(r.Reasons, s)
}

func (r *Result) has(signals ...Signal) bool {
	for _, reason := range r.Reasons {
		for _, s := range signals {
			if reason == s {
				return true
			}
		}
	}
	return false
}

// Reason codes as plain strings, for error details and record metadata.
func (r Result) ReasonStrings() []string {
	out := make([]string, len(r.Reasons))
	for i, s := range r.Reasons {
		out[i] = string(s)
	}
	return out
}

var urlMarker = regexp.MustCompile(`https?://|www\.`)

type Analyzer struct {
	config Config
}

func NewAnalyzer(config Config) *Analyzer {
	return &Analyzer{config: config.Normalized()}
}

func (a *Analyzer) Config() Config {
	return a.config
}

// Classifies "text". "context" is optional (empty string for none) and describes the event the
// text was posted to; it is only consulted for promotional content.
func (a *Analyzer) Analyze(text, context string) Result {
	cfg := a.config
	th := cfg.Thresholds
	value := strings.TrimSpace(text)
	lower := keyword.Lower(value)
	res := Result{Reasons: []Signal{}}

	if len(urlMarker.FindAllStringIndex(lower, -1)) >= th.URLCountSpam {
		res.add(SignalMultipleLinks)
	}
	if longestRepeatRun(value) >= max(th.RepeatedCharMin, 2) {
		res.add(SignalRepeatedCharacters)
	}
	if longestPunctuationRun(value) >= max(th.PunctuationFloodMin, 2) {
		res.add(SignalPunctuationFlood)
	}
	if utf8.RuneCountInString(value) > th.MaxContentLength || strings.Count(value, "\n")+1 > th.MaxLineCount {
		res.add(SignalExcessiveLength)
	}
	if _, ok := keyword.ContainsAny(lower, cfg.MaliciousKeywords); ok {
		res.add(SignalMaliciousKeywords)
	}
	_, hasPromo := keyword.ContainsAny(lower, cfg.PromoKeywords)
	if hasPromo {
		res.add(SignalPromoKeywords)
	}
	if context != "" && hasPromo && keyword.OverlapRatio(value, context, minContextTokens) < th.ContextOverlapMin {
		res.add(SignalContextMismatch)
	}

	switch {
	case res.has(SignalMaliciousKeywords):
		res.Violation = ViolationMaliciousAttack
	case res.has(SignalMultipleLinks, SignalRepeatedCharacters):
		res.Violation = ViolationSpam
	case res.has(SignalPunctuationFlood, SignalExcessiveLength):
		res.Violation = ViolationFlood
	case res.has(SignalContextMismatch):
		res.Violation = ViolationOffTopic
	}
	return res
}

// Shorthand for a one-off analysis with an explicit config.
func Analyze(text, context string, config Config) Result {
	return NewAnalyzer(config).Analyze(text, context)
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}

// Length of the longest run of a single repeated character. Line breaks never count.
func longestRepeatRun(s string) int {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		switch {
		case isLineBreak(r):
			run = 0
		case r == prev:
			run++
		default:
			run = 1
		}
		prev = r
		longest = max(longest, run)
	}
	return longest
}

// Length of the longest run made up of '!' and '?' characters (mixed).
func longestPunctuationRun(s string) int {
	longest, run := 0, 0
	for _, r := range s {
		if r == '!' || r == '?' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return longest
}
