package content

import (
	"math"
	"strconv"
	"strings"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvMaliciousKeywords = "CONTENT_MOD_MALICIOUS_KEYWORDS"
	EnvPromoKeywords     = "CONTENT_MOD_PROMO_KEYWORDS"
	EnvURLCountSpam      = "CONTENT_MOD_URL_COUNT_SPAM"
	EnvRepeatedCharMin   = "CONTENT_MOD_REPEATED_CHAR_MIN"
	EnvPunctFloodMin     = "CONTENT_MOD_PUNCT_FLOOD_MIN"
	EnvMaxContentLength  = "CONTENT_MOD_MAX_CONTENT_LENGTH"
	EnvMaxLineCount      = "CONTENT_MOD_MAX_LINE_COUNT"
	EnvContextOverlapMin = "CONTENT_MOD_CONTEXT_OVERLAP_MIN"
)

// Builds a config from environment-style lookups (eg, os.Getenv) layered over "base".
//
// Keyword lists are comma separated. Values which are unset, unparsable, or below the field's
// minimum leave the base value in place, so the result always passes Validate if "base" does.
func ConfigFromEnv(getenv func(string) string, base Config) Config {
	c := base
	c.MaliciousKeywords = parseKeywordList(getenv(EnvMaliciousKeywords), base.MaliciousKeywords)
	c.PromoKeywords = parseKeywordList(getenv(EnvPromoKeywords), base.PromoKeywords)

	t := &c.Thresholds
	t.URLCountSpam = parseIntMin(getenv(EnvURLCountSpam), t.URLCountSpam, MinURLCountSpam)
	t.RepeatedCharMin = parseIntMin(getenv(EnvRepeatedCharMin), t.RepeatedCharMin, MinRepeatedCharMin)
	t.PunctuationFloodMin = parseIntMin(getenv(EnvPunctFloodMin), t.PunctuationFloodMin, MinPunctuationFloodMin)
	t.MaxContentLength = parseIntMin(getenv(EnvMaxContentLength), t.MaxContentLength, MinMaxContentLength)
	t.MaxLineCount = parseIntMin(getenv(EnvMaxLineCount), t.MaxLineCount, MinMaxLineCount)

	if v, err := strconv.ParseFloat(strings.TrimSpace(getenv(EnvContextOverlapMin)), 64); err == nil {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v >= MinContextOverlapMin && v <= 1 {
			t.ContextOverlapMin = v
		}
	}
	return c
}

func parseKeywordList(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	out := []string{}
	for _, v := range strings.Split(raw, ",") {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func parseIntMin(raw string, fallback, min int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < min {
		return fallback
	}
	return v
}
