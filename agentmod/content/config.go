package content

import (
	"fmt"

	"github.com/botpass/botpass/agentmod/keyword"
)

type Thresholds struct {
	// Number of links (http://, https://, www.) at which a post counts as link spam.
	URLCountSpam int
	// Length of a run of one repeated character which counts as spam.
	RepeatedCharMin int
	// Length of a run of '!' / '?' which counts as flooding.
	PunctuationFloodMin int
	// Maximum content length, in characters.
	MaxContentLength int
	// Maximum number of lines.
	MaxLineCount int
	// Minimum share of content tokens which must appear in the event context, for promotional
	// content to be considered on-topic.
	ContextOverlapMin float64
}

type Config struct {
	MaliciousKeywords []string
	PromoKeywords     []string
	Thresholds        Thresholds
}

func DefaultConfig() Config {
	return Config{
		MaliciousKeywords: []string{
			"kill",
			"die",
			"stupid",
			"idiot",
			"垃圾",
			"去死",
			"白痴",
			"智障",
			"幹你",
			"廢物",
		},
		PromoKeywords: []string{
			"airdrop",
			"discount",
			"promo",
			"coupon",
			"token sale",
			"loan",
			"casino",
			"博彩",
			"優惠碼",
			"加密群",
			"外匯群",
		},
		Thresholds: Thresholds{
			URLCountSpam:        3,
			RepeatedCharMin:     12,
			PunctuationFloodMin: 8,
			MaxContentLength:    2200,
			MaxLineCount:        35,
			ContextOverlapMin:   0.2,
		},
	}
}

// Minimum accepted value for each numeric threshold.
var (
	MinURLCountSpam        = 1
	MinRepeatedCharMin     = 2
	MinPunctuationFloodMin = 2
	MinMaxContentLength    = 100
	MinMaxLineCount        = 2
	MinContextOverlapMin   = 0.0
)

func (c Config) Validate() error {
	t := c.Thresholds
	switch {
	case t.URLCountSpam < MinURLCountSpam:
		return fmt.Errorf("url count threshold must be at least %d", MinURLCountSpam)
	case t.RepeatedCharMin < MinRepeatedCharMin:
		return fmt.Errorf("repeated character threshold must be at least %d", MinRepeatedCharMin)
	case t.PunctuationFloodMin < MinPunctuationFloodMin:
		return fmt.Errorf("punctuation flood threshold must be at least %d", MinPunctuationFloodMin)
	case t.MaxContentLength < MinMaxContentLength:
		return fmt.Errorf("max content length must be at least %d", MinMaxContentLength)
	case t.MaxLineCount < MinMaxLineCount:
		return fmt.Errorf("max line count must be at least %d", MinMaxLineCount)
	case t.ContextOverlapMin < MinContextOverlapMin || t.ContextOverlapMin > 1:
		return fmt.Errorf("context overlap minimum must be between 0 and 1")
	}
	return nil
}

// Returns a copy with keyword lists lower-cased, trimmed, and de-duplicated.
func (c Config) Normalized() Config {
	c.MaliciousKeywords = keyword.NormalizeKeywords(c.MaliciousKeywords)
	c.PromoKeywords = keyword.NormalizeKeywords(c.PromoKeywords)
	return c
}
