package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeText(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s   string
		out []string
	}{
		{s: "", out: []string{}},
		{s: "Hello, World!", out: []string{"hello", "world"}},
		{s: "multi-agent planning", out: []string{"multi", "agent", "planning"}},
		{s: "Café  déjà vu", out: []string{"café", "déjà", "vu"}},
		{s: "cafe\u0301", out: []string{"cafe"}},
		{s: "İstanbul", out: []string{"i", "stanbul"}},
		{s: "AI 活動 討論", out: []string{"ai", "活動", "討論"}},
		{s: "https://example.com/x?y=1", out: []string{"https", "example", "com", "x", "y", "1"}},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, TokenizeText(fix.s), fix.s)
	}
}

func TestLower(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("hello wörld", Lower("HELLO WÖRLD"))
	assert.Equal("i\u0307stanbul", Lower("İstanbul"))
}

func TestTokenSet(t *testing.T) {
	assert := assert.New(t)

	set := TokenSet("a an the a an", 2)
	assert.Equal(map[string]bool{"an": true, "the": true}, set)
}

func TestOverlapRatio(t *testing.T) {
	assert := assert.New(t)

	// context too short to judge
	assert.Equal(1.0, OverlapRatio("buy casino chips", "AI meetup", 4))
	// no usable content tokens
	assert.Equal(1.0, OverlapRatio("!! ?? a", "one two three four five", 4))

	r := OverlapRatio("timeline topic cluster casino", "timeline discussion about topic clustering", 4)
	assert.InDelta(0.5, r, 0.0001)

	// accents are not folded
	assert.Equal(0.0, OverlapRatio("promo café", "cafe tonight with drinks", 4))

	r = OverlapRatio("join this airdrop promo", "AI agent meetup discussing multi-agent planning", 4)
	assert.Equal(0.0, r)
}

func TestContainsAny(t *testing.T) {
	assert := assert.New(t)

	kw, ok := ContainsAny("join the token sale today", []string{"", "airdrop", "token sale"})
	assert.True(ok)
	assert.Equal("token sale", kw)

	_, ok = ContainsAny("nothing to see", []string{"", "airdrop"})
	assert.False(ok)
}

func TestNormalizeKeywords(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]string{"casino", "token sale"}, NormalizeKeywords([]string{" Casino", "", "TOKEN SALE", "casino"}))
}
