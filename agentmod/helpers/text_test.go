package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupeStrings(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]string{"a", "b"}, DedupeStrings([]string{"a", "b", "a"}))
	assert.Nil(DedupeStrings(nil))
}

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)
	h := HashOfString("some post text")
	assert.Len(h, 16)
	assert.Equal(h, HashOfString("some post text"))
	assert.NotEqual(h, HashOfString("some other text"))
}

func TestISOTime(t *testing.T) {
	assert := assert.New(t)
	ts := time.Date(2024, 5, 1, 12, 5, 0, 0, time.FixedZone("x", 3600))
	assert.Equal("2024-05-01T11:05:00.000Z", ISOTime(ts))
}
