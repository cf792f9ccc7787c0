package redis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "slotengine:lock:action:0xabc", lockKey("action:0xabc"))
	assert.Equal(t, "slotengine:ratelimit:1.2.3.4", rateLimitKey("1.2.3.4"))
	assert.Equal(t, "slotengine:slots", channelKey("slots"))
	assert.Equal(t, "slotengine:board", boardKey)
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("slot*"))
	assert.True(t, hasPattern("a?"))
	assert.False(t, hasPattern("actions"))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.True(t, strings.Contains(slidingWindowLua, "ZREMRANGEBYSCORE"))
	assert.True(t, strings.Contains(slidingWindowLua, "ARGV[4]"))
}
