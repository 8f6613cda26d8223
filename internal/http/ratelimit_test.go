package httpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys have separate buckets")
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("old")

	now = now.Add(time.Hour)
	rl.Allow("new")

	assert.Equal(t, 1, rl.Cleanup(10*time.Minute))
	assert.Len(t, rl.visitors, 1)
}

func TestLoginURLAndSafeNext(t *testing.T) {
	assert.Equal(t, "/auth/login/?next=/new/", loginURL("/new/"))
	assert.Equal(t, "/auth/login/?next=/a%2Bb/%3Fpage%3D2", loginURL("/a+b/?page=2"))

	assert.Equal(t, "/sarah/", safeNext("/sarah/"))
	assert.Equal(t, "/", safeNext("//evil"))
	assert.Equal(t, "/", safeNext(""))
}
