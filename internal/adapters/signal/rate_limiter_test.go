package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BlocksAboveLimit(t *testing.T) {
	rl := NewLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("sid-1"))
	}
	assert.False(t, rl.Allow("sid-1"))

	// Independent window per session.
	assert.True(t, rl.Allow("sid-2"))
}

func TestLimiter_WindowSlides(t *testing.T) {
	rl := NewLimiter(2, 20*time.Millisecond)

	assert.True(t, rl.Allow("sid"))
	assert.True(t, rl.Allow("sid"))
	assert.False(t, rl.Allow("sid"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("sid"))
}

func TestLimiter_ForgetResets(t *testing.T) {
	rl := NewLimiter(1, time.Minute)

	assert.True(t, rl.Allow("sid"))
	assert.False(t, rl.Allow("sid"))

	rl.Forget("sid")
	assert.True(t, rl.Allow("sid"))
}
