package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUpToMaxThenBlocks(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, rl.AllowAttempt("1.2.3.4"))
	}
	require.False(t, rl.AllowAttempt("1.2.3.4"))
	require.Equal(t, 0, rl.RemainingAttempts("1.2.3.4"))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	require.True(t, rl.AllowAttempt("1.2.3.4"))
	require.False(t, rl.AllowAttempt("1.2.3.4"))
	require.True(t, rl.AllowAttempt("5.6.7.8"))
}

func TestRateLimiterResetClearsBudget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	require.True(t, rl.AllowAttempt("1.2.3.4"))
	require.False(t, rl.AllowAttempt("1.2.3.4"))

	rl.Reset("1.2.3.4")
	require.True(t, rl.AllowAttempt("1.2.3.4"))
}

func TestRateLimiterWindowExpires(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	require.True(t, rl.AllowAttempt("1.2.3.4"))
	require.False(t, rl.AllowAttempt("1.2.3.4"))

	time.Sleep(30 * time.Millisecond)
	require.True(t, rl.AllowAttempt("1.2.3.4"))
}
