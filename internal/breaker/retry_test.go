package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/internal/relayerr"
)

func TestRetryStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return relayerr.Network("ERR_RPC_UNAVAILABLE", "transient", nil)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return relayerr.Validation("ERR_INVALID_INPUT", "bad request", nil)
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return relayerr.Network("ERR_RPC_UNAVAILABLE", "still down", nil)
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, 50*time.Millisecond, func() error {
		calls++
		cancel()
		return relayerr.Network("ERR_RPC_UNAVAILABLE", "transient", nil)
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
