package breaker

import (
	"context"
	"math/rand"
	"time"

	"github.com/airchainpay/relay/internal/relayerr"
)

// Retry runs fn up to attempts times, sleeping a jittered exponential
// backoff between tries. Only errors the taxonomy marks retryable
// (transient network failures) are retried; validation, auth, and protocol
// errors surface immediately. The last error is returned once the budget is
// exhausted or ctx is canceled.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 200 * time.Millisecond
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !relayerr.IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		backoff := base << uint(attempt)
		sleep := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}
	}
	return err
}
