package aliyun

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
)

// rateAwareBackOff doubles the next wait whenever the previous attempt
// was rejected for rate limiting, so throttled calls back off harder
// than ordinary transient failures.
type rateAwareBackOff struct {
	inner       backoff.BackOff
	rateLimited *bool
}

func (b *rateAwareBackOff) NextBackOff() time.Duration {
	d := b.inner.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if *b.rateLimited {
		d *= 2
	}
	return d
}

func (b *rateAwareBackOff) Reset() { b.inner.Reset() }

// withRetry runs call up to maxAttempts times. Client faults abort
// immediately unless rate limited; server and network faults are
// retried with exponential backoff. The returned error, if any, is
// always a *domain.APIError.
func (c *Client) withRetry(ctx context.Context, op string, call func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.RandomizationFactor = 0.5
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	rateLimited := false
	policy := backoff.WithContext(
		backoff.WithMaxRetries(&rateAwareBackOff{inner: bo, rateLimited: &rateLimited}, uint64(c.maxAttempts-1)),
		ctx,
	)

	attempt := func() error {
		err := call()
		if err == nil {
			return nil
		}
		apiErr, ok := domain.AsAPIError(err)
		if !ok {
			apiErr = classify(op, err)
		}
		if !apiErr.Retryable() {
			return backoff.Permanent(apiErr)
		}
		rateLimited = apiErr.RateLimited
		return apiErr
	}

	return backoff.Retry(attempt, policy)
}
