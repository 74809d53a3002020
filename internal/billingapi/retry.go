package billingapi

import (
	"context"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds the retry behavior applied to every outbound api call.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	JitterBound  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		JitterBound:  250 * time.Millisecond,
	}
}

// WithRetry runs fn, retrying transient upstream failures (rate limits, 5xx,
// connection errors) up to policy.MaxRetries additional attempts.  Everything
// else propagates on the first call.  After exhausting the budget the original
// error is returned unchanged so callers can still match on its classification.
func WithRetry[T any](ctx context.Context, log *logrus.Entry, policy RetryPolicy, operation string, fn func(context.Context) (T, error)) (T, error) {

	var zero T

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if !Retryable(err) {
			return zero, err
		}

		kind := errorKindOf(err)

		if attempt >= policy.MaxRetries {
			retriesExhaustedCounter.With(prometheus.Labels{"operation": operation, "kind": string(kind)}).Inc()
			log.WithFields(logrus.Fields{
				"error":     err,
				"operation": operation,
				"kind":      kind,
				"attempt":   attempt,
			}).Error("Retry budget exhausted for billing api call")
			return zero, err
		}

		delay := backoffDelay(policy, attempt, retryAfterOf(err))

		retryCounter.With(prometheus.Labels{"operation": operation, "kind": string(kind)}).Inc()
		log.WithFields(logrus.Fields{
			"error":     err,
			"operation": operation,
			"kind":      kind,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("Retrying billing api call")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes the wait before the next attempt.  A provider supplied
// retry-after directive wins over exponential backoff.  The attempt counter is
// 0-indexed.
func backoffDelay(policy RetryPolicy, attempt int, retryAfter time.Duration) time.Duration {

	jitter := time.Duration(rand.Int63n(int64(policy.JitterBound) + 1))

	if retryAfter > 0 {
		return retryAfter + jitter
	}

	delay := policy.InitialDelay << uint(attempt)
	if delay <= 0 || delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	return delay + jitter
}
