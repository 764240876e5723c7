package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/exchange"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	log "github.com/sirupsen/logrus"
)

// Step is the outcome of the retry table for one failed attempt.
type Step struct {
	Retry   bool
	Backoff time.Duration
	// Final is the error kind reported when the call gives up.
	Final error
}

type RetryPolicy struct {
	MaxAttempts      int
	RateLimitBackoff time.Duration
	RetryBackoff     time.Duration
}

// TickerStep: every failure is transient for the current price.
func (p RetryPolicy) TickerStep(kind exchange.FailureKind) Step {
	if kind == exchange.KindRateLimited {
		return Step{Retry: true, Backoff: p.RateLimitBackoff, Final: model.ErrUpstreamUnavailable}
	}

	return Step{Retry: true, Backoff: p.RetryBackoff, Final: model.ErrUpstreamUnavailable}
}

// HistoryStep: a bad status or an empty or unreadable bar list means the day
// has no data and is not retried. Transport failures are retried.
func (p RetryPolicy) HistoryStep(kind exchange.FailureKind) Step {
	switch kind {
	case exchange.KindRateLimited:
		return Step{Retry: true, Backoff: p.RateLimitBackoff, Final: model.ErrUpstreamUnavailable}
	case exchange.KindTimeout, exchange.KindNetwork:
		return Step{Retry: true, Backoff: p.RetryBackoff, Final: model.ErrUpstreamUnavailable}
	default:
		return Step{Final: model.ErrNoDataForDate}
	}
}

// run calls fn until it succeeds, step says stop, or MaxAttempts is reached.
func (p RetryPolicy) run(ctx context.Context, op string, step func(exchange.FailureKind) Step, fn func(context.Context) (string, error)) (string, error) {
	attempts := max(p.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		raw, err := fn(ctx)
		if err == nil {
			return raw, nil
		}

		kind := exchange.KindOf(err)
		next := step(kind)
		logger := log.WithFields(log.Fields{
			"op":      op,
			"attempt": attempt,
			"kind":    kind,
		})

		if !next.Retry {
			logger.Debugf("giving up: %v", err)
			return "", fmt.Errorf("%s: %w: %w", op, next.Final, err)
		}
		if attempt >= attempts {
			logger.Warnf("retries exhausted: %v", err)
			return "", fmt.Errorf("%s after %d attempts: %w: %w", op, attempt, next.Final, err)
		}

		logger.Debugf("retrying in %s: %v", next.Backoff, err)
		if err := sleep(ctx, next.Backoff); err != nil {
			return "", fmt.Errorf("%s: %w: %w", op, model.ErrUpstreamUnavailable, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
