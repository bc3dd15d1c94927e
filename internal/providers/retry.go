package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"time"
)

// HTTPError is a non-2xx reply from the endpoint.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether the status is worth retrying (429 and 5xx).
func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// RetryConfig controls exponential backoff for transient failures.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt (0 = none)
	BaseDelay  time.Duration // first backoff
	MaxDelay   time.Duration // backoff cap
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   20 * time.Second,
	}
}

func isRetryable(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// retryDo runs fn until it succeeds, fails permanently, retries run out or ctx ends.
func retryDo(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == cfg.MaxRetries {
			return err
		}

		delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		slog.Warn("providers: transient failure, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// backoffWithJitter computes min(base * 2^attempt, max) ± 25%.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
