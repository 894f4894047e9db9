// Package retry wraps startup dependencies (postgres, redis) in exponential
// backoff so the service survives starting before them.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

var DefaultPolicy = Policy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxRetries:      8,
}

// Do runs op until it succeeds, the retries are exhausted or ctx is done.
func Do(ctx context.Context, name string, p Policy, op func(ctx context.Context) error) error {
	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(p.InitialInterval),
				backoff.WithMaxInterval(p.MaxInterval),
			),
			p.MaxRetries,
		),
		ctx,
	)

	return backoff.RetryNotify(func() error { return op(ctx) }, strategy, func(err error, d time.Duration) {
		slog.Warn("dependency not ready, retrying", "dependency", name, "err", err, "next_attempt_in", d)
	})
}
