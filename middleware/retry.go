// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package middleware

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryConfig configures the retry policy.
type RetryConfig struct {
	// MaxRetries is the number of re-invocations after the initial attempt.
	MaxRetries uint64
	// InitialInterval seeds the exponential backoff. Zero means the backoff
	// library default.
	InitialInterval time.Duration
	// ShouldRetry gates which errors are retried. Nil retries everything.
	ShouldRetry func(error) bool
	Logger      *zap.Logger
}

// Retry re-invokes the wrapped handler with exponential backoff until it
// succeeds, the error is classified non-retryable, or the attempt budget is
// exhausted. The final error is returned unchanged.
func Retry(cfg RetryConfig) Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, mc *Context) (any, error) {
			var result any

			operation := func() error {
				var err error
				result, err = next(ctx, mc)
				if err == nil {
					return nil
				}
				if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
					return backoff.Permanent(err)
				}
				return err
			}

			expBackOff := backoff.NewExponentialBackOff()
			if cfg.InitialInterval > 0 {
				expBackOff.InitialInterval = cfg.InitialInterval
			}
			policy := backoff.WithContext(
				backoff.WithMaxRetries(expBackOff, cfg.MaxRetries),
				ctx,
			)
			notify := func(err error, wait time.Duration) {
				logger.Debug("operation failed, retrying",
					zap.String("op", string(mc.Op)),
					zap.Duration("wait", wait),
					zap.Error(err),
				)
			}

			if err := backoff.RetryNotify(operation, policy, notify); err != nil {
				return nil, err
			}
			return result, nil
		}
	}
}
