// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Logging observes every call with structured start/settle log entries. It
// never alters the resolved value or the returned error.
func Logging(logger *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, mc *Context) (any, error) {
			start := time.Now()
			logger.Debug("operation started",
				zap.String("op", string(mc.Op)),
				zap.String("key", mc.Key()),
			)

			result, err := next(ctx, mc)

			fields := []zap.Field{
				zap.String("op", string(mc.Op)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Debug("operation failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("operation completed", fields...)
			}
			return result, err
		}
	}
}
