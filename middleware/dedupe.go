// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package middleware

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Dedupe collapses concurrent calls with the same context key into one
// execution of the wrapped handler; every caller observes the shared outcome.
// The in-flight entry is cleared as soon as the call settles, so sequential
// calls each execute.
func Dedupe() Middleware {
	var group singleflight.Group

	return func(next Handler) Handler {
		return func(ctx context.Context, mc *Context) (any, error) {
			result, err, _ := group.Do(mc.Key(), func() (any, error) {
				return next(ctx, mc)
			})
			return result, err
		}
	}
}
