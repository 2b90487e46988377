// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package middleware

import (
	"context"
	"sync"
	"time"
)

// RateLimit bounds the wrapped handler to maxCalls per sliding window. A
// call arriving into a saturated window waits out the remainder of the
// oldest call's window and then re-enters; it is never dropped. Waiting is
// interruptible through the caller's context.
func RateLimit(maxCalls int, window time.Duration) Middleware {
	var (
		mu    sync.Mutex
		calls []time.Time
	)

	reserve := func() time.Duration {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		kept := calls[:0]
		for _, at := range calls {
			if now.Sub(at) < window {
				kept = append(kept, at)
			}
		}
		calls = kept

		if len(calls) < maxCalls {
			calls = append(calls, now)
			return 0
		}
		return window - now.Sub(calls[0])
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, mc *Context) (any, error) {
			for {
				wait := reserve()
				if wait <= 0 {
					return next(ctx, mc)
				}

				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
		}
	}
}
