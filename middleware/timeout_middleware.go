package middleware

import (
	"context"
	"fmt"
	"time"
)

type submitResult struct {
	index uint64
	err   error
}

// TimeoutMiddleware bounds a submission. A timed-out entry may still be
// committed later; the error only says the outcome is unknown.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, data []byte) (uint64, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan submitResult, 1)
			go func() {
				index, err := next(ctx, data)
				done <- submitResult{index, err}
			}()

			select {
			case r := <-done:
				return r.index, r.err
			case <-ctx.Done():
				return 0, fmt.Errorf("%w after %s: %w", ErrSubmitTimeout, timeout, ctx.Err())
			}
		}
	}
}
