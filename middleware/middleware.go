// Package middleware wraps log submission with cross-cutting behavior.
//
// The service submits every framed command through a SubmitFunc built by
// Chain, so logging, retry, timeouts and rate limiting apply to Messages and
// Acks alike.
package middleware

import (
	"context"
	"errors"
)

var (
	ErrRateLimited   = errors.New("submission rate limit exceeded")
	ErrSubmitTimeout = errors.New("submission timed out")
)

// SubmitFunc appends one log entry and returns its committed index.
type SubmitFunc func(ctx context.Context, data []byte) (uint64, error)

type Middleware func(next SubmitFunc) SubmitFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
