package middleware

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware 创建一个基于令牌桶算法的限流中间件
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, data []byte) (uint64, error) {
			if !limiter.Allow() {
				return 0, ErrRateLimited
			}
			return next(ctx, data)
		}
	}
}
