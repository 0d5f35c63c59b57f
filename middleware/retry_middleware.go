package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/zheilbron/atomix/replog"
)

// RetryMiddleware retries submissions that failed with replog.ErrUnavailable,
// the only error that guarantees nothing was appended. Any other error may
// hide a committed entry, and resubmitting it would apply the command twice.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, data []byte) (uint64, error) {
			index, err := next(ctx, data)
			for i := 0; i < maxRetries; i++ {
				if err == nil || !errors.Is(err, replog.ErrUnavailable) {
					return index, err
				}
				logger.Info("retrying log submission", zap.Int("attempt", i+1), zap.Error(err))

				timer := time.NewTimer(baseDelay * time.Duration(1<<i)) // Exponential backoff
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return 0, ctx.Err()
				}
				index, err = next(ctx, data)
			}
			return index, err
		}
	}
}
