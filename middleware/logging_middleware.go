package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next SubmitFunc) SubmitFunc {
		return func(ctx context.Context, data []byte) (uint64, error) {
			start := time.Now()
			index, err := next(ctx, data)
			duration := time.Since(start)
			if err != nil {
				logger.Warn("log submission failed",
					zap.Int("bytes", len(data)), zap.Duration("duration", duration), zap.Error(err))
				return index, err
			}
			logger.Debug("log submission committed",
				zap.Uint64("index", index), zap.Int("bytes", len(data)), zap.Duration("duration", duration))
			return index, nil
		}
	}
}
