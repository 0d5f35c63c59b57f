package group

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zheilbron/atomix/configuration"
	"github.com/zheilbron/atomix/middleware"
	"github.com/zheilbron/atomix/replog"
	"github.com/zheilbron/atomix/service"
)

// Open connects to the log described by cfg and builds the member on it.
// The Member owns the log and closes it on Close.
func Open(ctx context.Context, cfg *configuration.Config, logger *zap.Logger) (*Member, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log, err := OpenLog(ctx, cfg.Log, logger)
	if err != nil {
		return nil, err
	}
	m, err := Join(cfg, log, logger)
	if err != nil {
		log.Close()
		return nil, err
	}
	m.log = log
	return m, nil
}

// Join builds the member on an existing log, which it does not own.
func Join(cfg *configuration.Config, log replog.Log, logger *zap.Logger) (*Member, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	svc, err := service.New(cfg.Member, log,
		service.WithCodec(cfg.CodecType()),
		service.WithMembers(cfg.Members...),
		service.WithMiddleware(SubmitMiddleware(cfg.Submit, logger)...),
		service.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return New(svc, logger), nil
}

// SubmitMiddleware builds the submission chain for cfg:
//
//	Logging → RateLimit → Retry → Timeout → log.Submit
//
// so each retry attempt gets its own timeout.
func SubmitMiddleware(cfg configuration.SubmitConfig, logger *zap.Logger) []middleware.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	mws := []middleware.Middleware{middleware.LoggingMiddleware(logger)}
	if cfg.Rate > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.Rate, cfg.Burst))
	}
	if cfg.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retries, cfg.RetryDelay, logger))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(cfg.Timeout))
	}
	return mws
}

// OpenLog creates the log backend named in cfg.
func OpenLog(ctx context.Context, cfg configuration.LogConfig, logger *zap.Logger) (replog.Log, error) {
	switch cfg.Backend {
	case configuration.BackendMemory:
		return replog.NewMemoryLog(), nil
	case configuration.BackendEtcd:
		return replog.NewEtcdLog(replog.EtcdConfig{
			Endpoints:   cfg.Etcd.Endpoints,
			Prefix:      cfg.Etcd.Prefix,
			DialTimeout: cfg.Etcd.DialTimeout,
			Logger:      logger,
		})
	case configuration.BackendRedis:
		log := replog.NewRedisLog(replog.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			Block:    cfg.Redis.Block,
			Logger:   logger,
		})
		if err := log.Ping(ctx); err != nil {
			log.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return log, nil
	}
	return nil, fmt.Errorf("%w: unknown log backend %q", configuration.ErrInvalid, cfg.Backend)
}
