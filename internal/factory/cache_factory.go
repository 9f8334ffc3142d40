package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/cache"
	"github.com/mikey/mail-triage/internal/config"
)

// CacheFactory creates verdict caches based on configuration
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateVerdictStore returns nil when classification or caching is off
func (f *CacheFactory) CreateVerdictStore() (cache.VerdictStore, error) {
	cc, err := f.cfg.GetClassifier()
	if err != nil {
		return nil, err
	}
	if !cc.Enabled || !cc.Cache.Enabled {
		return nil, nil
	}

	switch cc.Cache.Type {
	case "memory":
		f.logger.Info("Verdict cache enabled",
			zap.String("type", cc.Cache.Type),
			zap.Duration("ttl", cc.Cache.TTL),
			zap.Duration("cleanup_frequency", cc.Cache.CleanupFrequency))
		return cache.NewMemoryCache(cc.Cache.TTL, cc.Cache.CleanupFrequency, f.logger), nil
	case "redis":
		redisCfg := f.cfg.GetRedis()
		rc := cache.NewRedisCache(redis.NewClient(&redis.Options{
			Addr:     redisCfg.Address,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		}), cc.Cache.TTL, redisCfg.KeyPrefix, f.logger)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, err
		}
		f.logger.Info("Verdict cache enabled",
			zap.String("type", cc.Cache.Type),
			zap.String("address", redisCfg.Address),
			zap.Duration("ttl", cc.Cache.TTL))
		return rc, nil
	default:
		return nil, fmt.Errorf("unsupported verdict cache type: %s", cc.Cache.Type)
	}
}
