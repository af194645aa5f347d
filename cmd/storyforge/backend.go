package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/healthcheck"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/ratelimit"
	"github.com/aman-churiwal/storyforge/internal/repository"
	"github.com/aman-churiwal/storyforge/internal/service"
	"github.com/aman-churiwal/storyforge/internal/storage"
	"github.com/aman-churiwal/storyforge/internal/usage"
)

// backend groups the stores of one database driver.
type backend struct {
	// atomic runs the whole check in one statement.
	atomic ratelimit.Store
	// records is plain get/insert/update access for read_check_write mode.
	records ratelimit.RecordStore
	usage   usage.Store
	users   service.UserRepository
	probes  []healthcheck.Probe
	close   func()
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg, err := storage.NewPostgres(cfg.Database.DSN, cfg.Server.Environment)
		if err != nil {
			return nil, err
		}
		if err := pg.AutoMigrate(); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
		logger.Info("connected to postgres")

		rateLimits := repository.NewRateLimitRepository(pg)
		return &backend{
			atomic:  rateLimits,
			records: rateLimits,
			usage:   repository.NewUsageLogRepository(pg),
			users:   repository.NewUserRepository(pg),
			probes:  []healthcheck.Probe{{Name: "database", Check: func(ctx context.Context) error { return pg.Ping(ctx) }}},
			close:   func() { _ = pg.Close() },
		}, nil

	case "sqlite":
		db, err := storage.NewSQLite(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite database", "path", db.Path())

		rateLimits := repository.NewSQLiteRateLimitRepository(db)
		return &backend{
			atomic:  rateLimits,
			records: rateLimits,
			usage:   repository.NewSQLiteUsageLogRepository(db),
			users:   repository.NewMemoryUserRepository(),
			probes:  []healthcheck.Probe{{Name: "database", Check: db.Ping}},
			close:   func() { _ = db.Close() },
		}, nil

	default:
		logger.Warn("using in-memory storage, counters and usage are lost on restart")
		memory := ratelimit.NewMemoryStore()
		return &backend{
			atomic:  memory,
			records: memory,
			usage:   usage.NewMemoryStore(),
			users:   repository.NewMemoryUserRepository(),
			close:   func() {},
		}, nil
	}
}

// rateLimitStore picks the counter store from ratelimit.backend and ratelimit.mode.
func rateLimitStore(cfg *config.Config, b *backend, redis *storage.RedisClient) (ratelimit.Store, error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		if redis == nil {
			return nil, errors.New("ratelimit.backend redis requires redis.enabled")
		}
		return ratelimit.NewRedisStore(redis), nil

	case "memory":
		memory := ratelimit.NewMemoryStore()
		if cfg.RateLimit.Mode == "read_check_write" {
			return ratelimit.NewReadCheckWrite(memory), nil
		}
		return memory, nil

	default:
		if cfg.RateLimit.Mode == "read_check_write" {
			logger.Warn("rate limiting in read_check_write mode, concurrent requests may exceed the limit")
			return ratelimit.NewReadCheckWrite(b.records), nil
		}
		return b.atomic, nil
	}
}

func newLimiter(store ratelimit.Store, cfg *config.Store) *ratelimit.FixedWindowLimiter {
	return ratelimit.NewFixedWindow(store, ratelimit.ConfigPolicies(cfg))
}
