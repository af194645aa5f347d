package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-churiwal/storyforge/internal/completion"
	"github.com/aman-churiwal/storyforge/internal/config"
	"github.com/aman-churiwal/storyforge/internal/healthcheck"
	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/aman-churiwal/storyforge/internal/server"
	"github.com/aman-churiwal/storyforge/internal/storage"
	"github.com/aman-churiwal/storyforge/internal/tokens"
	"github.com/go-redis/redis_rate/v10"
	"github.com/joho/godotenv"
)

func main() {
	// Load env if it exists
	_ = godotenv.Load()

	configDir := os.Getenv("STORYFORGE_CONFIG_DIR")
	if configDir == "" {
		configDir = "configs"
	}

	cfgStore, err := config.LoadAndWatch(configDir)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := cfgStore.Get()
	logger.Configure(cfg.Server.Environment)

	var redis *storage.RedisClient
	if cfg.Redis.Enabled {
		redis, err = storage.NewRedis(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redis.Close()
		logger.Info("connected to redis", "addr", cfg.Redis.GetRedisAddr())
	}

	stores, err := openBackend(cfg)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer stores.close()

	store, err := rateLimitStore(cfg, stores, redis)
	if err != nil {
		logger.Error("failed to set up rate limiting", "error", err)
		os.Exit(1)
	}

	gateway := completion.New(completion.OptionsFromConfig(cfg.Gateway))
	if cfg.Gateway.APIKey == "" {
		logger.Warn("gateway.api_key is empty, requests are sent without credentials", "url", cfg.Gateway.URL)
	}

	probes := append(stores.probes, healthcheck.Probe{
		Name: "completion_gateway",
		Check: func(context.Context) error {
			if gateway.BreakerState() == "open" {
				return errors.New("circuit breaker open")
			}
			return nil
		},
	})

	deps := server.Dependencies{
		Config:  cfgStore,
		Limiter: newLimiter(store, cfgStore),
		Gateway: gateway,
		Usage:   stores.usage,
		Users:   stores.users,
	}

	if redis != nil {
		deps.AbuseLimiter = redis_rate.NewLimiter(redis.Client())
		probes = append(probes, healthcheck.Probe{Name: "redis", Check: redis.Ping})
	}

	if cfg.Metrics.CountPromptTokens {
		counter, err := tokens.NewCounter()
		if err != nil {
			logger.Warn("prompt token counting disabled", "error", err)
		} else {
			deps.Tokens = counter
		}
	}

	checker := healthcheck.NewChecker(&healthcheck.Config{Probes: probes})
	checker.Start()
	defer checker.Stop()
	deps.Health = checker

	srv := server.New(deps)

	created, err := srv.AuthService().EnsureAdmin(context.Background(), cfg.Admin.BootstrapEmail, cfg.Admin.BootstrapPassword)
	if err != nil {
		logger.Error("failed to bootstrap admin user", "error", err)
	} else if created {
		logger.Info("bootstrap admin user created", "email", cfg.Admin.BootstrapEmail)
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
