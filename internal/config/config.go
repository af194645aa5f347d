package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aman-churiwal/storyforge/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Function names as stored in rate_limits.function_name and usage_logs.function_name.
const (
	FunctionStory = "story-generation"
	FunctionImage = "image-generation"
	FunctionChat  = "chat"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Usage      UsageConfig      `mapstructure:"usage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	AbuseGuard AbuseGuardConfig `mapstructure:"abuse_guard"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Environment  string        `mapstructure:"environment"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "postgres", "sqlite" or "memory"
	DSN    string `mapstructure:"dsn"`
	Path   string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return r.Host + ":" + r.Port
}

type RateLimitConfig struct {
	Backend   string                  `mapstructure:"backend"` // "database", "redis" or "memory"
	Mode      string                  `mapstructure:"mode"`    // "atomic" or "read_check_write"
	Functions map[string]PolicyConfig `mapstructure:"functions"`
}

type PolicyConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type GatewayConfig struct {
	URL               string        `mapstructure:"url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	DefaultModel      string        `mapstructure:"default_model"`
	ImageModel        string        `mapstructure:"image_model"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

type IdentityConfig struct {
	Mode      string `mapstructure:"mode"` // "header" or "jwt"
	Header    string `mapstructure:"header"`
	Anonymous string `mapstructure:"anonymous"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type AdminConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	TokenExpiryHours  int    `mapstructure:"token_expiry_hours"`
	BootstrapEmail    string `mapstructure:"bootstrap_email"`
	BootstrapPassword string `mapstructure:"bootstrap_password"`
}

type UsageConfig struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	CountPromptTokens bool `mapstructure:"count_prompt_tokens"`
}

type AbuseGuardConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	PerMinute int  `mapstructure:"per_minute"`
}

// Policy returns the configured limit and window for a function.
func (c *Config) Policy(function string) (PolicyConfig, bool) {
	p, ok := c.RateLimit.Functions[function]
	if !ok || p.Limit <= 0 || p.Window <= 0 {
		return PolicyConfig{}, false
	}
	return p, true
}

// Store wraps the configuration with thread-safe access and hot-reload updates.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore wraps an already loaded configuration. Used by tests and tools.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	cpy := *s.cfg
	return &cpy
}

func (s *Store) set(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Chat responses stream for as long as the model keeps generating.
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "data/storyforge.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.backend", "database")
	v.SetDefault("ratelimit.mode", "atomic")
	v.SetDefault("ratelimit.functions", map[string]any{
		FunctionStory: map[string]any{"limit": 10, "window": "60s"},
		FunctionImage: map[string]any{"limit": 5, "window": "60s"},
		FunctionChat:  map[string]any{"limit": 20, "window": "60s"},
	})

	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.url", "http://localhost:3001/v1/chat/completions")
	v.SetDefault("gateway.timeout", 60*time.Second)
	v.SetDefault("gateway.default_model", "google/gemini-2.5-flash")
	v.SetDefault("gateway.image_model", "google/gemini-2.5-flash-image-preview")
	v.SetDefault("gateway.requests_per_second", 50.0)
	v.SetDefault("gateway.burst", 100)
	v.SetDefault("gateway.breaker_failures", 5)
	v.SetDefault("gateway.breaker_timeout", 30*time.Second)

	v.SetDefault("identity.mode", "header")
	v.SetDefault("identity.header", "x-user-id")
	v.SetDefault("identity.anonymous", "anonymous")
	v.SetDefault("identity.jwt_secret", "")

	v.SetDefault("admin.jwt_secret", "")
	v.SetDefault("admin.token_expiry_hours", 24)
	v.SetDefault("admin.bootstrap_email", "")
	v.SetDefault("admin.bootstrap_password", "")

	v.SetDefault("usage.write_timeout", 5*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.count_prompt_tokens", false)

	v.SetDefault("abuse_guard.enabled", false)
	v.SetDefault("abuse_guard.per_minute", 120)
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STORYFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadAndWatch loads configs/config.yaml (when present) over the defaults and
// watches it for on-disk changes.
func LoadAndWatch(dir string) (*Store, error) {
	v := newViper(dir)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.Info("no config file found, using defaults and environment", "dir", dir)
		watch = false
	}

	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}

	if watch {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := refresh(v, store); err != nil {
				logger.Error("config reload failed", "error", err)
			} else {
				logger.Info("config reloaded", "file", e.Name)
			}
		})
	}

	return store, nil
}

// Load reads the configuration once without watching.
func Load(dir string) (*Config, error) {
	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

func refresh(v *viper.Viper, store *Store) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	store.set(&cfg)
	return nil
}

func (c *Config) Validate() error {
	for _, fn := range []string{FunctionStory, FunctionImage, FunctionChat} {
		if _, ok := c.Policy(fn); !ok {
			return fmt.Errorf("ratelimit.functions.%s needs a positive limit and window", fn)
		}
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}

	switch c.RateLimit.Backend {
	case "database", "memory":
	case "redis":
		if !c.Redis.Enabled {
			return errors.New("ratelimit.backend redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unknown rate limit backend: %s", c.RateLimit.Backend)
	}

	if c.RateLimit.Mode != "atomic" && c.RateLimit.Mode != "read_check_write" {
		return fmt.Errorf("unknown rate limit mode: %s", c.RateLimit.Mode)
	}
	if c.RateLimit.Backend == "redis" && c.RateLimit.Mode == "read_check_write" {
		return errors.New("ratelimit.mode read_check_write is not available with the redis backend")
	}

	if c.Identity.Mode == "jwt" && c.Identity.JWTSecret == "" {
		return errors.New("identity.jwt_secret is required when identity.mode is jwt")
	}

	return nil
}
