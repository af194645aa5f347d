package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "atomic", cfg.RateLimit.Mode)
	assert.Equal(t, "x-user-id", cfg.Identity.Header)

	story, ok := cfg.Policy(FunctionStory)
	require.True(t, ok)
	assert.Equal(t, 10, story.Limit)
	assert.Equal(t, time.Minute, story.Window)

	image, ok := cfg.Policy(FunctionImage)
	require.True(t, ok)
	assert.Equal(t, 5, image.Limit)

	chat, ok := cfg.Policy(FunctionChat)
	require.True(t, ok)
	assert.Equal(t, 20, chat.Limit)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  driver: sqlite
  path: /tmp/test.db
gateway:
  timeout: 10s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("STORYFORGE_SERVER_PORT", "9090")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "9090", cfg.Server.Port)
	// untouched sections keep their defaults
	_, ok := cfg.Policy(FunctionChat)
	assert.True(t, ok)
}

func TestLoadAndWatch_Snapshot(t *testing.T) {
	store, err := LoadAndWatch(t.TempDir())
	require.NoError(t, err)

	a := store.Get()
	a.Server.Port = "1"
	assert.Equal(t, "8080", store.Get().Server.Port)
}

func validConfig() *Config {
	return &Config{
		Database:  DatabaseConfig{Driver: "memory"},
		RateLimit: RateLimitConfig{
			Backend: "memory",
			Mode:    "atomic",
			Functions: map[string]PolicyConfig{
				FunctionStory: {Limit: 10, Window: time.Minute},
				FunctionImage: {Limit: 5, Window: time.Minute},
				FunctionChat:  {Limit: 20, Window: time.Minute},
			},
		},
		Identity: IdentityConfig{Mode: "header"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing policy",
			mutate:  func(c *Config) { delete(c.RateLimit.Functions, FunctionChat) },
			wantErr: "ratelimit.functions.chat",
		},
		{
			name: "zero window",
			mutate: func(c *Config) {
				c.RateLimit.Functions[FunctionImage] = PolicyConfig{Limit: 5}
			},
			wantErr: "ratelimit.functions.image-generation",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "database.dsn",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: "unknown database driver",
		},
		{
			name:    "redis backend without redis",
			mutate:  func(c *Config) { c.RateLimit.Backend = "redis" },
			wantErr: "redis.enabled",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.RateLimit.Mode = "sliding" },
			wantErr: "unknown rate limit mode",
		},
		{
			name: "redis with read_check_write",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.RateLimit.Backend = "redis"
				c.RateLimit.Mode = "read_check_write"
			},
			wantErr: "not available with the redis backend",
		},
		{
			name:    "jwt identity without secret",
			mutate:  func(c *Config) { c.Identity.Mode = "jwt" },
			wantErr: "identity.jwt_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
