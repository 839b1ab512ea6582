package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraconfig "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/config"
)

func validConfig() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Auth.JWTSecret = "secret"
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, defaultServiceName, cfg.Service.Name)
	assert.Equal(t, defaultVersion, cfg.Service.Version)
	assert.Equal(t, defaultServicePort, cfg.Service.Port)
	assert.Equal(t, defaultBufferSize, cfg.Service.BufferSize)
	assert.Equal(t, defaultFlushThresh, cfg.Service.FlushThreshold)
	assert.Equal(t, defaultFlushIntvl, cfg.Service.FlushInterval)
	assert.Equal(t, defaultDBName, cfg.Database.Database)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, defaultCacheTTL, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Redis.Address, "redis stays disabled unless configured")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Service.Port = 70000 }, "service.port"},
		{"threshold above buffer", func(c *Config) { c.Service.FlushThreshold = c.Service.BufferSize + 1 }, "service.flush_threshold"},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var vErr *infraconfig.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
service:
  port: 9100
  flush_interval: 500ms
auth:
  admin_subjects: [alice]
cache:
  ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("AUTH_JWT_SECRET", "from-env")
	t.Setenv("ANALYTICS_ADMIN_SUBJECTS", "alice, bob")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Service.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Service.FlushInterval)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Auth.AdminSubjects)
	require.NoError(t, cfg.Validate())
}
