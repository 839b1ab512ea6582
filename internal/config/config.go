// Package config loads the visitor-analytics service configuration.
package config

import (
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/config"
)

// Default configuration values.
const (
	defaultServiceName = "visitor-analytics"
	defaultServicePort = 8095
	defaultVersion     = "0.1.0"
	defaultBufferSize  = 1000
	defaultFlushThresh = 200
	defaultFlushIntvl  = 2 * time.Second
	defaultDBName      = "visitor_analytics"
	defaultCacheTTL    = 30 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Service  ServiceConfig              `yaml:"service"`
	Database infraconfig.DatabaseConfig `yaml:"database"`
	Redis    infraconfig.RedisConfig    `yaml:"redis"`
	Cache    CacheConfig                `yaml:"cache"`
	Auth     AuthConfig                 `yaml:"auth"`
	Logging  infraconfig.LoggingConfig  `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name           string        `yaml:"name"`
	Version        string        `yaml:"version"`
	Port           int           `env:"VISITOR_ANALYTICS_PORT"         yaml:"port"`
	Debug          bool          `env:"APP_DEBUG"                      yaml:"debug"`
	CORSOrigins    []string      `env:"VISITOR_ANALYTICS_CORS_ORIGINS" yaml:"cors_origins"`
	BufferSize     int           `yaml:"buffer_size"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	FlushThreshold int           `yaml:"flush_threshold"`
}

// CacheConfig controls the dashboard metrics cache.
type CacheConfig struct {
	TTL time.Duration `env:"METRICS_CACHE_TTL" yaml:"ttl"`
}

// AuthConfig holds operator authentication settings. Tokens carrying the
// admin role, or issued to one of AdminSubjects, may read the dashboard.
type AuthConfig struct {
	JWTSecret     string   `env:"AUTH_JWT_SECRET"          yaml:"jwt_secret"`
	AdminSubjects []string `env:"ANALYTICS_ADMIN_SUBJECTS" yaml:"admin_subjects"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	if cfg.Database.Database == "" {
		cfg.Database.Database = defaultDBName
	}
	cfg.Database.SetDefaults()
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = defaultCacheTTL
	}
	cfg.Logging.SetDefaults()
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.BufferSize == 0 {
		svc.BufferSize = defaultBufferSize
	}
	if svc.FlushInterval == 0 {
		svc.FlushInterval = defaultFlushIntvl
	}
	if svc.FlushThreshold == 0 {
		svc.FlushThreshold = defaultFlushThresh
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Service.FlushThreshold < 1 || c.Service.FlushThreshold > c.Service.BufferSize {
		return &infraconfig.ValidationError{
			Field:   "service.flush_threshold",
			Message: "must be between 1 and service.buffer_size",
		}
	}
	if c.Service.FlushInterval < 0 {
		return &infraconfig.ValidationError{Field: "service.flush_interval", Message: "must be positive"}
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("auth.jwt_secret", c.Auth.JWTSecret); err != nil {
		return err
	}
	return infraconfig.ValidateLogLevel("logging.level", c.Logging.Level)
}
