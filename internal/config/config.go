package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/nemf/photo-review/internal/logger"
)

const (
	defaultServerPort    = 8060
	defaultServerTimeout = 30 * time.Second
	defaultClaimTimeout  = 10 * time.Minute
	defaultClaimOverride = 30 * time.Minute
	defaultRedisAddress  = "localhost:6379"
	defaultLookupDBPort  = 3306
	defaultMaxOpenConns  = 25
	defaultMaxIdleConns  = 5
	defaultConnLifetime  = 5 * time.Minute
	defaultMORateLimit   = 1.0
)

// Config is the full service configuration.
type Config struct {
	Debug  bool          `env:"APP_DEBUG" yaml:"debug"`
	Log    logger.Config `yaml:"log"`
	Server ServerConfig  `yaml:"server"`
	Data   DataConfig    `yaml:"data"`
	Claims ClaimsConfig  `yaml:"claims"`
	MO     MOConfig      `yaml:"mo"`
	Redis  RedisConfig   `yaml:"redis"`
	Lookup LookupConfig  `yaml:"lookup"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host         string        `env:"SERVER_HOST"  yaml:"host"`
	Port         int           `env:"SERVER_PORT"  yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
}

// DataConfig points at the on-disk state files.
type DataConfig struct {
	ReviewFile string `env:"REVIEW_DATA_FILE" yaml:"review_file"`
	UsersFile  string `env:"USERS_FILE"       yaml:"users_file"`
	ImagesDir  string `env:"IMAGES_DIR"       yaml:"images_dir"`
	LookupDir  string `env:"LOOKUP_DIR"       yaml:"lookup_dir"`
}

// ClaimsConfig tunes the soft-lock lifecycle.
type ClaimsConfig struct {
	// Timeout is how long a claim survives without a heartbeat.
	Timeout time.Duration `env:"CLAIM_TIMEOUT" yaml:"timeout"`
	// Override is how old a claim must be before another reviewer may
	// take it over without force.
	Override time.Duration `env:"CLAIM_OVERRIDE" yaml:"override"`
}

// MOConfig configures the Mushroom Observer API client.
type MOConfig struct {
	BaseURL string `env:"MO_BASE_URL" yaml:"base_url"`
	// RequestsPerSecond throttles outbound API calls. Zero or negative
	// disables throttling.
	RequestsPerSecond float64 `env:"MO_RATE_LIMIT" yaml:"requests_per_second"`
}

// RedisConfig holds Redis connection settings for event publishing.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"        yaml:"address"`
	Password string `env:"REDIS_PASSWORD"       yaml:"password"`
	DB       int    `env:"REDIS_DB"             yaml:"db"`
	Enabled  bool   `env:"REDIS_EVENTS_ENABLED" yaml:"enabled"` // Feature flag for event publishing
}

// LookupConfig configures the optional MySQL lookup database, a read-only
// mirror of the MO names and locations tables.
type LookupConfig struct {
	Enabled         bool          `env:"LOOKUP_DB_ENABLED"  yaml:"enabled"`
	Host            string        `env:"LOOKUP_DB_HOST"     yaml:"host"`
	Port            int           `env:"LOOKUP_DB_PORT"     yaml:"port"`
	User            string        `env:"LOOKUP_DB_USER"     yaml:"user"`
	Password        string        `env:"LOOKUP_DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"LOOKUP_DB_NAME"     yaml:"dbname"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN builds the MySQL connection string.
func (l LookupConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		l.User, l.Password, l.Host, l.Port, l.DBName)
}

// Validate checks the fields no default can supply.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be positive")
	}
	if c.Data.ReviewFile == "" {
		return errors.New("data.review_file is required")
	}
	if c.Claims.Override < c.Claims.Timeout {
		return errors.New("claims.override must not be shorter than claims.timeout")
	}
	if c.Lookup.Enabled {
		if c.Lookup.Host == "" {
			return errors.New("lookup.host is required when lookup.enabled")
		}
		if c.Lookup.User == "" {
			return errors.New("lookup.user is required when lookup.enabled")
		}
		if c.Lookup.DBName == "" {
			return errors.New("lookup.dbname is required when lookup.enabled")
		}
	}
	return nil
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.setDefaults()

	// Env always wins, defaults included.
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultServerTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultServerTimeout
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if c.Data.ReviewFile == "" {
		c.Data.ReviewFile = "review_data.json"
	}
	if c.Data.UsersFile == "" {
		c.Data.UsersFile = "users.json"
	}
	if c.Claims.Timeout == 0 {
		c.Claims.Timeout = defaultClaimTimeout
	}
	if c.Claims.Override == 0 {
		c.Claims.Override = defaultClaimOverride
	}
	if c.MO.RequestsPerSecond == 0 {
		c.MO.RequestsPerSecond = defaultMORateLimit
	}
	if c.Redis.Address == "" {
		c.Redis.Address = defaultRedisAddress
	}
	if c.Lookup.Port == 0 {
		c.Lookup.Port = defaultLookupDBPort
	}
	if c.Lookup.MaxOpenConns == 0 {
		c.Lookup.MaxOpenConns = defaultMaxOpenConns
	}
	if c.Lookup.MaxIdleConns == 0 {
		c.Lookup.MaxIdleConns = defaultMaxIdleConns
	}
	if c.Lookup.ConnMaxLifetime == 0 {
		c.Lookup.ConnMaxLifetime = defaultConnLifetime
	}
	if c.Log.Level == "" {
		if c.Debug {
			c.Log.Level = "debug"
		} else {
			c.Log.Level = "info"
		}
	}
	if c.Debug {
		c.Log.Development = true
	}
}
