package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8060, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "review_data.json", cfg.Data.ReviewFile)
	assert.Equal(t, "users.json", cfg.Data.UsersFile)
	assert.Equal(t, 10*time.Minute, cfg.Claims.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Claims.Override)
	assert.InEpsilon(t, 1.0, cfg.MO.RequestsPerSecond, 0.001)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 3306, cfg.Lookup.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
debug: true
server:
  port: 9000
  cors_origins:
    - http://review.example.org
data:
  review_file: /srv/review/review_data.json
  images_dir: /srv/review/images
claims:
  timeout: 5m
  override: 20m
mo:
  base_url: https://mushroomobserver.org
  requests_per_second: 0.5
redis:
  enabled: true
  address: redis:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"http://review.example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/srv/review/review_data.json", cfg.Data.ReviewFile)
	assert.Equal(t, 5*time.Minute, cfg.Claims.Timeout)
	assert.Equal(t, 20*time.Minute, cfg.Claims.Override)
	assert.Equal(t, "https://mushroomobserver.org", cfg.MO.BaseURL)
	assert.InEpsilon(t, 0.5, cfg.MO.RequestsPerSecond, 0.001)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.Equal(t, "debug", cfg.Log.Level, "debug mode lowers the log level")
	assert.True(t, cfg.Log.Development)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
data:
  review_file: from_yaml.json
`)

	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("REVIEW_DATA_FILE", "from_env.json")
	t.Setenv("CLAIM_TIMEOUT", "15m")
	t.Setenv("CLAIM_OVERRIDE", "45m")
	t.Setenv("MO_RATE_LIMIT", "2.5")
	t.Setenv("REDIS_EVENTS_ENABLED", "yes")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "from_env.json", cfg.Data.ReviewFile)
	assert.Equal(t, 15*time.Minute, cfg.Claims.Timeout)
	assert.Equal(t, 45*time.Minute, cfg.Claims.Override)
	assert.InEpsilon(t, 2.5, cfg.MO.RequestsPerSecond, 0.001)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		var c Config
		c.setDefaults()
		return &c
	}

	t.Run("valid defaults", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		c := base()
		c.Server.Port = -1
		assert.ErrorContains(t, c.Validate(), "server.port")
	})

	t.Run("missing review file", func(t *testing.T) {
		c := base()
		c.Data.ReviewFile = ""
		assert.ErrorContains(t, c.Validate(), "review_file")
	})

	t.Run("override shorter than timeout", func(t *testing.T) {
		c := base()
		c.Claims.Timeout = 30 * time.Minute
		c.Claims.Override = 10 * time.Minute
		assert.ErrorContains(t, c.Validate(), "claims.override")
	})

	t.Run("lookup enabled without credentials", func(t *testing.T) {
		c := base()
		c.Lookup.Enabled = true
		assert.ErrorContains(t, c.Validate(), "lookup.host")

		c.Lookup.Host = "db.example"
		assert.ErrorContains(t, c.Validate(), "lookup.user")

		c.Lookup.User = "reader"
		assert.ErrorContains(t, c.Validate(), "lookup.dbname")

		c.Lookup.DBName = "mo_mirror"
		assert.NoError(t, c.Validate())
	})
}

func TestLookupConfig_DSN(t *testing.T) {
	l := LookupConfig{
		Host:     "db.example",
		Port:     3306,
		User:     "reader",
		Password: "secret",
		DBName:   "mo_mirror",
	}
	assert.Equal(t, "reader:secret@tcp(db.example:3306)/mo_mirror?parseTime=true", l.DSN())
}

func TestPath(t *testing.T) {
	assert.Equal(t, "config.yml", Path("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/review/config.yml")
	assert.Equal(t, "/etc/review/config.yml", Path("config.yml"))
}
