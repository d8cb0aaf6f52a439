package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Ledger.Backend)
	assert.Equal(t, 300, cfg.Limits().Content)
	assert.False(t, cfg.RelayEnabled())
	assert.True(t, cfg.UsesDevSigningKey())
	assert.Equal(t, int64(100_000), cfg.Redis.StreamMaxLen)
}

func TestLoad_RedisStreamCap(t *testing.T) {
	path := writeFile(t, `
ledger:
  backend: redis
redis:
  url: redis://file:6379/0
  streamMaxLen: 500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(500), cfg.Redis.StreamMaxLen)

	t.Setenv("TIMEVAULT_REDIS_STREAM_MAX_LEN", "0")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.Redis.StreamMaxLen)

	t.Setenv("TIMEVAULT_REDIS_STREAM_MAX_LEN", "-1")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "streamMaxLen")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
  shutdownTimeout: 3s
  logLevel: debug
ledger:
  backend: postgres
postgres:
  url: postgres://file/timevault
kafka:
  brokers: ["file:9092"]
capsule:
  maxContentLength: 450
`)
	t.Setenv("TIMEVAULT_POSTGRES_URL", "postgres://env/timevault")
	t.Setenv("TIMEVAULT_KAFKA_BROKERS", "a:9092, b:9092,a:9092")
	t.Setenv("TIMEVAULT_AUTH_JWT_SIGNING_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "postgres://env/timevault", cfg.Postgres.URL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "from-env", cfg.Auth.JWTSigningKey)
	assert.Equal(t, 450, cfg.Limits().Content)
	assert.True(t, cfg.RelayEnabled())

	lvl, err := cfg.Server.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"postgres without url", func(c *Config) { c.Ledger.Backend = BackendPostgres }, "postgres.url"},
		{"redis without url", func(c *Config) { c.Ledger.Backend = BackendRedis }, "redis.url"},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "etcd" }, "unknown ledger backend"},
		{"relay without postgres", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} }, "requires the postgres backend"},
		{"content above ceiling", func(c *Config) { c.Capsule.MaxContentLength = 501 }, "content limit"},
		{"content zero", func(c *Config) { c.Capsule.MaxContentLength = 0 }, "content limit"},
		{"empty signing key", func(c *Config) { c.Auth.JWTSigningKey = "" }, "jwtSigningKey"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "invalid log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
