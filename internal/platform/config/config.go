package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"timevault/internal/capsule/models"
	pkgstrings "timevault/pkg/platform/strings"
)

// EnvPrefix prefixes every environment override, e.g. TIMEVAULT_SERVER_ADDR.
const EnvPrefix = "TIMEVAULT"

const devSigningKey = "dev-secret-key-change-in-production"

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Server   Server      `yaml:"server"`
	Ledger   Ledger      `yaml:"ledger"`
	Postgres Postgres    `yaml:"postgres"`
	Redis    RedisConfig `yaml:"redis"`
	Kafka    Kafka       `yaml:"kafka"`
	Auth     Auth        `yaml:"auth"`
	Capsule  Capsule     `yaml:"capsule"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`
	LogLevel        string        `yaml:"logLevel"        split_words:"true"`
}

type Ledger struct {
	Backend string `yaml:"backend"`
}

type Postgres struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"maxOpenConns"    split_words:"true"`
	MaxIdleConns    int           `yaml:"maxIdleConns"    split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" split_words:"true"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"poolSize"     split_words:"true"`
	MinIdleConns int           `yaml:"minIdleConns" split_words:"true"`
	DialTimeout  time.Duration `yaml:"dialTimeout"  split_words:"true"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  split_words:"true"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true"`
	MaxRetries   int           `yaml:"maxRetries"   split_words:"true"`
	// StreamMaxLen approximately caps the capsule event stream. Zero keeps every entry.
	StreamMaxLen int64         `yaml:"streamMaxLen" split_words:"true"`
}

// Kafka configures the outbox relay. The relay runs only with the postgres
// backend and at least one broker.
type Kafka struct {
	Brokers           []string      `yaml:"brokers"`
	Topic             string        `yaml:"topic"`
	Partitions        int32         `yaml:"partitions"`
	ReplicationFactor int16         `yaml:"replicationFactor" split_words:"true"`
	BatchSize         int           `yaml:"batchSize"         split_words:"true"`
	PollInterval      time.Duration `yaml:"pollInterval"      split_words:"true"`
}

type Auth struct {
	JWTSigningKey string        `yaml:"jwtSigningKey" envconfig:"JWT_SIGNING_KEY"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	TokenTTL      time.Duration `yaml:"tokenTTL"      envconfig:"TOKEN_TTL"`
}

type Capsule struct {
	MaxContentLength int `yaml:"maxContentLength" split_words:"true"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			LogLevel:        "info",
		},
		Ledger: Ledger{Backend: BackendMemory},
		Postgres: Postgres{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			MaxRetries:   8,
			StreamMaxLen: 100_000,
		},
		Kafka: Kafka{
			Topic:             "timevault.capsule-events",
			Partitions:        6,
			ReplicationFactor: 1,
			BatchSize:         100,
			PollInterval:      5 * time.Second,
		},
		Auth: Auth{
			JWTSigningKey: devSigningKey,
			Issuer:        "timevault",
			Audience:      "timevault-api",
			TokenTTL:      time.Hour,
		},
		Capsule: Capsule{MaxContentLength: models.DefaultMaxContentLength},
	}
}

// Load overlays the optional YAML file and then TIMEVAULT_* environment
// variables onto Default, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	cfg.Kafka.Brokers = pkgstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects inconsistent combinations.
func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres backend requires postgres.url"))
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis backend requires redis.url"))
		}
		if c.Redis.StreamMaxLen < 0 {
			errs = append(errs, errors.New("redis.streamMaxLen must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend))
	}
	if len(c.Kafka.Brokers) > 0 {
		if c.Ledger.Backend != BackendPostgres {
			errs = append(errs, errors.New("kafka relay requires the postgres backend"))
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
		}
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("auth.jwtSigningKey is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.tokenTTL must be positive"))
	}
	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Server.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Limits returns the capsule text bounds for this deployment.
func (c *Config) Limits() models.Limits {
	return models.DefaultLimits().WithContent(c.Capsule.MaxContentLength)
}

// RelayEnabled reports whether the outbox relay should run.
func (c *Config) RelayEnabled() bool {
	return c.Ledger.Backend == BackendPostgres && len(c.Kafka.Brokers) > 0
}

// UsesDevSigningKey reports whether tokens are signed with the built-in key.
func (c *Config) UsesDevSigningKey() bool {
	return c.Auth.JWTSigningKey == devSigningKey
}

// Level parses LogLevel.
func (s Server) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s.LogLevel)
	}
	return lvl, nil
}
