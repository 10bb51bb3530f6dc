package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration. A YAML file provides the base values and environment
// variables override them.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Storage   StorageConfig   `yaml:"storage"`
	Events    EventsConfig    `yaml:"events"`
	Countries CountriesConfig `yaml:"countries"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`

	// IdempotencyRetention is how long replayable responses are kept.
	IdempotencyRetention time.Duration `yaml:"idempotencyRetention"`
	// SessionIdleTimeout drops a user's in-memory state after this long without a request.
	// Zero keeps sessions until sign-out.
	SessionIdleTimeout   time.Duration `yaml:"sessionIdleTimeout"`
}

type LogConfig struct {
	// Mode is "production" (JSON) or "development" (console).
	Mode string `yaml:"mode"`
}

type AuthConfig struct {
	// Mode is "jwt" or "dev". JWT settings come from LoadJWTConfigFromEnv.
	Mode       string `yaml:"mode"`
	DevSubject string `yaml:"devSubject"`
}

type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	GCS      GCSConfig      `yaml:"gcs"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	Migrate  bool   `yaml:"migrate"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ObjectPrefix    string `yaml:"objectPrefix"`
	EmulatorHost    string `yaml:"emulatorHost"`
	CredentialsFile string `yaml:"credentialsFile"`
}

type EventsConfig struct {
	Backend      string `yaml:"backend"`
	AMQPURL      string `yaml:"amqpUrl"`
	AMQPExchange string `yaml:"amqpExchange"`
	RedisChannel string `yaml:"redisChannel"`
}

type CountriesConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	TTL     time.Duration `yaml:"ttl"`
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendGCS      = "gcs"
	BackendAMQP     = "amqp"
)

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,

			IdempotencyRetention: 24 * time.Hour,
			SessionIdleTimeout:   30 * time.Minute,
		},
		Log:  LogConfig{Mode: "production"},
		Auth: AuthConfig{Mode: "jwt", DevSubject: "dev-user"},
		Storage: StorageConfig{
			Backend:  BackendMemory,
			Postgres: PostgresConfig{Migrate: true},
			Redis:    RedisConfig{KeyPrefix: "ratings:doc:"},
		},
		Events: EventsConfig{
			Backend:      BackendMemory,
			AMQPExchange: "ratings.events",
			RedisChannel: "ratings:events",
		},
		Countries: CountriesConfig{
			BaseURL: "https://restcountries.com/v3.1",
			TTL:     24 * time.Hour,
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_ADDR":             &c.HTTP.Addr,
		"LOG_MODE":              &c.Log.Mode,
		"AUTH_MODE":             &c.Auth.Mode,
		"DEV_SUBJECT":           &c.Auth.DevSubject,
		"STORAGE_BACKEND":       &c.Storage.Backend,
		"DATABASE_URL":          &c.Storage.Postgres.DSN,
		"REDIS_ADDR":            &c.Storage.Redis.Addr,
		"REDIS_PASSWORD":        &c.Storage.Redis.Password,
		"REDIS_KEY_PREFIX":      &c.Storage.Redis.KeyPrefix,
		"GCS_BUCKET":            &c.Storage.GCS.Bucket,
		"GCS_OBJECT_PREFIX":     &c.Storage.GCS.ObjectPrefix,
		"STORAGE_EMULATOR_HOST": &c.Storage.GCS.EmulatorHost,
		"GCS_CREDENTIALS_FILE":  &c.Storage.GCS.CredentialsFile,
		"EVENTS_BACKEND":        &c.Events.Backend,
		"AMQP_URL":              &c.Events.AMQPURL,
		"AMQP_EXCHANGE":         &c.Events.AMQPExchange,
		"REDIS_EVENTS_CHANNEL":  &c.Events.RedisChannel,
		"COUNTRIES_BASE_URL":    &c.Countries.BaseURL,
	}
	for k, dst := range strs {
		if v, ok := lookup(k); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.HTTP.Addr = ":" + v
	}
	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
		c.Storage.Redis.DB = n
	}
	if v, ok := lookup("IDEMPOTENCY_RETENTION"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("IDEMPOTENCY_RETENTION must be a duration (e.g. 24h): %w", err)
		}
		c.HTTP.IdempotencyRetention = d
	}
	if v, ok := lookup("SESSION_IDLE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SESSION_IDLE_TIMEOUT must be a duration (e.g. 30m): %w", err)
		}
		c.HTTP.SessionIdleTimeout = d
	}
	if v, ok := lookup("COUNTRIES_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COUNTRIES_TTL must be a duration (e.g. 24h): %w", err)
		}
		c.Countries.TTL = d
	}
	return nil
}

// Validate checks backend names and the settings each selected backend needs.
func (c Config) Validate() error {
	var errs []error
	switch c.Auth.Mode {
	case "jwt", "dev":
	default:
		errs = append(errs, fmt.Errorf("auth.mode must be jwt or dev, got %q", c.Auth.Mode))
	}
	switch c.Log.Mode {
	case "production", "development":
	default:
		errs = append(errs, fmt.Errorf("log.mode must be production or development, got %q", c.Log.Mode))
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn (DATABASE_URL) is required"))
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr (REDIS_ADDR) is required"))
		}
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			errs = append(errs, errors.New("storage.gcs.bucket (GCS_BUCKET) is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Events.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("redis events need storage.redis.addr (REDIS_ADDR)"))
		}
	case BackendAMQP:
		if c.Events.AMQPURL == "" {
			errs = append(errs, errors.New("events.amqpUrl (AMQP_URL) is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown events backend %q", c.Events.Backend))
	}
	return errors.Join(errs...)
}
