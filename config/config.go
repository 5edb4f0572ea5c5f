package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	log "github.com/sirupsen/logrus"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendTables = "tables"
)

// Auth modes.
const (
	AuthNone  = "none"
	AuthHS256 = "hs256"
	AuthJWKS  = "jwks"
)

type StorageConfig struct {
	Backend          string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory"`
	ConnectionString string `yaml:"connection_string" env:"STORAGE_CONNECTION_STRING"`
	TasksTable       string `yaml:"tasks_table" env:"TASKS_TABLE" env-default:"tasks"`
	CategoriesTable  string `yaml:"categories_table" env:"CATEGORIES_TABLE" env-default:"categories"`
	ChangeQueue      string `yaml:"change_queue" env:"CHANGE_QUEUE"`
	SeedFile         string `yaml:"seed_file" env:"SEED_FILE"`
}

type RedisConfig struct {
	ConnectionString string        `yaml:"connection_string" env:"REDIS_CONNECTION_STRING"`
	CacheTTL         time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" env-default:"30s"`
	IdempotencyTTL   time.Duration `yaml:"idempotency_ttl" env:"IDEMPOTENCY_TTL" env-default:"24h"`
}

type AuthConfig struct {
	Mode         string        `yaml:"mode" env:"AUTH_MODE" env-default:"none"`
	Secret       string        `yaml:"secret" env:"AUTH_SECRET"`
	Domain       string        `yaml:"domain" env:"AUTH0_DOMAIN"`
	Audience     string        `yaml:"audience" env:"AUTH0_AUDIENCE"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl" env:"JWKS_CACHE_TTL" env-default:"15m"`
}

type NotifyConfig struct {
	Workers        int           `yaml:"workers" env:"NOTIFY_WORKERS" env-default:"4"`
	Buffer         int           `yaml:"buffer" env:"NOTIFY_BUFFER" env-default:"256"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"NOTIFY_TIMEOUT" env-default:"30s"`
	HandoffTimeout time.Duration `yaml:"handoff_timeout" env:"NOTIFY_HANDOFF_TIMEOUT" env-default:"15ms"`
}

type Config struct {
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR" env-default:":8080"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	ReorderWorkers  int           `yaml:"reorder_workers" env:"REORDER_WORKERS" env-default:"4"`
	Storage         StorageConfig `yaml:"storage"`
	Redis           RedisConfig   `yaml:"redis"`
	Auth            AuthConfig    `yaml:"auth"`
	Notify          NotifyConfig  `yaml:"notify"`
}

// Load reads configuration from the YAML file at path, falling back to the
// environment alone when path is empty or the file does not exist.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		cfg = Config{}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	cfg.Auth.Mode = strings.ToLower(strings.TrimSpace(cfg.Auth.Mode))
	return cfg, cfg.Validate()
}

// MustLoad is Load that exits the process on error.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendTables:
		if c.Storage.ConnectionString == "" {
			errs = append(errs, errors.New("STORAGE_CONNECTION_STRING is required for the tables backend"))
		}
		if c.Storage.TasksTable == "" || c.Storage.CategoriesTable == "" {
			errs = append(errs, errors.New("table names must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend))
	}
	if c.Storage.ChangeQueue != "" && c.Storage.ConnectionString == "" {
		errs = append(errs, errors.New("CHANGE_QUEUE requires STORAGE_CONNECTION_STRING"))
	}
	switch c.Auth.Mode {
	case AuthNone:
	case AuthHS256:
		if c.Auth.Secret == "" {
			errs = append(errs, errors.New("AUTH_SECRET is required for hs256 auth"))
		}
	case AuthJWKS:
		if c.Auth.Domain == "" || c.Auth.Audience == "" {
			errs = append(errs, errors.New("AUTH0_DOMAIN and AUTH0_AUDIENCE are required for jwks auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.Auth.Mode))
	}
	if c.RequestTimeout < 0 || c.Redis.CacheTTL < 0 || c.Redis.IdempotencyTTL < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}
