// Package config reads the service configuration from the environment
// (and an optional .env file) plus an optional TOML model catalog.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"semembed/embedding"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/klauspost/cpuid/v2"
)

const (
	DefaultModel      = "BAAI/bge-small-en-v1.5"
	DefaultPort       = 8081
	DefaultBackend    = "openai"
	DefaultBackendURL = "http://localhost:8080/v1"
	DefaultAPIKeyEnv  = "SEMEMBED_API_KEY"
	DefaultMaxInputs  = 2048
	DefaultCacheTTL   = 24 * time.Hour
	DefaultCacheQueue = 1024
	DefaultMaxBody    = 32 << 20
)

// Config holds every runtime option of the service.
type Config struct {
	DefaultModel string `validate:"required"`
	Port         int    `validate:"min=1,max=65535"`
	GRPCPort     int    `validate:"min=0,max=65535"`

	LogLevel  string
	LogFormat string `validate:"omitempty,oneof=text json"`
	DebugMode bool

	Backend      string `validate:"oneof=openai grpc hash"`
	BackendURL   string
	APIKeyEnv    string
	ModelsFile   string
	MaxBatchSize int `validate:"min=1"`
	Concurrency  int `validate:"min=1"`

	MaxInputs      int   `validate:"min=1"`
	MaxBodyBytes   int64 `validate:"min=1"`
	RequestTimeout time.Duration
	Preload        bool

	Redis RedisConfig

	Models []embedding.Definition `validate:"required,min=1,dive"`
}

// RedisConfig configures the optional embedding cache. An empty Addr
// disables it.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int `validate:"min=0"`
	TTL       time.Duration
	Workers   int `validate:"min=1"`
	QueueSize int `validate:"min=1"`
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Load parses the environment (and an optional .env file) into Config.
func Load() (Config, error) {
	// no-op when .env does not exist
	_ = godotenv.Load()

	e := &env{}
	cfg := Config{
		DefaultModel: e.getEnv("SEMEMBED_MODEL", DefaultModel),
		Port:         e.getInt("SEMEMBED_PORT", DefaultPort),
		GRPCPort:     e.getInt("SEMEMBED_GRPC_PORT", 0),
		LogLevel:     e.getEnv("LOG_LEVEL", "INFO"),
		LogFormat:    strings.ToLower(e.getEnv("LOG_FORMAT", "")),
		DebugMode:    e.getBool("DEBUG_MODE", false),
		Backend:      e.getEnv("SEMEMBED_BACKEND", DefaultBackend),
		BackendURL:   e.getEnv("SEMEMBED_BACKEND_URL", DefaultBackendURL),
		APIKeyEnv:    e.getEnv("SEMEMBED_API_KEY_ENV", DefaultAPIKeyEnv),
		ModelsFile:   e.getEnv("SEMEMBED_MODELS_FILE", ""),
		MaxBatchSize: e.getInt("SEMEMBED_MAX_BATCH_SIZE", embedding.DefaultMaxBatchSize),
		Concurrency:  e.getInt("SEMEMBED_CONCURRENCY", embedding.DefaultConcurrency),
		MaxInputs:    e.getInt("SEMEMBED_MAX_INPUTS", DefaultMaxInputs),
		MaxBodyBytes: int64(e.getInt("SEMEMBED_MAX_BODY_BYTES", DefaultMaxBody)),

		RequestTimeout: e.getDuration("SEMEMBED_REQUEST_TIMEOUT", 0),
		Preload:        e.getBool("SEMEMBED_PRELOAD", true),
		Redis: RedisConfig{
			Addr:      e.getEnv("SEMEMBED_REDIS_ADDR", ""),
			Password:  e.getEnv("SEMEMBED_REDIS_PASSWORD", ""),
			DB:        e.getInt("SEMEMBED_REDIS_DB", 0),
			TTL:       e.getDuration("SEMEMBED_CACHE_TTL", DefaultCacheTTL),
			Workers:   e.getInt("SEMEMBED_CACHE_WORKERS", defaultCacheWorkers()),
			QueueSize: e.getInt("SEMEMBED_CACHE_QUEUE", DefaultCacheQueue),
		},
	}
	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}

	if cfg.ModelsFile != "" {
		models, err := LoadCatalog(cfg.ModelsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Models = models
	} else {
		cfg.Models = BuiltinCatalog()
	}
	cfg.applyModelDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and that the default model is in the
// catalog.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.RequestTimeout < 0 {
		return errors.New("invalid configuration: SEMEMBED_REQUEST_TIMEOUT must not be negative")
	}
	if c.Redis.TTL < 0 {
		return errors.New("invalid configuration: SEMEMBED_CACHE_TTL must not be negative")
	}
	for _, m := range c.Models {
		if m.ID == c.DefaultModel {
			return nil
		}
	}
	return fmt.Errorf("invalid configuration: default model %q is not in the model catalog", c.DefaultModel)
}

// applyModelDefaults fills per-model settings left empty in the catalog.
func (c *Config) applyModelDefaults() {
	for i := range c.Models {
		m := &c.Models[i]
		if m.Backend == "" {
			m.Backend = c.Backend
		}
		if m.Endpoint == "" && m.Backend != "hash" {
			m.Endpoint = c.BackendURL
		}
		if m.APIKeyEnv == "" && m.Backend == "openai" {
			m.APIKeyEnv = c.APIKeyEnv
		}
		if m.MaxBatchSize == 0 {
			m.MaxBatchSize = c.MaxBatchSize
		}
		if m.Concurrency == 0 {
			m.Concurrency = c.Concurrency
		}
	}
}

func defaultCacheWorkers() int {
	return max(1, cpuid.CPU.PhysicalCores/2)
}

// env collects parse errors so Load can report all of them at once.
type env struct {
	errs []error
}

func (e *env) getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func (e *env) getInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: want an integer", key, v))
		return defaultVal
	}
	return n
}

// getDuration accepts Go duration syntax or a plain number of seconds.
func (e *env) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: want a duration", key, v))
		return defaultVal
	}
	return d
}

func (e *env) getBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: want a boolean", key, v))
		return defaultVal
	}
	return b
}
