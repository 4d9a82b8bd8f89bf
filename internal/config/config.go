// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type StoreConfig struct {
	Driver     string        `yaml:"driver"` // redis | memory
	KeyPrefix  string        `yaml:"key_prefix"`
	Queue      string        `yaml:"queue"`
	PopTimeout time.Duration `yaml:"pop_timeout"`
	ChunkTTL   time.Duration `yaml:"chunk_ttl"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AIConfig struct {
	Provider        string `yaml:"provider"` // openai | gemini | noop
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	GeminiURL       string `yaml:"gemini_url"`
	DefaultModel    string `yaml:"default_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent generator calls
}

type GenerationConfig struct {
	MaxRetries         int           `yaml:"max_retries"`
	BaseTimeout        time.Duration `yaml:"base_timeout"`
	TimeoutMultiplier  float64       `yaml:"timeout_multiplier"`
	MaxTimeout         time.Duration `yaml:"max_timeout"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	MinChunkLength     int           `yaml:"min_chunk_length"`
	FallbackTokenRatio float64       `yaml:"fallback_token_ratio"`
}

type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	Embedded     bool          `yaml:"embedded"` // run worker loops inside `serve`
	IdleSleep    time.Duration `yaml:"idle_sleep"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
}

type ReconcilerConfig struct {
	Interval        time.Duration `yaml:"interval"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
	ArchiveFinished bool          `yaml:"archive_finished"`
}

type HTTPConfig struct {
	Port       int           `yaml:"port"`
	AuthSecret string        `yaml:"auth_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	// job creations allowed per client address per CreateWindow; 0 disables the limit
	CreateLimit  int           `yaml:"create_limit"`
	CreateWindow time.Duration `yaml:"create_window"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	AI         AIConfig         `yaml:"ai"`
	Generation GenerationConfig `yaml:"generation"`
	Worker     WorkerConfig     `yaml:"worker"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Load reads the YAML file at path (a missing file is allowed; defaults and the
// environment still apply), then applies environment overrides and validates.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	applyEnv(&cfg, newEnv())
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("EBOOKQ")
	v.AutomaticEnv()
	// Unprefixed names used by the existing deployments.
	_ = v.BindEnv("legacy_kv_url", "KV_URL")
	_ = v.BindEnv("legacy_redis_url", "REDIS_URL")
	_ = v.BindEnv("legacy_openai_key", "OPENAI_API_KEY")
	_ = v.BindEnv("legacy_database_url", "DATABASE_URL")
	return v
}

func applyEnv(cfg *Config, v *viper.Viper) {
	override := func(dst *string, keys ...string) {
		for _, k := range keys {
			if s := strings.TrimSpace(v.GetString(k)); s != "" {
				*dst = s
				return
			}
		}
	}
	override(&cfg.Store.Driver, "store_driver")
	override(&cfg.Redis.URL, "redis_url", "legacy_kv_url", "legacy_redis_url")
	override(&cfg.Redis.Password, "redis_password")
	override(&cfg.AI.Provider, "ai_provider")
	override(&cfg.AI.OpenAIKey, "openai_key", "legacy_openai_key")
	override(&cfg.AI.GeminiKey, "gemini_key")
	override(&cfg.AI.DefaultModel, "ai_model")
	override(&cfg.Database.URL, "database_url", "legacy_database_url")
	override(&cfg.HTTP.AuthSecret, "auth_secret")
	override(&cfg.Log.Level, "log_level")
	if p := v.GetInt("http_port"); p > 0 {
		cfg.HTTP.Port = p
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "redis"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "ebook:"
	}
	if cfg.Store.Queue == "" {
		cfg.Store.Queue = "pages"
	}
	if cfg.Store.PopTimeout <= 0 {
		cfg.Store.PopTimeout = 5 * time.Second
	}
	cfg.Store.ChunkTTL = normalizeTTL(cfg.Store.ChunkTTL)

	if cfg.AI.Provider == "" {
		switch {
		case cfg.AI.OpenAIKey != "":
			cfg.AI.Provider = "openai"
		case cfg.AI.GeminiKey != "":
			cfg.AI.Provider = "gemini"
		}
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}

	g := &cfg.Generation
	if g.MaxRetries <= 0 {
		g.MaxRetries = 4
	}
	if g.BaseTimeout <= 0 {
		g.BaseTimeout = 15 * time.Second
	}
	if g.TimeoutMultiplier < 1 {
		g.TimeoutMultiplier = 1.5
	}
	if g.MaxTimeout <= 0 {
		g.MaxTimeout = 60 * time.Second
	}
	if g.BaseDelay <= 0 {
		g.BaseDelay = time.Second
	}
	if g.MaxDelay <= 0 {
		g.MaxDelay = 10 * time.Second
	}
	if g.MinChunkLength <= 0 {
		g.MinChunkLength = 40
	}
	if g.FallbackTokenRatio <= 0 || g.FallbackTokenRatio > 1 {
		g.FallbackTokenRatio = 0.5
	}

	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 2
	}
	if cfg.Worker.IdleSleep <= 0 {
		cfg.Worker.IdleSleep = 5 * time.Second
	}
	if cfg.Worker.ErrorBackoff <= 0 {
		cfg.Worker.ErrorBackoff = 5 * time.Second
	}

	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.LockTTL <= 0 {
		cfg.Reconciler.LockTTL = cfg.Reconciler.Interval
	}

	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.TokenTTL <= 0 {
		cfg.HTTP.TokenTTL = 24 * time.Hour
	}
	if cfg.HTTP.CreateWindow <= 0 {
		cfg.HTTP.CreateWindow = time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
}

// Validate performs minimal validation.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis.url is required when store.driver is redis")
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	switch c.AI.Provider {
	case "openai", "gemini", "noop", "":
	default:
		return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
	}
	if c.Generation.MaxTimeout < c.Generation.BaseTimeout {
		return errors.New("generation.max_timeout must be >= generation.base_timeout")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 24 * time.Hour
	}
	return d
}
