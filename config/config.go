// Package config loads postrank's process configuration from an optional
// YAML file overlaid with POSTRANK_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Checkpoint sink kinds.
const (
	SinkFile  = "file"
	SinkRedis = "redis"
	SinkNone  = "none"
)

type Config struct {
	LogLevel string   `yaml:"log_level"`
	HTTP     HTTP     `yaml:"http"`
	Cache    Cache    `yaml:"cache"`
	Search   Search   `yaml:"search"`
	Postgres Postgres `yaml:"postgres"`
	Mongo    Mongo    `yaml:"mongo"`
	Redis    Redis    `yaml:"redis"`
}

type HTTP struct {
	Address         string        `yaml:"address"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CORSOrigins enables CORS for the listed origins; empty disables it.
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type Cache struct {
	Capacity           int           `yaml:"capacity"`
	TTL                time.Duration `yaml:"ttl"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	CheckpointSink     string        `yaml:"checkpoint_sink"`
	CheckpointFile     string        `yaml:"checkpoint_file"`
}

type Search struct {
	Limit           int           `yaml:"limit"`
	LeaderboardSize int           `yaml:"leaderboard_size"`
	StoreTimeout    time.Duration `yaml:"store_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	EnrichWorkers   int           `yaml:"enrich_workers"`
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Mongo struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTP{
			Address:         ":5000",
			RateLimit:       50,
			RateBurst:       100,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: Cache{
			Capacity:           100,
			TTL:                time.Hour,
			CheckpointInterval: 10 * time.Minute,
			CheckpointSink:     SinkFile,
			CheckpointFile:     "cache_checkpoint.gob",
		},
		Search: Search{
			Limit:           50,
			LeaderboardSize: 10,
			StoreTimeout:    5 * time.Second,
			RefreshInterval: 50 * time.Minute,
			EnrichWorkers:   8,
		},
		Mongo: Mongo{Database: "TwitterData", Collection: "tweets"},
		Redis: Redis{Addr: "127.0.0.1:6379", Key: "postrank:cache:snapshot"},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting the process cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Cache.Capacity <= 0:
		return fmt.Errorf("%w: cache.capacity must be positive", ErrInvalidConfig)
	case c.Cache.TTL <= 0:
		return fmt.Errorf("%w: cache.ttl must be positive", ErrInvalidConfig)
	case c.Cache.CheckpointInterval <= 0:
		return fmt.Errorf("%w: cache.checkpoint_interval must be positive", ErrInvalidConfig)
	case c.Search.RefreshInterval <= 0 || c.Search.StoreTimeout <= 0:
		return fmt.Errorf("%w: search intervals must be positive", ErrInvalidConfig)
	case c.Search.RefreshInterval >= c.Cache.TTL:
		return fmt.Errorf("%w: search.refresh_interval (%s) must be shorter than cache.ttl (%s)",
			ErrInvalidConfig, c.Search.RefreshInterval, c.Cache.TTL)
	case c.Postgres.DSN == "":
		return fmt.Errorf("%w: postgres.dsn is required", ErrInvalidConfig)
	case c.Mongo.URI == "":
		return fmt.Errorf("%w: mongo.uri is required", ErrInvalidConfig)
	}
	switch c.Cache.CheckpointSink {
	case SinkFile:
		if c.Cache.CheckpointFile == "" {
			return fmt.Errorf("%w: cache.checkpoint_file is required for the file sink", ErrInvalidConfig)
		}
	case SinkRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr is required for the redis sink", ErrInvalidConfig)
		}
	case SinkNone:
	default:
		return fmt.Errorf("%w: unknown checkpoint sink %q", ErrInvalidConfig, c.Cache.CheckpointSink)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the gommon log level named by LogLevel.
func (c Config) Level() log.Lvl {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (log.Lvl, error) {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG, nil
	case "", "info":
		return log.INFO, nil
	case "warn":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return log.INFO, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
}

type envVar struct {
	name  string
	apply func(*Config, string) error
}

var envVars = []envVar{
	{"POSTRANK_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{"POSTRANK_HTTP_ADDRESS", func(c *Config, v string) error { c.HTTP.Address = v; return nil }},
	{"POSTRANK_HTTP_RATE_LIMIT", func(c *Config, v string) error { return setFloat(&c.HTTP.RateLimit, v) }},
	{"POSTRANK_HTTP_CORS_ORIGINS", func(c *Config, v string) error { c.HTTP.CORSOrigins = splitList(v); return nil }},
	{"POSTRANK_CACHE_CAPACITY", func(c *Config, v string) error { return setInt(&c.Cache.Capacity, v) }},
	{"POSTRANK_CACHE_TTL", func(c *Config, v string) error { return setDuration(&c.Cache.TTL, v) }},
	{"POSTRANK_CHECKPOINT_INTERVAL", func(c *Config, v string) error { return setDuration(&c.Cache.CheckpointInterval, v) }},
	{"POSTRANK_CHECKPOINT_SINK", func(c *Config, v string) error { c.Cache.CheckpointSink = v; return nil }},
	{"POSTRANK_CHECKPOINT_FILE", func(c *Config, v string) error { c.Cache.CheckpointFile = v; return nil }},
	{"POSTRANK_SEARCH_LIMIT", func(c *Config, v string) error { return setInt(&c.Search.Limit, v) }},
	{"POSTRANK_STORE_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Search.StoreTimeout, v) }},
	{"POSTRANK_REFRESH_INTERVAL", func(c *Config, v string) error { return setDuration(&c.Search.RefreshInterval, v) }},
	{"POSTRANK_POSTGRES_DSN", func(c *Config, v string) error { c.Postgres.DSN = v; return nil }},
	{"POSTRANK_MONGO_URI", func(c *Config, v string) error { c.Mongo.URI = v; return nil }},
	{"POSTRANK_MONGO_DATABASE", func(c *Config, v string) error { c.Mongo.Database = v; return nil }},
	{"POSTRANK_MONGO_COLLECTION", func(c *Config, v string) error { c.Mongo.Collection = v; return nil }},
	{"POSTRANK_REDIS_ADDR", func(c *Config, v string) error { c.Redis.Addr = v; return nil }},
	{"POSTRANK_REDIS_PASSWORD", func(c *Config, v string) error { c.Redis.Password = v; return nil }},
	{"POSTRANK_REDIS_DB", func(c *Config, v string) error { return setInt(&c.Redis.DB, v) }},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok {
			continue
		}
		if err := ev.apply(cfg, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, ev.name, err)
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
