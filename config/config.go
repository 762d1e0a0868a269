// Package config loads the runtime configuration: built-in defaults, then
// an optional YAML file, then command-line overrides applied by the caller.
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

	"gopkg.in/yaml.v3"

	"github.com/cyberinferno/protohackers/lrcp"
)

// ErrUnknownService is returned by LookupService for names and numbers that
// are not served.
var ErrUnknownService = errors.New("unknown service")

// Service identifies one runnable service.
type Service struct {
	Number int
	Name   string
	Desc   string
}

// Services lists every service in problem-number order.
var Services = []Service{
	{0, "echo", "TCP echo"},
	{1, "primetime", "JSON prime number oracle"},
	{2, "means", "binary price store with mean queries"},
	{3, "chat", "line based chat room"},
	{4, "kvdb", "UDP key-value database"},
	{5, "proxy", "chat proxy rewriting Boguscoin addresses"},
	{7, "lrcp", "line reversal over LRCP"},
	{8, "isl", "obfuscated toy priority service"},
	{9, "jobs", "job centre"},
	{10, "vcs", "versioned file store"},
}

// LookupService resolves a service by name or problem number.
func LookupService(arg string) (Service, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	n, numErr := strconv.Atoi(arg)
	for _, s := range Services {
		if s.Name == arg || (numErr == nil && s.Number == n) {
			return s, nil
		}
	}

	return Service{}, fmt.Errorf("%w: %q", ErrUnknownService, arg)
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

type MetricsConfig struct {
	// Addr is the HTTP listen address for /metrics; empty disables it.
	Addr string `yaml:"addr"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PrimeTimeConfig struct {
	// Cache is none, memory or redis.
	Cache    string        `yaml:"cache"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type DatabaseConfig struct {
	// Backend is memory or redis.
	Backend string `yaml:"backend"`
	Version string `yaml:"version"`
}

type ProxyConfig struct {
	Upstream      string        `yaml:"upstream"`
	TargetAddress string        `yaml:"target_address"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	MaxDialRetry  int           `yaml:"max_dial_retry"`
}

type StorageConfig struct {
	// MaxFileSize bounds a single PUT body in bytes.
	MaxFileSize int `yaml:"max_file_size"`
}

// Config is the whole runtime configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Redis     RedisConfig     `yaml:"redis"`
	PrimeTime PrimeTimeConfig `yaml:"primetime"`
	Database  DatabaseConfig  `yaml:"database"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	LRCP      lrcp.Config     `yaml:"lrcp"`
	Storage   StorageConfig   `yaml:"storage"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen: "0.0.0.0:1200",
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		PrimeTime: PrimeTimeConfig{
			Cache:    "memory",
			CacheTTL: time.Hour,
		},
		Database: DatabaseConfig{
			Backend: "memory",
			Version: "Unusual Database Program v0.1",
		},
		Proxy: ProxyConfig{
			Upstream:      "chat.protohackers.com:16963",
			TargetAddress: "7YWHMfk9JZe0LM0g1ZauHuiSxhI",
			DialTimeout:   10 * time.Second,
			MaxDialRetry:  3,
		},
		LRCP: lrcp.DefaultConfig(),
		Storage: StorageConfig{
			MaxFileSize: 1 << 20,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Decode overlays YAML data onto cfg.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("config: listen must be set")
	}

	switch c.PrimeTime.Cache {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("config: primetime.cache must be none, memory or redis, got %q", c.PrimeTime.Cache)
	}
	if c.PrimeTime.CacheTTL < 0 {
		return errors.New("config: primetime.cache_ttl must not be negative")
	}

	switch c.Database.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: database.backend must be memory or redis, got %q", c.Database.Backend)
	}

	if c.Proxy.Upstream == "" {
		return errors.New("config: proxy.upstream must be set")
	}
	if c.Proxy.DialTimeout <= 0 {
		return errors.New("config: proxy.dial_timeout must be positive")
	}
	if c.Proxy.MaxDialRetry < 0 {
		return errors.New("config: proxy.max_dial_retry must not be negative")
	}

	if c.Storage.MaxFileSize <= 0 {
		return errors.New("config: storage.max_file_size must be positive")
	}

	if err := c.LRCP.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// UsesRedis reports whether the named service needs a Redis client.
func (c Config) UsesRedis(service string) bool {
	switch service {
	case "primetime":
		return c.PrimeTime.Cache == "redis"
	case "kvdb":
		return c.Database.Backend == "redis"
	default:
		return false
	}
}
