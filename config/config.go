package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Execution modes understood by sandbox.mode
const (
	ModeDirect = "direct"
	ModeDocker = "docker"
)

// EnvPrefix is prepended to every environment override, e.g. CODEJUDGE_SANDBOX_MODE.
const EnvPrefix = "CODEJUDGE"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Languages map[string]Language `mapstructure:"languages"`
	RateLimit RateLimitConfig     `mapstructure:"ratelimit"`
	Logging   LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport      string   `mapstructure:"transport"`
	HTTPPort       int      `mapstructure:"http_port"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// SandboxConfig holds execution engine configuration
type SandboxConfig struct {
	Mode          string  `mapstructure:"mode"`
	Runtime       string  `mapstructure:"runtime"`
	TimeoutSec    int     `mapstructure:"timeout_sec"`
	MemoryMB      int     `mapstructure:"memory_mb"`
	CPUs          float64 `mapstructure:"cpus"`
	PidsLimit     int     `mapstructure:"pids_limit"`
	TmpfsMB       int     `mapstructure:"tmpfs_mb"`
	MaxOutputKB   int     `mapstructure:"max_output_kb"`
	MaxConcurrent int     `mapstructure:"max_concurrent"`
	WorkRoot      string  `mapstructure:"work_root"`
	PreloadImages bool    `mapstructure:"preload_images"`
	ContainerUser string  `mapstructure:"container_user"`
}

// Language holds per-language overrides
type Language struct {
	Image string `mapstructure:"image"`
}

// RateLimitConfig holds admission control configuration
type RateLimitConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Capacity        int    `mapstructure:"capacity"`
	RefillTokens    int    `mapstructure:"refill_tokens"`
	RefillPeriodSec int    `mapstructure:"refill_period_sec"`
	Store           string `mapstructure:"store"`
	RedisAddr       string `mapstructure:"redis_addr"`
	RedisKeyPrefix  string `mapstructure:"redis_key_prefix"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	return Load(".", "./config")
}

// Load reads config.yaml from the first matching path, falling back to
// defaults when no file exists. Environment variables override both.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "rest")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("sandbox.mode", ModeDirect)
	v.SetDefault("sandbox.runtime", "docker")
	v.SetDefault("sandbox.timeout_sec", 10)
	v.SetDefault("sandbox.memory_mb", 128)
	v.SetDefault("sandbox.cpus", 0.5)
	v.SetDefault("sandbox.pids_limit", 50)
	v.SetDefault("sandbox.tmpfs_mb", 64)
	v.SetDefault("sandbox.max_output_kb", 1024)
	v.SetDefault("sandbox.max_concurrent", 0)
	v.SetDefault("sandbox.work_root", "")
	v.SetDefault("sandbox.preload_images", false)
	v.SetDefault("sandbox.container_user", "")

	v.SetDefault("languages.python.image", "python:3.11-slim")
	v.SetDefault("languages.javascript.image", "node:18-slim")
	v.SetDefault("languages.java.image", "eclipse-temurin:17-jdk")
	v.SetDefault("languages.cpp.image", "gcc:13")
	v.SetDefault("languages.c.image", "gcc:13")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.capacity", 10)
	v.SetDefault("ratelimit.refill_tokens", 10)
	v.SetDefault("ratelimit.refill_period_sec", 60)
	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.redis_addr", "")
	v.SetDefault("ratelimit.redis_key_prefix", "codejudge:ratelimit:")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
//
//nolint:gocyclo // flat list of independent checks
func (c *Config) validate() error {
	switch c.Server.Transport {
	case "rest", "stdio", "http":
	default:
		return fmt.Errorf("invalid server.transport: %s, must be 'rest', 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}

	switch strings.ToLower(c.Sandbox.Mode) {
	case ModeDirect, ModeDocker:
	default:
		return fmt.Errorf("invalid sandbox.mode: %s, must be '%s' or '%s'", c.Sandbox.Mode, ModeDirect, ModeDocker)
	}

	if c.Sandbox.Runtime != "docker" && c.Sandbox.Runtime != "podman" {
		return fmt.Errorf("invalid sandbox.runtime: %s, must be 'docker' or 'podman'", c.Sandbox.Runtime)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUs <= 0 {
		return fmt.Errorf("sandbox.cpus must be positive, got: %g", c.Sandbox.CPUs)
	}

	if c.Sandbox.PidsLimit <= 0 {
		return fmt.Errorf("sandbox.pids_limit must be positive, got: %d", c.Sandbox.PidsLimit)
	}

	if c.Sandbox.TmpfsMB <= 0 {
		return fmt.Errorf("sandbox.tmpfs_mb must be positive, got: %d", c.Sandbox.TmpfsMB)
	}

	if c.Sandbox.MaxOutputKB <= 0 {
		return fmt.Errorf("sandbox.max_output_kb must be positive, got: %d", c.Sandbox.MaxOutputKB)
	}

	if c.Sandbox.MaxConcurrent < 0 {
		return fmt.Errorf("sandbox.max_concurrent must not be negative, got: %d", c.Sandbox.MaxConcurrent)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillTokens <= 0 || c.RateLimit.RefillPeriodSec <= 0 {
			return fmt.Errorf("ratelimit.capacity, ratelimit.refill_tokens and ratelimit.refill_period_sec must be positive")
		}
		switch c.RateLimit.Store {
		case "memory":
		case "redis":
			if c.RateLimit.RedisAddr == "" {
				return fmt.Errorf("ratelimit.redis_addr is required when ratelimit.store is 'redis'")
			}
		default:
			return fmt.Errorf("invalid ratelimit.store: %s, must be 'memory' or 'redis'", c.RateLimit.Store)
		}
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// RefillPeriod returns the token bucket refill period as a duration
func (c *Config) RefillPeriod() time.Duration {
	return time.Duration(c.RateLimit.RefillPeriodSec) * time.Second
}

// ContainerMode reports whether the container backend is selected.
func (c *Config) ContainerMode() bool {
	return strings.EqualFold(c.Sandbox.Mode, ModeDocker)
}

// Image returns the configured image for a language, or "" when none is set.
func (c *Config) Image(language string) string {
	for id, lang := range c.Languages {
		if strings.EqualFold(id, language) {
			return lang.Image
		}
	}
	return ""
}
