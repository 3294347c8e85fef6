package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the full feedwatch configuration.
type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Redis   RedisConfig   `toml:"redis"`
	Feed    FeedConfig    `toml:"feed"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// GatewayConfig configures the KIS gateway client.
type GatewayConfig struct {
	BaseURL   string `toml:"base_url"`
	UserAgent string `toml:"user_agent"`

	// AppKey and AppSecret are the KIS app credentials. Prefer the
	// KIS_APP_KEY and KIS_APP_SECRET environment variables over
	// writing secrets into the config file.
	AppKey    string `toml:"app_key"`
	AppSecret string `toml:"app_secret"`

	AccountID      string `toml:"account_id"`
	MaxConcurrency int    `toml:"max_concurrency"`
}

// RedisConfig configures the Redis connection backing cache and quota state.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// FeedConfig configures the feed controller.
type FeedConfig struct {
	PageSize int `toml:"page_size"`

	// Prefetch warms the remaining listing pages in the background
	// after the first page arrives.
	Prefetch bool `toml:"prefetch"`
}

// LogConfig configures structured logging. The TUI owns the terminal, so
// logs always go to a file under Dir.
type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
	Dir    string `toml:"dir"`
}

// MetricsConfig configures the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

const (
	defaultConfigPath = "~/.config/feedwatch/config.toml"
	defaultLogDir     = "~/.local/share/feedwatch/logs"
	defaultBaseURL    = "https://openapi.koreainvestment.com:9443"
	defaultUserAgent  = "feedwatch/0.1.0"
	defaultRedisAddr  = "localhost:6379"
	defaultListen     = ":9188"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			BaseURL:        defaultBaseURL,
			UserAgent:      defaultUserAgent,
			MaxConcurrency: 5,
		},
		Redis: RedisConfig{
			Addr: defaultRedisAddr,
		},
		Feed: FeedConfig{
			PageSize: 20,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   defaultLogDir,
		},
		Metrics: MetricsConfig{
			Listen: defaultListen,
		},
	}
}

// Load locates and parses the feedwatch config, falling back to defaults
// when the file is missing. Environment overrides apply last.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return finish(cfg)
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(bytes, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	return finish(cfg)
}

// finish normalizes, applies environment overrides, and validates.
func finish(cfg Config) (Config, error) {
	cfg.Gateway.BaseURL = fallback(cfg.Gateway.BaseURL, defaultBaseURL)
	cfg.Gateway.UserAgent = fallback(cfg.Gateway.UserAgent, defaultUserAgent)
	cfg.Redis.Addr = fallback(cfg.Redis.Addr, defaultRedisAddr)
	cfg.Log.Level = fallback(cfg.Log.Level, "info")
	cfg.Log.Dir = fallback(cfg.Log.Dir, defaultLogDir)
	cfg.Metrics.Listen = fallback(cfg.Metrics.Listen, defaultListen)

	applyEnv(&cfg)

	cfg.Log.Dir = mustExpand(cfg.Log.Dir)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment. Credentials in
// particular normally arrive this way.
func applyEnv(cfg *Config) {
	setIfPresent(&cfg.Gateway.BaseURL, "KIS_BASE_URL")
	setIfPresent(&cfg.Gateway.UserAgent, "FEEDWATCH_USER_AGENT")
	setIfPresent(&cfg.Gateway.AppKey, "KIS_APP_KEY")
	setIfPresent(&cfg.Gateway.AppSecret, "KIS_APP_SECRET")
	setIfPresent(&cfg.Gateway.AccountID, "KIS_ACCOUNT_ID")
	setIfPresent(&cfg.Redis.Addr, "FEEDWATCH_REDIS_ADDR")
	setIfPresent(&cfg.Log.Level, "FEEDWATCH_LOG_LEVEL")
}

func setIfPresent(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func (c Config) validate() error {
	if c.Gateway.UserAgent == "" {
		return fmt.Errorf("gateway.user_agent is required")
	}
	if c.Feed.PageSize < 1 {
		return fmt.Errorf("feed.page_size must be >= 1 (got %d)", c.Feed.PageSize)
	}
	if c.Gateway.MaxConcurrency < 1 {
		return fmt.Errorf("gateway.max_concurrency must be >= 1 (got %d)", c.Gateway.MaxConcurrency)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}

// LogFilePath returns the path of the feedwatch log file.
func (c Config) LogFilePath() string {
	if strings.TrimSpace(c.Log.Dir) == "" {
		return mustExpand(defaultLogDir + "/feedwatch.log")
	}
	return filepath.Join(c.Log.Dir, "feedwatch.log")
}

func fallback(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
