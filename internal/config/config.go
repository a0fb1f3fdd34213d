// Package config handles relay configuration: environment secrets, CLI flags
// and an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Environment variable names holding the relay secrets.
const (
	EnvOpenWeatherKey = "OPENWEATHER_API_KEY"
	EnvNewsKey        = "NEWS_API_KEY"
	EnvRelayToken     = "NOVA_RELAY_TOKEN"
)

const placeholderKey = "YOUR_API_KEY_HERE"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/nova-relay/config.toml",
	"configs/config.toml",
}

// reservedRoutes are relay routes the metrics path must not shadow.
var reservedRoutes = []string{"/health", "/status", "/weather", "/forecast", "/news"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config         string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host           string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port           int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	OpenWeatherKey string `kong:"help='OpenWeatherMap API key (overrides config).',env='OPENWEATHER_API_KEY'"`
	NewsKey        string `kong:"help='NewsAPI key (overrides config).',env='NEWS_API_KEY'"`
	RelayToken     string `kong:"help='Shared token clients must send in X-Nova-Key (overrides config).',env='NOVA_RELAY_TOKEN'"`
	RequireKeys    bool   `kong:"help='Refuse to start unless both upstream keys are set.',env='NOVA_REQUIRE_KEYS'"`
	LogLevel       string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`

	Version kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level relay configuration. It is built once at startup
// and never mutated afterwards.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Relay       RelayConfig       `toml:"relay"`
	OpenWeather OpenWeatherConfig `toml:"openweather"`
	News        NewsConfig        `toml:"news"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	Log         LogConfig         `toml:"log"`
	Metrics     MetricsConfig     `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"` // 0 means "use default" (8000)
	BodyMaxBytes int64  `toml:"body_max_bytes"`
}

// RelayConfig holds the access gate settings.
type RelayConfig struct {
	// Token is the shared secret clients present in X-Nova-Key.
	// Empty disables the gate.
	Token       string `toml:"token"`
	RequireKeys bool   `toml:"require_keys"`
}

// OpenWeatherConfig holds the weather provider credentials and endpoints.
type OpenWeatherConfig struct {
	APIKey                 string `toml:"api_key"`
	BaseURL                string `toml:"base_url"`
	WeatherTimeoutSeconds  int    `toml:"weather_timeout_seconds"`
	ForecastTimeoutSeconds int    `toml:"forecast_timeout_seconds"`
}

// NewsConfig holds the news provider credentials and endpoints.
type NewsConfig struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// UpstreamConfig holds settings shared by all upstream connections.
type UpstreamConfig struct {
	IdleConnections  int   `toml:"idle_connections"`
	MaxResponseBytes int64 `toml:"max_response_bytes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoadEnvFile seeds the process environment from a dotenv file. Variables
// already present in the environment are left untouched. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load env file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from the optional TOML file and CLI/env
// overrides. When no explicit path is given (via --config or CONFIG_PATH), it
// searches /etc/nova-relay/config.toml then configs/config.toml, and falls
// back to built-in defaults if neither exists.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	cfg.trimSecrets()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.OpenWeatherKey != "" {
		c.OpenWeather.APIKey = cli.OpenWeatherKey
	}
	if cli.NewsKey != "" {
		c.News.APIKey = cli.NewsKey
	}
	if cli.RelayToken != "" {
		c.Relay.Token = cli.RelayToken
	}
	if cli.RequireKeys {
		c.Relay.RequireKeys = true
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// trimSecrets strips surrounding whitespace that commonly sneaks in through
// hosting dashboards and .env files.
func (c *Config) trimSecrets() {
	c.OpenWeather.APIKey = strings.TrimSpace(c.OpenWeather.APIKey)
	c.News.APIKey = strings.TrimSpace(c.News.APIKey)
	c.Relay.Token = strings.TrimSpace(c.Relay.Token)
}

func (c *Config) validate() error {
	for name, key := range map[string]string{
		"openweather.api_key": c.OpenWeather.APIKey,
		"news.api_key":        c.News.APIKey,
	} {
		if key == placeholderKey {
			return fmt.Errorf("%s contains placeholder value; set a real key or leave it empty", name)
		}
	}

	if c.Relay.RequireKeys {
		if c.OpenWeather.APIKey == "" {
			return fmt.Errorf("%s is required when relay.require_keys is set", EnvOpenWeatherKey)
		}
		if c.News.APIKey == "" {
			return fmt.Errorf("%s is required when relay.require_keys is set", EnvNewsKey)
		}
	}

	// Upstream URLs carry the secrets, so they must be HTTPS.
	if err := validateHTTPS("openweather.base_url", c.OpenWeather.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPS("news.base_url", c.News.BaseURL); err != nil {
		return err
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	for name, v := range map[string]int{
		"openweather.weather_timeout_seconds":  c.OpenWeather.WeatherTimeoutSeconds,
		"openweather.forecast_timeout_seconds": c.OpenWeather.ForecastTimeoutSeconds,
		"news.timeout_seconds":                 c.News.TimeoutSeconds,
		"upstream.idle_connections":            c.Upstream.IdleConnections,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", name, v)
		}
	}
	if c.Upstream.MaxResponseBytes < 0 {
		return fmt.Errorf("upstream.max_response_bytes must be non-negative; got %d", c.Upstream.MaxResponseBytes)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func validateHTTPS(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute HTTPS URL; got %q", name, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields. TOML cannot distinguish an explicit 0
// from an omitted key, so zero always means "unset".
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1 << 20
	}
	if c.OpenWeather.BaseURL == "" {
		c.OpenWeather.BaseURL = "https://api.openweathermap.org/data/2.5"
	}
	if c.OpenWeather.WeatherTimeoutSeconds == 0 {
		c.OpenWeather.WeatherTimeoutSeconds = 8
	}
	if c.OpenWeather.ForecastTimeoutSeconds == 0 {
		c.OpenWeather.ForecastTimeoutSeconds = 12
	}
	if c.News.BaseURL == "" {
		c.News.BaseURL = "https://newsapi.org/v2"
	}
	if c.News.TimeoutSeconds == 0 {
		c.News.TimeoutSeconds = 12
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxResponseBytes == 0 {
		c.Upstream.MaxResponseBytes = 10 << 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WeatherTimeout is the per-call deadline for current weather lookups.
func (c *OpenWeatherConfig) WeatherTimeout() time.Duration {
	return time.Duration(c.WeatherTimeoutSeconds) * time.Second
}

// ForecastTimeout is the per-call deadline for forecast lookups.
func (c *OpenWeatherConfig) ForecastTimeout() time.Duration {
	return time.Duration(c.ForecastTimeoutSeconds) * time.Second
}

// Timeout is the per-call deadline for news lookups.
func (c *NewsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenWeatherConfigured reports whether the weather integration has a key.
func (c *Config) OpenWeatherConfigured() bool { return c.OpenWeather.APIKey != "" }

// NewsConfigured reports whether the news integration has a key.
func (c *Config) NewsConfigured() bool { return c.News.APIKey != "" }

// AuthEnabled reports whether clients must present the relay token.
func (c *Config) AuthEnabled() bool { return c.Relay.Token != "" }

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
