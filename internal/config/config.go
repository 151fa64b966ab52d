// Package config loads the service configuration from defaults, an optional
// YAML file and WEBSEARCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FranksOps/websearch/internal/fingerprint"
)

// EnvPrefix prefixes every environment override, e.g. WEBSEARCH_SERVER_ADDR.
const EnvPrefix = "WEBSEARCH"

// Strategy names accepted in search.strategies.
const (
	StrategyDuckDuckGo = "duckduckgo"
	StrategyGoogle     = "google"
)

// Transports accepted in server.transport.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Search     SearchConfig     `mapstructure:"search"`
	DuckDuckGo DuckDuckGoConfig `mapstructure:"duckduckgo"`
	Google     GoogleConfig     `mapstructure:"google"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Transport       string        `mapstructure:"transport"`
	Addr            string        `mapstructure:"addr"`
	Path            string        `mapstructure:"path"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SearchConfig struct {
	DefaultResults  int           `mapstructure:"default_results"`
	MaxResults      int           `mapstructure:"max_results"`
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`
	// Strategies is the ordered chain before the static fallback.
	Strategies     []string `mapstructure:"strategies"`
	StaticFallback bool     `mapstructure:"static_fallback"`
}

type DuckDuckGoConfig struct {
	URL    string `mapstructure:"url"`
	Region string `mapstructure:"region"`
}

type GoogleConfig struct {
	URL           string        `mapstructure:"url"`
	DelayMin      time.Duration `mapstructure:"delay_min"`
	DelayMax      time.Duration `mapstructure:"delay_max"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	RobotsTTL     time.Duration `mapstructure:"robots_ttl"`
}

type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	UserAgents        []string      `mapstructure:"user_agents"`
	Proxies           []string      `mapstructure:"proxies"`
	ProxyFile         string        `mapstructure:"proxy_file"`
	ProxyMaxFailures  int           `mapstructure:"proxy_max_failures"`
	ProxyCooldown     time.Duration `mapstructure:"proxy_cooldown"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
}

type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Interval    time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel parses Level; unknown values were rejected by Validate.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", TransportHTTP)
	v.SetDefault("server.addr", ":8001")
	v.SetDefault("server.path", "/mcp")
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("search.default_results", 10)
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.strategy_timeout", 15*time.Second)
	v.SetDefault("search.strategies", []string{StrategyDuckDuckGo, StrategyGoogle})
	v.SetDefault("search.static_fallback", true)

	v.SetDefault("duckduckgo.url", "https://html.duckduckgo.com/html/")
	v.SetDefault("duckduckgo.region", "wt-wt")

	v.SetDefault("google.url", "https://www.google.com")
	v.SetDefault("google.delay_min", 100*time.Millisecond)
	v.SetDefault("google.delay_max", 300*time.Millisecond)
	v.SetDefault("google.respect_robots", false)
	v.SetDefault("google.robots_ttl", time.Hour)

	v.SetDefault("fetch.timeout", 20*time.Second)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.fingerprint", string(fingerprint.ProfileChrome))
	v.SetDefault("fetch.user_agents", []string{})
	v.SetDefault("fetch.proxies", []string{})
	v.SetDefault("fetch.proxy_file", "")
	v.SetDefault("fetch.proxy_max_failures", 3)
	v.SetDefault("fetch.proxy_cooldown", 5*time.Minute)
	v.SetDefault("fetch.requests_per_second", 0.0)
	v.SetDefault("fetch.jitter", 0.0)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.interval", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. An explicit path must exist; otherwise
// ./websearch.yaml is read when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else {
		v.SetConfigName("websearch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: reading websearch.yaml: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Server.Transport = strings.ToLower(strings.TrimSpace(c.Server.Transport))
	for i, s := range c.Search.Strategies {
		c.Search.Strategies[i] = strings.ToLower(strings.TrimSpace(s))
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Transport {
	case TransportHTTP, TransportStdio:
	default:
		errs = append(errs, fmt.Errorf("server.transport %q must be %q or %q", c.Server.Transport, TransportHTTP, TransportStdio))
	}
	if c.Server.Transport == TransportHTTP && c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required for the http transport"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path %q must start with /", c.Server.Path))
	}

	if c.Search.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults))
	}
	if c.Search.DefaultResults <= 0 {
		errs = append(errs, fmt.Errorf("search.default_results must be positive, got %d", c.Search.DefaultResults))
	}
	if c.Search.StrategyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("search.strategy_timeout must be positive, got %s", c.Search.StrategyTimeout))
	}
	if len(c.Search.Strategies) == 0 && !c.Search.StaticFallback {
		errs = append(errs, errors.New("search.strategies is empty and static_fallback is disabled"))
	}
	seen := make(map[string]bool)
	for _, s := range c.Search.Strategies {
		if !slices.Contains([]string{StrategyDuckDuckGo, StrategyGoogle}, s) {
			errs = append(errs, fmt.Errorf("search.strategies: unknown strategy %q", s))
		}
		if seen[s] {
			errs = append(errs, fmt.Errorf("search.strategies: %q listed twice", s))
		}
		seen[s] = true
	}

	if c.Google.DelayMin < 0 || c.Google.DelayMin > c.Google.DelayMax {
		errs = append(errs, fmt.Errorf("google.delay_min %s must be between 0 and delay_max %s", c.Google.DelayMin, c.Google.DelayMax))
	}

	if _, err := fingerprint.ParseProfile(c.Fetch.Fingerprint); err != nil {
		errs = append(errs, fmt.Errorf("fetch.fingerprint: %w", err))
	}
	if c.Fetch.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("fetch.requests_per_second must not be negative, got %v", c.Fetch.RequestsPerSecond))
	}
	if c.Fetch.Jitter < 0 || c.Fetch.Jitter > 1 {
		errs = append(errs, fmt.Errorf("fetch.jitter must be within [0, 1], got %v", c.Fetch.Jitter))
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level %q: %w", c.Log.Level, err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
