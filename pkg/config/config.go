package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	UpstreamURLEnv     = "NGROK_URL"
	UpstreamAPIKeyEnv  = "API_KEY"
	TurnstileSecretEnv = "TURNSTILE_SECRET"

	DefaultTurnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	DefaultTokenHeader        = "cf-turnstile-response"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Upstream     UpstreamConfig     `mapstructure:"upstream"`
	Turnstile    TurnstileConfig    `mapstructure:"turnstile"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	CORS         CORSConfig         `mapstructure:"cors"`
	StatusStream StatusStreamConfig `mapstructure:"status_stream"`
	Docs         DocsConfig         `mapstructure:"docs"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	BodyLimit    int           `mapstructure:"body_limit"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type UpstreamConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	APIKey         string               `mapstructure:"api_key"`
	PrintPath      string               `mapstructure:"print_path"`
	StatusPath     string               `mapstructure:"status_path"`
	PrintTimeout   time.Duration        `mapstructure:"print_timeout"`
	StatusTimeout  time.Duration        `mapstructure:"status_timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxFailures uint32        `mapstructure:"max_failures"`
}

type TurnstileConfig struct {
	Secret      string `mapstructure:"secret"`
	VerifyURL   string `mapstructure:"verify_url"`
	TokenHeader string `mapstructure:"token_header"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
	AllowMethods []string `mapstructure:"allow_methods"`
	MaxAge       string   `mapstructure:"max_age"`
}

type StatusStreamConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxConnections int           `mapstructure:"max_connections"`
}

type DocsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SpecFile string `mapstructure:"spec_file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ProxyConfig is the per-request view of the settings the proxy handlers
// depend on. Empty values are reported to the caller, not at startup.
type ProxyConfig struct {
	UpstreamURL     string
	APIKey          string
	TurnstileSecret string
	PrintPath       string
	StatusPath      string
	PrintTimeout    time.Duration
	StatusTimeout   time.Duration
	// MaxBodySize caps a print job in bytes; zero means no cap.
	MaxBodySize int64
}

func (c *Config) Proxy() ProxyConfig {
	return ProxyConfig{
		UpstreamURL:     strings.TrimRight(c.Upstream.BaseURL, "/"),
		APIKey:          c.Upstream.APIKey,
		TurnstileSecret: c.Turnstile.Secret,
		PrintPath:       c.Upstream.PrintPath,
		StatusPath:      c.Upstream.StatusPath,
		PrintTimeout:    c.Upstream.PrintTimeout,
		StatusTimeout:   c.Upstream.StatusTimeout,
		MaxBodySize:     int64(c.Server.BodyLimit),
	}
}

// Load reads config.yaml from configPath (falling back to ./config and the
// working directory) and overlays the environment. A missing file is not an
// error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaultValues(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range map[string]string{
		"upstream.base_url": UpstreamURLEnv,
		"upstream.api_key":  UpstreamAPIKeyEnv,
		"turnstile.secret":  TurnstileSecretEnv,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file config.yaml: %w", err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaultValues(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.body_limit", 8*1024*1024)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.print_path", "/print")
	v.SetDefault("upstream.status_path", "/status")
	v.SetDefault("upstream.print_timeout", "15s")
	v.SetDefault("upstream.status_timeout", "5s")
	v.SetDefault("upstream.circuit_breaker.enabled", false)
	v.SetDefault("upstream.circuit_breaker.timeout", "30s")
	v.SetDefault("upstream.circuit_breaker.max_failures", 5)

	v.SetDefault("turnstile.secret", "")
	v.SetDefault("turnstile.verify_url", DefaultTurnstileVerifyURL)
	v.SetDefault("turnstile.token_header", DefaultTokenHeader)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.limit", 1)
	v.SetDefault("rate_limit.window", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tls", false)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("cors.allow_origins", []string{"*"})
	v.SetDefault("cors.allow_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.max_age", "600")

	v.SetDefault("status_stream.interval", "10s")
	v.SetDefault("status_stream.ping_period", "30s")
	v.SetDefault("status_stream.pong_wait", "45s")
	v.SetDefault("status_stream.max_connections", 100)

	v.SetDefault("docs.enabled", true)
	v.SetDefault("docs.spec_file", "./docs/swagger.json")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/printgate.log")
}
