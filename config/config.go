// Package config loads server configuration from a YAML file with
// environment overrides under the RESTMUX_ prefix.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "restmux"

// ErrInvalidConfig is wrapped by every Validate error.
var ErrInvalidConfig = errors.New("config: invalid")

// Config is the server configuration.
type Config struct {
	Listen         string `yaml:"listen" envconfig:"listen"`
	ChunkSize      int    `yaml:"chunk_size" envconfig:"chunk_size"`
	ReadBufferSize int    `yaml:"read_buffer_size" envconfig:"read_buffer_size"`
	// Workers bounds concurrent handlers. Zero runs one goroutine per request.
	Workers int `yaml:"workers" envconfig:"workers"`
	// MaxConnections caps accepted connections. Zero is unlimited.
	MaxConnections int  `yaml:"max_connections" envconfig:"max_connections"`
	H2C            bool `yaml:"h2c" envconfig:"h2c"`
	// MetricsPath serves Prometheus metrics. Empty disables it.
	MetricsPath string `yaml:"metrics_path" envconfig:"metrics_path"`

	LogLevel  string `yaml:"log_level" envconfig:"log_level"`
	LogFormat string `yaml:"log_format" envconfig:"log_format"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" envconfig:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" envconfig:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" envconfig:"shutdown_timeout"`
	// HandlerTimeout enables the timeout middleware when positive.
	HandlerTimeout time.Duration `yaml:"handler_timeout" envconfig:"handler_timeout"`

	ProxyHeaders ProxyHeadersConfig `yaml:"proxy_headers" envconfig:"proxy_headers"`
	CORS         CORSConfig         `yaml:"cors" envconfig:"cors"`
	Compression  CompressionConfig  `yaml:"compression" envconfig:"compression"`

	Routes []EndpointConfig `yaml:"endpoints" ignored:"true"`
}

// ProxyHeadersConfig enables trusting X-Forwarded-* headers from proxies.
type ProxyHeadersConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"enabled"`
	// TrustedProxies are addresses or CIDR prefixes. Empty trusts the
	// private and loopback ranges.
	TrustedProxies  []string `yaml:"trusted_proxies" envconfig:"trusted_proxies"`
	EnableForwarded bool     `yaml:"enable_forwarded" envconfig:"enable_forwarded"`
}

// CORSConfig enables cross-origin access to the routed endpoints.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled" envconfig:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins" envconfig:"allowed_origins"`
	AllowedHeaders   []string `yaml:"allowed_headers" envconfig:"allowed_headers"`
	ExposeHeaders    []string `yaml:"expose_headers" envconfig:"expose_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" envconfig:"allow_credentials"`
	// MaxAge is rounded down to whole seconds.
	MaxAge time.Duration `yaml:"max_age" envconfig:"max_age"`
}

// CompressionConfig enables gzip and deflate response encoding.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"enabled"`
	Level   int  `yaml:"level" envconfig:"level"`
	// MinLength of zero uses the 1400 byte default.
	MinLength    int      `yaml:"min_length" envconfig:"min_length"`
	ContentTypes []string `yaml:"content_types" envconfig:"content_types"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		Listen:            ":8080",
		ChunkSize:         8192,
		ReadBufferSize:    8192,
		MetricsPath:       "/metrics",
		LogLevel:          "info",
		LogFormat:         "text",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
	}
}

// ReadConfig reads the YAML file at path, applies environment overrides
// and validates the result.
func ReadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read decodes YAML from r on top of Default, then applies environment
// overrides. Unknown YAML keys are an error. An empty document yields the
// defaults.
func Read(r io.Reader) (Config, error) {
	c := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}

	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)

		if err := decoder.Decode(&c); err != nil {
			return c, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return c, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

// Validate checks sizes, limits and log settings.
func (c Config) Validate() error {
	switch {
	case c.Listen == "":
		return fmt.Errorf("%w: listen address is empty", ErrInvalidConfig)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("%w: read_buffer_size must be positive, got %d", ErrInvalidConfig, c.ReadBufferSize)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	case c.MaxConnections < 0:
		return fmt.Errorf("%w: max_connections must not be negative, got %d", ErrInvalidConfig, c.MaxConnections)
	case c.HandlerTimeout < 0:
		return fmt.Errorf("%w: handler_timeout must not be negative", ErrInvalidConfig)
	}

	if c.MetricsPath != "" && c.MetricsPath[0] != '/' {
		return fmt.Errorf("%w: metrics_path must start with /", ErrInvalidConfig)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}

	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.CORS.Enabled {
		if len(c.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("%w: cors needs allowed_origins", ErrInvalidConfig)
		}
		if c.CORS.AllowCredentials && slices.Contains(c.CORS.AllowedOrigins, "*") {
			return fmt.Errorf("%w: cors cannot allow credentials for origin *", ErrInvalidConfig)
		}
	}

	if c.Compression.Enabled && (c.Compression.Level < -2 || c.Compression.Level > 9) {
		return fmt.Errorf("%w: compression level must be between -2 and 9, got %d", ErrInvalidConfig, c.Compression.Level)
	}

	for i, e := range c.Routes {
		if e.Path == "" || e.Handler == "" {
			return fmt.Errorf("%w: endpoint %d needs path and handler", ErrInvalidConfig, i)
		}
	}

	return nil
}
