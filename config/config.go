package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/k8s"
)

// EnvPrefix is prepended to every environment override, e.g.
// KAOS_UI_REFRESH_INTERVAL.
const EnvPrefix = "KAOS_UI"

// Config holds the complete application configuration
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	Refresh    RefreshConfig    `mapstructure:"refresh"`
	Server     ServerConfig     `mapstructure:"server"`
	Proxy      ProxyConfig      `mapstructure:"proxy"`
	Demo       DemoConfig       `mapstructure:"demo"`
	LogLevel   string           `mapstructure:"log_level"`
}

// ConnectionConfig describes the cluster to connect to on startup. An empty
// Endpoint means the kubeconfig is used.
type ConnectionConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	Namespace    string `mapstructure:"namespace"`
	Group        string `mapstructure:"group"`
	Version      string `mapstructure:"version"`
	Insecure     bool   `mapstructure:"insecure"`
	BypassHeader bool   `mapstructure:"bypass_header"`
}

// RefreshConfig controls polling
type RefreshConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	QPS              float32       `mapstructure:"qps"`
	Burst            int           `mapstructure:"burst"`
}

// ServerConfig holds the JSON API settings
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ProxyConfig holds the CORS proxy and tunnel settings
type ProxyConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	NgrokAuthToken string   `mapstructure:"ngrok_auth_token"`
	NgrokDomain    string   `mapstructure:"ngrok_domain"`
}

type DemoConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var logLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Namespace:    k8s.DefaultNamespace,
			Group:        v1alpha1.GroupVersion.Group,
			Version:      v1alpha1.GroupVersion.Version,
			BypassHeader: true,
		},
		Refresh: RefreshConfig{
			Interval:         10 * time.Second,
			RequestTimeout:   15 * time.Second,
			FailureThreshold: 3,
			QPS:              k8s.DefaultQPS,
			Burst:            k8s.DefaultBurst,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Proxy: ProxyConfig{
			Addr:           ":8001",
			AllowedOrigins: []string{"*"},
		},
		LogLevel: "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Connection.Group == "" || c.Connection.Version == "" {
		return fmt.Errorf("connection.group and connection.version must be set, got %q/%q", c.Connection.Group, c.Connection.Version)
	}
	if c.Connection.Endpoint != "" {
		if _, err := k8s.ParseEndpoint(c.Connection.Endpoint); err != nil {
			return fmt.Errorf("invalid connection.endpoint: %w", err)
		}
	}

	if c.Refresh.Interval < time.Second {
		return fmt.Errorf("refresh.interval must be >= 1s, got %v", c.Refresh.Interval)
	}
	if c.Refresh.RequestTimeout <= 0 {
		return fmt.Errorf("refresh.request_timeout must be > 0, got %v", c.Refresh.RequestTimeout)
	}
	if c.Refresh.FailureThreshold < 1 {
		return fmt.Errorf("refresh.failure_threshold must be >= 1, got %d", c.Refresh.FailureThreshold)
	}
	if c.Refresh.QPS <= 0 || c.Refresh.Burst < 1 {
		return fmt.Errorf("refresh.qps and refresh.burst must be positive, got %v/%d", c.Refresh.QPS, c.Refresh.Burst)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Proxy.Addr == "" {
		return fmt.Errorf("proxy.addr must not be empty")
	}

	if !validLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level: %s (must be one of %s)", c.LogLevel, strings.Join(logLevels, ", "))
	}
	return nil
}

func validLogLevel(level string) bool {
	for _, l := range logLevels {
		if level == l {
			return true
		}
	}
	return false
}

// GroupVersion is the API group and version of the custom resources.
func (c ConnectionConfig) GroupVersion() schema.GroupVersion {
	return schema.GroupVersion{Group: c.Group, Version: c.Version}
}

// ClientOptions builds the connection request for k8s.New. kubeconfig and
// context are only used when no endpoint is configured.
func (c *Config) ClientOptions(kubeconfig, context string) k8s.Options {
	opts := k8s.Options{
		Endpoint:     c.Connection.Endpoint,
		Insecure:     c.Connection.Insecure,
		Namespace:    c.Connection.Namespace,
		GroupVersion: c.Connection.GroupVersion(),
		BypassHeader: c.Connection.BypassHeader,
		Timeout:      c.Refresh.RequestTimeout,
		QPS:          c.Refresh.QPS,
		Burst:        c.Refresh.Burst,
	}
	if opts.Endpoint == "" {
		opts.Kubeconfig = kubeconfig
		opts.Context = context
	}
	return opts
}

// SetDefaults registers every key of DefaultConfig on v so that environment
// overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("connection.endpoint", d.Connection.Endpoint)
	v.SetDefault("connection.namespace", d.Connection.Namespace)
	v.SetDefault("connection.group", d.Connection.Group)
	v.SetDefault("connection.version", d.Connection.Version)
	v.SetDefault("connection.insecure", d.Connection.Insecure)
	v.SetDefault("connection.bypass_header", d.Connection.BypassHeader)
	v.SetDefault("refresh.interval", d.Refresh.Interval)
	v.SetDefault("refresh.request_timeout", d.Refresh.RequestTimeout)
	v.SetDefault("refresh.failure_threshold", d.Refresh.FailureThreshold)
	v.SetDefault("refresh.qps", d.Refresh.QPS)
	v.SetDefault("refresh.burst", d.Refresh.Burst)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("proxy.addr", d.Proxy.Addr)
	v.SetDefault("proxy.allowed_origins", d.Proxy.AllowedOrigins)
	v.SetDefault("proxy.ngrok_auth_token", d.Proxy.NgrokAuthToken)
	v.SetDefault("proxy.ngrok_domain", d.Proxy.NgrokDomain)
	v.SetDefault("demo.enabled", d.Demo.Enabled)
	v.SetDefault("log_level", d.LogLevel)
}

// Load reads the configuration from defaults, an optional file and
// KAOS_UI_* environment variables, in increasing priority. Flags bound to v
// take precedence over all of them. With an empty path the file kaos-ui.yaml
// is looked up in $HOME/.kaos-ui and the working directory, and a missing
// file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kaos-ui")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.kaos-ui")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
