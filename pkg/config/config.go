// Package config loads the YAML description of a runtime: which platform to
// run on, how the container behaves, which agents to create, and how logging
// and observability are set up.
//
//	platform:
//	  type: discrete
//	  time_offset: 1h
//	container:
//	  name: plant
//	  autoclone: true
//	agents:
//	  - name: boiler
//	    type: thermostat
//	    services: [heating]
//	    params:
//	      period: 5s
//	logging:
//	  level: debug
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/agentrt/internal/logging"
)

// Platform types
const (
	PlatformRealTime = "realtime"
	PlatformDiscrete = "discrete"
)

// Environment overrides applied by LoadConfig
const (
	EnvPlatform = "AGENTRT_PLATFORM"
	EnvLogLevel = "AGENTRT_LOG_LEVEL"
)

// Config represents the runtime configuration
type Config struct {
	Platform      PlatformConfig      `yaml:"platform"`
	Container     ContainerConfig     `yaml:"container"`
	Agents        []AgentConfig       `yaml:"agents"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
	Relay         RelayConfig         `yaml:"relay"`
}

// PlatformConfig selects and tunes the platform
type PlatformConfig struct {
	// Type is "realtime" or "discrete".
	// Default: realtime
	Type string `yaml:"type"`

	// Speed throttles a discrete platform to Speed simulated seconds per
	// real second. 0 runs as fast as possible.
	Speed float64 `yaml:"speed,omitempty"`

	// TimeOffset shifts the platform clock.
	TimeOffset Duration `yaml:"time_offset,omitempty"`

	// RunFor shuts the runtime down after this much platform time. 0 runs
	// until interrupted (or, for a discrete platform, until no events remain).
	RunFor Duration `yaml:"run_for,omitempty"`
}

// ContainerConfig configures the agent container
type ContainerConfig struct {
	// Name defaults to "main"
	Name string `yaml:"name"`

	// AutoClone deep copies each message before it is queued at a recipient
	AutoClone bool `yaml:"autoclone,omitempty"`

	// QueueSize is the default agent queue capacity. 0 means unbounded.
	// Default: 256
	QueueSize *int `yaml:"queue_size,omitempty"`
}

// AgentConfig describes one agent to create at startup
type AgentConfig struct {
	Name string `yaml:"name"`

	// Type selects the registered factory that builds the agent
	Type string `yaml:"type"`

	// QueueSize overrides the container default. 0 means unbounded.
	QueueSize *int `yaml:"queue_size,omitempty"`

	// Seed fixes the agent's random source
	Seed *uint64 `yaml:"seed,omitempty"`

	// Services are registered with the container directory before init
	Services []string `yaml:"services,omitempty"`

	// Topics are subscribed before init
	Topics []string `yaml:"topics,omitempty"`

	// Params are passed to the agent factory
	Params map[string]any `yaml:"params,omitempty"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is "text" or "json".
	// Default: text
	Format string `yaml:"format"`

	NoColor bool `yaml:"no_color,omitempty"`
}

// ObservabilityConfig configures metrics and tracing
type ObservabilityConfig struct {
	// MetricsPort serves /metrics and /health when non-zero
	MetricsPort int `yaml:"metrics_port,omitempty"`

	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OpenTelemetry span export
type TracingConfig struct {
	// Exporter is "none", "stdout" or "otlp".
	// Default: none
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP HTTP endpoint
	Endpoint string `yaml:"endpoint,omitempty"`

	// ServiceName defaults to "agentrt"
	ServiceName string `yaml:"service_name"`
}

// RelayConfig connects the container to containers in other processes
type RelayConfig struct {
	// Type is "none" or "redis".
	// Default: none
	Type string `yaml:"type"`

	// Addr is the Redis server address (host:port)
	Addr string `yaml:"addr,omitempty"`

	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// Prefix namespaces the keys and channels of one deployment
	Prefix string `yaml:"prefix,omitempty"`

	// SyncInterval is how often the local directory is republished
	SyncInterval Duration `yaml:"sync_interval,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("1m30s")
type Duration struct{ time.Duration }

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a configuration with every default applied and no agents
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads, completes and validates configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path) // #nosec G304 - path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var cfg Config
	dec := &decoder{limits: DefaultLimits()}
	if err := dec.decodeReader(f, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

// Parse completes and validates configuration from YAML data
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := &decoder{limits: DefaultLimits()}
	if err := dec.decode(data, &cfg); err != nil {
		return nil, err
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPlatform); v != "" {
		c.Platform.Type = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Platform.Type == "" {
		c.Platform.Type = PlatformRealTime
	}
	c.Platform.Type = strings.ToLower(c.Platform.Type)
	if c.Container.Name == "" {
		c.Container.Name = "main"
	}
	if c.Container.QueueSize == nil {
		n := 256
		c.Container.QueueSize = &n
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Observability.Tracing.Exporter == "" {
		c.Observability.Tracing.Exporter = "none"
	}
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = "agentrt"
	}
	if c.Relay.Type == "" {
		c.Relay.Type = "none"
	}
}

// Validate checks the configuration for errors, reporting all of them
func (c *Config) Validate() error {
	var errs []error

	switch c.Platform.Type {
	case PlatformRealTime:
		if c.Platform.Speed != 0 {
			errs = append(errs, errors.New("platform.speed only applies to the discrete platform"))
		}
	case PlatformDiscrete:
		if c.Platform.Speed < 0 {
			errs = append(errs, fmt.Errorf("platform.speed must not be negative, got %g", c.Platform.Speed))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown platform type %q", c.Platform.Type))
	}
	if c.Platform.RunFor.Duration < 0 {
		errs = append(errs, errors.New("platform.run_for must not be negative"))
	}
	if c.Container.QueueSize != nil && *c.Container.QueueSize < 0 {
		errs = append(errs, errors.New("container.queue_size must not be negative"))
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("agents[%d]: name is required", i))
		case seen[a.Name]:
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name))
		}
		seen[a.Name] = true
		if a.Type == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: type is required", i))
		}
		if a.QueueSize != nil && *a.QueueSize < 0 {
			errs = append(errs, fmt.Errorf("agents[%d]: queue_size must not be negative", i))
		}
		for _, s := range a.Services {
			if s == "" {
				errs = append(errs, fmt.Errorf("agents[%d]: empty service name", i))
			}
		}
		for _, t := range a.Topics {
			if t == "" {
				errs = append(errs, fmt.Errorf("agents[%d]: empty topic name", i))
			}
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}

	if p := c.Observability.MetricsPort; p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("observability.metrics_port out of range: %d", p))
	}
	switch c.Observability.Tracing.Exporter {
	case "", "none", "stdout":
	case "otlp":
		if c.Observability.Tracing.Endpoint == "" {
			errs = append(errs, errors.New("observability.tracing.endpoint is required for the otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tracing exporter %q", c.Observability.Tracing.Exporter))
	}

	switch c.Relay.Type {
	case "", "none":
	case "redis":
		if c.Relay.Addr == "" {
			errs = append(errs, errors.New("relay.addr is required for the redis relay"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown relay type %q", c.Relay.Type))
	}

	return errors.Join(errs...)
}

// Param returns the raw parameter value for key
func (a *AgentConfig) Param(key string) (any, bool) {
	v, ok := a.Params[key]
	return v, ok
}

// GetString returns a string parameter or def
func (a *AgentConfig) GetString(key, def string) string {
	if v, ok := a.Params[key].(string); ok {
		return v
	}
	return def
}

// GetInt returns an integer parameter or def
func (a *AgentConfig) GetInt(key string, def int) int {
	if v, ok := a.Params[key].(int); ok {
		return v
	}
	return def
}

// GetDuration returns a duration parameter or def. Durations are written as
// Go duration strings.
func (a *AgentConfig) GetDuration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := a.Params[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("param %q: want duration string, got %T", key, raw)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return d, nil
}

// UnmarshalParam decodes the parameter key into v. A missing key leaves v
// untouched.
func (a *AgentConfig) UnmarshalParam(key string, v any) error {
	raw, exists := a.Params[key]
	if !exists {
		return nil
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal param %q: %w", key, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal param %q: %w", key, err)
	}
	return nil
}
