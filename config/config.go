package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	errs "github.com/c360/turbologger/errors"
)

// Table backend constants
const (
	BackendMemory = "memory" // In-process table, lost on exit
	BackendNATS   = "nats"   // Table shared through a NATS KV bucket
)

// Config represents the complete application configuration
type Config struct {
	Table   TableConfig       `json:"table"`
	NATS    NATSConfig        `json:"nats"`
	Datalog DatalogConfig     `json:"datalog"`
	Metrics MetricsConfig     `json:"metrics"`
	Aliases map[string]string `json:"aliases,omitempty"` // alias -> canonical path
}

// TableConfig selects the table backend
type TableConfig struct {
	Backend string `json:"backend"`
	Prefix  string `json:"prefix,omitempty"` // Prepended to every topic path
}

// NATSConfig defines the NATS connection and KV bucket used by the nats backend
type NATSConfig struct {
	URLs           []string      `json:"urls"`
	Bucket         string        `json:"bucket"`
	ClientName     string        `json:"client_name,omitempty"`
	MaxReconnects  int           `json:"max_reconnects"`
	ReconnectWait  time.Duration `json:"reconnect_wait"`
	Timeout        time.Duration `json:"timeout"`
	Username       string        `json:"username,omitempty"`
	Password       string        `json:"password,omitempty"`
	Token          string        `json:"token,omitempty"`
	History        int           `json:"history"`
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// DatalogConfig controls the JSON lines data log
type DatalogConfig struct {
	Path          string        `json:"path,omitempty"` // Directory (trailing slash) or file
	Mirror        bool          `json:"mirror"`
	FlushInterval time.Duration `json:"flush_interval"`
	BufferSize    int           `json:"buffer_size"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Table: TableConfig{
			Backend: BackendMemory,
		},
		NATS: NATSConfig{
			URLs:           []string{"nats://localhost:4222"},
			Bucket:         "turbologger",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			Timeout:        5 * time.Second,
			History:        1,
			PublishTimeout: 2 * time.Second,
		},
		Datalog: DatalogConfig{
			FlushInterval: time.Second,
			BufferSize:    100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

var bucketNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks if the config is valid
func (c *Config) Validate() error {
	switch c.Table.Backend {
	case BackendMemory:
	case BackendNATS:
		if err := c.validateNATS(); err != nil {
			return fmt.Errorf("nats configuration: %w", err)
		}
	default:
		return fmt.Errorf("table.backend %q must be %q or %q", c.Table.Backend, BackendMemory, BackendNATS)
	}

	if c.Datalog.Mirror && c.Datalog.Path == "" {
		return errors.New("datalog.path is required when datalog.mirror is enabled")
	}
	if c.Datalog.BufferSize < 0 {
		return errors.New("datalog.buffer_size cannot be negative")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	for alias, path := range c.Aliases {
		if alias == "" || path == "" {
			return errors.New("aliases cannot have empty names or paths")
		}
		if alias == path {
			return fmt.Errorf("alias %q cannot name itself", alias)
		}
		if _, ok := c.Aliases[path]; ok {
			return fmt.Errorf("alias %q targets %q, which is itself an alias", alias, path)
		}
	}

	return nil
}

func (c *Config) validateNATS() error {
	if len(c.NATS.URLs) == 0 {
		return errors.New("urls are required")
	}
	for i, u := range c.NATS.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("urls[%d] is empty", i)
		}
	}
	if !bucketNamePattern.MatchString(c.NATS.Bucket) {
		return fmt.Errorf("bucket %q must be alphanumeric with dashes and underscores", c.NATS.Bucket)
	}
	if c.NATS.History < 1 || c.NATS.History > 64 {
		return fmt.Errorf("history %d must be between 1 and 64", c.NATS.History)
	}
	if c.NATS.PublishTimeout <= 0 {
		return errors.New("publish_timeout must be positive")
	}
	if c.NATS.Username != "" && c.NATS.Password == "" {
		return errors.New("password is required with username")
	}
	return nil
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  "TURBOLOGGER",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load loads defaults, every layer, then environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg, err = l.mergeFromMap(cfg, rawConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", path, err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, errs.WrapInvalid(fmt.Errorf("%w: %w", errs.ErrInvalidConfig, err), "Loader", "Load", "validate")
		}
	}
	return cfg, nil
}

// Load reads a single configuration file. An empty path yields the
// defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	l := NewLoader()
	if path != "" {
		l.AddLayer(path)
	}
	return l.Load()
}

func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}

	if err := parseDurations(rawConfig); err != nil {
		return nil, err
	}
	return rawConfig, nil
}

// mergeFromMap overlays a raw JSON layer on base
func (l *Loader) mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// durationKeys lists the duration fields per section. Files carry them as
// strings like "2s"; the structs hold nanoseconds.
var durationKeys = map[string][]string{
	"nats":    {"reconnect_wait", "timeout", "publish_timeout"},
	"datalog": {"flush_interval"},
}

func parseDurations(data map[string]any) error {
	for section, keys := range durationKeys {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	lookup := func(name string) (string, bool, error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if val == "" {
			return "", false, nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return "", false, err
		}
		return val, true, nil
	}

	overrides := []struct {
		name  string
		apply func(string) error
	}{
		{"BACKEND", func(v string) error { cfg.Table.Backend = v; return nil }},
		{"TABLE_PREFIX", func(v string) error { cfg.Table.Prefix = v; return nil }},
		{"NATS_URL", func(v string) error { cfg.NATS.URLs = strings.Split(v, ","); return nil }},
		{"NATS_BUCKET", func(v string) error { cfg.NATS.Bucket = v; return nil }},
		{"NATS_USERNAME", func(v string) error { cfg.NATS.Username = v; return nil }},
		{"NATS_PASSWORD", func(v string) error { cfg.NATS.Password = v; return nil }},
		{"NATS_TOKEN", func(v string) error { cfg.NATS.Token = v; return nil }},
		{"DATALOG_PATH", func(v string) error { cfg.Datalog.Path = v; return nil }},
		{"METRICS_PORT", func(v string) error {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s_METRICS_PORT: %w", l.envPrefix, err)
			}
			cfg.Metrics.Port = port
			return nil
		}},
	}

	for _, o := range overrides {
		val, ok, err := lookup(o.name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := o.apply(val); err != nil {
			return err
		}
	}
	return nil
}

// SaveToFile writes the configuration as indented JSON
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns the configuration as indented JSON with credentials masked
func (c *Config) String() string {
	masked := *c
	if masked.NATS.Password != "" {
		masked.NATS.Password = "***"
	}
	if masked.NATS.Token != "" {
		masked.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}
