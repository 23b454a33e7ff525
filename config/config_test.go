package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/c360/turbologger/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turbologger.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendMemory, cfg.Table.Backend)
	assert.Equal(t, "turbologger", cfg.NATS.Bucket)
	assert.Equal(t, 2*time.Second, cfg.NATS.PublishTimeout)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `{
		"table": {"backend": "nats", "prefix": "TurboLogger"},
		"nats": {
			"urls": ["nats://robot.local:4222"],
			"publish_timeout": "500ms",
			"reconnect_wait": "1s"
		},
		"datalog": {"path": "/tmp/logs/", "mirror": true},
		"aliases": {"m1v": "motors/m1/voltage"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendNATS, cfg.Table.Backend)
	assert.Equal(t, "TurboLogger", cfg.Table.Prefix)
	assert.Equal(t, []string{"nats://robot.local:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.PublishTimeout)
	assert.Equal(t, time.Second, cfg.NATS.ReconnectWait)
	assert.True(t, cfg.Datalog.Mirror)
	assert.Equal(t, map[string]string{"m1v": "motors/m1/voltage"}, cfg.Aliases)

	// Untouched keys keep their defaults.
	assert.Equal(t, "turbologger", cfg.NATS.Bucket)
	assert.Equal(t, 5*time.Second, cfg.NATS.Timeout)
	assert.Equal(t, 100, cfg.Datalog.BufferSize)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_Layers(t *testing.T) {
	base := writeConfig(t, `{"metrics": {"port": 9100}, "aliases": {"a": "x"}}`)
	override := writeConfig(t, `{"metrics": {"enabled": false}, "aliases": {"b": "y"}}`)

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(override)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, map[string]string{"a": "x", "b": "y"}, cfg.Aliases)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TURBOLOGGER_BACKEND", "nats")
	t.Setenv("TURBOLOGGER_NATS_URL", "nats://a:4222,nats://b:4222")
	t.Setenv("TURBOLOGGER_DATALOG_PATH", "/tmp/run.jsonl")
	t.Setenv("TURBOLOGGER_METRICS_PORT", "9200")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendNATS, cfg.Table.Backend)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "/tmp/run.jsonl", cfg.Datalog.Path)
	assert.Equal(t, 9200, cfg.Metrics.Port)
}

func TestLoad_EnvOverrideInvalid(t *testing.T) {
	t.Setenv("TURBOLOGGER_METRICS_PORT", "ninety")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{"table": `},
		{"bad duration", `{"nats": {"timeout": "soon"}}`},
		{"invalid backend", `{"table": {"backend": "sqlite"}}`},
		{"too deep", strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, `{"nats": {"history": 0}, "table": {"backend": "nats"}}`))
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
	assert.True(t, errs.IsInvalid(err))

	_, err = Load("../turbologger.json")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "config.yaml"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"nats without urls", func(c *Config) {
			c.Table.Backend = BackendNATS
			c.NATS.URLs = nil
		}, "urls are required"},
		{"nats bad bucket", func(c *Config) {
			c.Table.Backend = BackendNATS
			c.NATS.Bucket = "robot.values"
		}, "bucket"},
		{"nats bad history", func(c *Config) {
			c.Table.Backend = BackendNATS
			c.NATS.History = 0
		}, "history"},
		{"nats username without password", func(c *Config) {
			c.Table.Backend = BackendNATS
			c.NATS.Username = "robot"
		}, "password"},
		{"mirror without path", func(c *Config) {
			c.Datalog.Mirror = true
		}, "datalog.path"},
		{"metrics port", func(c *Config) {
			c.Metrics.Port = 70000
		}, "metrics.port"},
		{"metrics path", func(c *Config) {
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
		{"alias names itself", func(c *Config) {
			c.Aliases = map[string]string{"a": "a"}
		}, "cannot name itself"},
		{"alias empty", func(c *Config) {
			c.Aliases = map[string]string{"a": ""}
		}, "empty"},
		{"alias chain", func(c *Config) {
			c.Aliases = map[string]string{"a": "b", "b": "c"}
		}, "itself an alias"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	// Metrics settings are ignored when the endpoint is disabled.
	cfg := Default()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveAndReload(t *testing.T) {
	cfg := Default()
	cfg.Table.Backend = BackendNATS
	cfg.NATS.PublishTimeout = 750 * time.Millisecond
	cfg.Aliases = map[string]string{"m1v": "motors/m1/voltage"}

	path := filepath.Join(t.TempDir(), "saved.json")
	require.NoError(t, cfg.SaveToFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfig_StringMasksCredentials(t *testing.T) {
	cfg := Default()
	cfg.NATS.Username = "robot"
	cfg.NATS.Password = "hunter2"
	cfg.NATS.Token = "abc"

	s := cfg.String()
	assert.Contains(t, s, "robot")
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, `"abc"`)
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": "[[[[ not nesting \" ]"}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": 1}}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": [1}`)))
}
