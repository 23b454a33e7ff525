package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/turbologger/config"
)

func TestParseFlags(t *testing.T) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	cfg, err := parseFlags(fs, []string{"-config", "robot.json", "-debug", "-log-format", "text"})
	require.NoError(t, err)
	assert.Equal(t, "robot.json", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, validateFlags(cfg))
}

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name string
		cfg  CLIConfig
	}{
		{"log level", CLIConfig{LogLevel: "trace", LogFormat: "json", ShutdownTimeout: time.Second}},
		{"log format", CLIConfig{LogLevel: "info", LogFormat: "xml", ShutdownTimeout: time.Second}},
		{"shutdown timeout", CLIConfig{LogLevel: "info", LogFormat: "json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, validateFlags(&tt.cfg))
		})
	}

	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true}))
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "path", "/x")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"turbologger"`)
}

func TestHost_MemoryBackend(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "debug", "text")

	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Datalog.Path = filepath.Join(t.TempDir(), "run.jsonl")
	cfg.Datalog.Mirror = true
	cfg.Aliases = map[string]string{
		"m1v": "motors/m1/voltage",
		"m2v": "motors/m1/voltage",
	}

	h, err := start(context.Background(), cfg, logger)
	require.NoError(t, err)

	assert.Equal(t, "motors/m1/voltage", h.store.Resolve("m1v"))
	assert.ElementsMatch(t, []string{"m1v", "m2v"}, h.store.Aliases("motors/m1/voltage"))

	require.NoError(t, h.store.WriteDouble("m1v", 12.4))
	assert.Equal(t, 12.4, h.store.ReadDouble("m2v", 0))

	require.NoError(t, h.stop(context.Background()))
	assert.Equal(t, int64(1), h.datalog.Written())
}

func TestHost_StartFailureStopsPartialState(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Datalog.Path = "/dev/null/cannot/create/"

	_, err := start(context.Background(), cfg, setupLogger(io.Discard, "error", "json"))
	assert.Error(t, err)
}

func TestHost_HealthReflectsComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Datalog.Path = t.TempDir() + "/"

	h, err := start(context.Background(), cfg, setupLogger(io.Discard, "error", "json"))
	require.NoError(t, err)
	defer h.stop(context.Background())

	status := h.health.AggregateHealth(appName)
	assert.True(t, status.IsHealthy())
	require.Len(t, status.SubStatuses, 2)
	assert.Equal(t, "datalog", status.SubStatuses[0].Component)
	assert.Equal(t, "table", status.SubStatuses[1].Component)
}
