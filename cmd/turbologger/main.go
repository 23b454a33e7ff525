// Package main runs a turbologger host: a telemetry table (in-process or
// shared through NATS), the alias-aware store over it, an optional data log
// and a Prometheus endpoint.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/turbologger/alias"
	"github.com/c360/turbologger/config"
	"github.com/c360/turbologger/datalog"
	"github.com/c360/turbologger/health"
	"github.com/c360/turbologger/metric"
	"github.com/c360/turbologger/natstable"
	"github.com/c360/turbologger/pkg/retry"
	"github.com/c360/turbologger/table"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "turbologger"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(flag.NewFlagSet(appName, flag.ContinueOnError), args)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting turbologger",
		"version", Version,
		"config_path", cliCfg.ConfigPath,
		"backend", cfg.Table.Backend)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := start(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("turbologger started", "aliases", len(cfg.Aliases))

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := h.stop(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("turbologger shutdown complete")
	return nil
}

// host holds everything started for one run
type host struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	health   *health.Monitor

	client    *natstable.Client // nats backend only
	natsTable *natstable.Table  // nats backend only
	table     table.Table

	store   *alias.Store
	datalog *datalog.Log
	server  *metric.Server
}

// start brings up the table, store, data log and metrics endpoint. On
// error everything already started is stopped again.
func start(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*host, error) {
	h := &host{
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		health:   health.NewMonitor(),
	}
	if err := h.init(ctx, cfg); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.stop(stopCtx)
		return nil, err
	}
	return h, nil
}

func (h *host) init(ctx context.Context, cfg *config.Config) error {
	metrics := h.registry.CoreMetrics()

	if err := h.openTable(ctx, cfg, metrics); err != nil {
		return err
	}
	h.health.UpdateHealthy("table", cfg.Table.Backend)

	h.store = alias.New(h.table,
		alias.WithLogger(h.logger),
		alias.WithMetrics(metrics),
		alias.WithPrefix(cfg.Table.Prefix))
	registerAliases(h.store, cfg.Aliases, h.logger)

	if cfg.Datalog.Path != "" {
		h.datalog = datalog.New(h.table,
			datalog.WithLogger(h.logger),
			datalog.WithMetrics(metrics),
			datalog.WithFlushInterval(cfg.Datalog.FlushInterval),
			datalog.WithBufferSize(cfg.Datalog.BufferSize))
		dir, file := datalog.Split(cfg.Datalog.Path)
		if err := h.datalog.Start(dir, file); err != nil {
			return fmt.Errorf("start data log: %w", err)
		}
		if err := h.datalog.SetMirror(cfg.Datalog.Mirror); err != nil {
			return fmt.Errorf("mirror data log: %w", err)
		}
		h.health.UpdateHealthy("datalog", h.datalog.Path())
	}

	if cfg.Metrics.Enabled {
		h.server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, h.registry)
		h.server.SetHealthHandler(h.health.Handler(appName))
		go func() {
			if err := h.server.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				h.logger.Error("Metrics server failed", "error", err)
			}
		}()
		h.logger.Info("Metrics server listening", "address", h.server.Address(), "path", cfg.Metrics.Path)
	}

	return nil
}

func (h *host) openTable(ctx context.Context, cfg *config.Config, metrics *metric.Metrics) error {
	if cfg.Table.Backend != config.BackendNATS {
		h.table = table.NewMemory(table.WithLogger(h.logger))
		return nil
	}

	opts := []natstable.ClientOption{
		natstable.WithLogger(h.logger),
		natstable.WithMetrics(metrics),
		natstable.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natstable.WithReconnectWait(cfg.NATS.ReconnectWait),
		natstable.WithTimeout(cfg.NATS.Timeout),
		natstable.WithHealthChangeCallback(func(healthy bool) {
			h.logger.Info("NATS health changed", "healthy", healthy)
			if healthy {
				h.health.UpdateHealthy("nats", "connected")
			} else {
				h.health.UpdateDegraded("nats", "disconnected, serving local state")
			}
		}),
	}
	if cfg.NATS.ClientName != "" {
		opts = append(opts, natstable.WithName(cfg.NATS.ClientName))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natstable.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natstable.WithToken(cfg.NATS.Token))
	}

	client, err := natstable.NewClient(strings.Join(cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	h.client = client

	if err := client.ConnectWithRetry(ctx, retry.Quick(), cfg.NATS.Timeout); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.NATS.Bucket,
		Description: "turbologger telemetry table",
		History:     uint8(cfg.NATS.History),
	})
	if err != nil {
		return fmt.Errorf("open KV bucket %s: %w", cfg.NATS.Bucket, err)
	}

	h.natsTable = natstable.New(bucket,
		natstable.WithTableLogger(h.logger),
		natstable.WithTableMetrics(metrics),
		natstable.WithPublishTimeout(cfg.NATS.PublishTimeout))

	syncCtx, syncCancel := context.WithTimeout(ctx, 30*time.Second)
	defer syncCancel()
	if err := h.natsTable.Start(syncCtx); err != nil {
		return fmt.Errorf("sync NATS table: %w", err)
	}
	h.table = h.natsTable
	return nil
}

// registerAliases binds the configured aliases in a stable order. A
// rejected alias is logged by the store's reporter and skipped.
func registerAliases(store *alias.Store, aliases map[string]string, logger *slog.Logger) {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := store.RegisterAlias(aliases[name], name); err != nil {
			continue
		}
		logger.Debug("Registered alias", "alias", name, "path", aliases[name])
	}
}

// stop shuts components down in reverse start order
func (h *host) stop(ctx context.Context) error {
	var errs []error

	if h.server != nil {
		if err := h.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
		}
	}

	if h.datalog != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := h.datalog.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop data log: %w", err))
		}
	}

	if h.store != nil {
		h.store.Close()
	}

	if h.natsTable != nil {
		if err := h.natsTable.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop NATS table: %w", err))
		}
	}

	if h.client != nil {
		if err := h.client.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close NATS client: %w", err))
		}
	}

	return stderrors.Join(errs...)
}
