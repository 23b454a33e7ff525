// Package metric provides the Prometheus metrics of turbologger and the
// HTTP server that exposes them.
//
// MetricsRegistry owns a private Prometheus registry with the core Metrics
// (store writes, reads and diagnostics, cache sizes, NATS backend status,
// data log records) plus the Go runtime and process collectors. Components
// receive the *Metrics returned by CoreMetrics and record through its
// Record* methods. Extra collectors can be added through MetricsRegistrar.
//
// Basic usage:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        slog.Error("Metrics server error", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
//	store := alias.New(tbl, alias.WithMetrics(registry.CoreMetrics()))
//
// All core metrics use the namespace "turbologger", for example
// turbologger_store_writes_total{kind="double"}.
package metric
