// Package turbologger is a typed telemetry table with aliases.
//
// Values are published under slash separated paths into a shared table and
// read back by any number of consumers. Each consumer may know a value by
// its own alias and tracks on its own whether the value changed since it
// last looked.
//
// # Layout
//
//	table/      Table, Publisher and Subscriber contracts and the in-process Memory table
//	structs/    record registry and the packed binary encoding of record values
//	alias/      Store: alias resolution, type binding, staleness and diagnostics
//	natstable/  Table backed by a NATS JetStream KV bucket, shared across processes
//	datalog/    JSON lines mirror of every table change
//	config/     layered JSON configuration with environment overrides
//	health/     component health aggregation for the HTTP endpoint
//	metric/     Prometheus metrics and the metrics/health server
//	errors/     error classification (transient, invalid, fatal)
//	pkg/retry/  exponential backoff used when connecting to NATS
//	cmd/turbologger/  host process wiring all of the above
//
// # Quick Start
//
//	store := alias.New(table.NewMemory())
//	defer store.Close()
//
//	store.WriteDouble("motors/m1/voltage", 12.0, "m1v")
//	v := store.ReadDouble("m1v", 0)
//
// Swap table.NewMemory for a started natstable.Table to share the same
// values with every process attached to the bucket.
//
// # Running
//
//	turbologger --config turbologger.json
//	turbologger --validate --config turbologger.json
//
// See package config for the file format and environment variables.
package turbologger
