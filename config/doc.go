// Package config loads the turbologger configuration.
//
// Configuration starts from Default, is overlaid by zero or more JSON files
// (later layers win, objects merge key by key) and finally by environment
// variables prefixed with TURBOLOGGER_:
//
//	TURBOLOGGER_BACKEND        table.backend
//	TURBOLOGGER_TABLE_PREFIX   table.prefix
//	TURBOLOGGER_NATS_URL       nats.urls, comma separated
//	TURBOLOGGER_NATS_BUCKET    nats.bucket
//	TURBOLOGGER_NATS_USERNAME  nats.username
//	TURBOLOGGER_NATS_PASSWORD  nats.password
//	TURBOLOGGER_NATS_TOKEN     nats.token
//	TURBOLOGGER_DATALOG_PATH   datalog.path
//	TURBOLOGGER_METRICS_PORT   metrics.port
//
// Durations are written as Go duration strings:
//
//	{
//	  "table":   {"backend": "nats", "prefix": "TurboLogger"},
//	  "nats":    {"urls": ["nats://robot.local:4222"], "publish_timeout": "500ms"},
//	  "datalog": {"path": "/var/log/turbologger/", "mirror": true},
//	  "aliases": {"m1v": "motors/m1/voltage"}
//	}
//
// Usage:
//
//	cfg, err := config.Load("turbologger.json")
//	if err != nil {
//		log.Fatal(err)
//	}
package config
