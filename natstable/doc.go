// Package natstable keeps a table.Table in a NATS JetStream KV bucket so
// several processes share one set of topics.
//
// Each topic is stored under a key derived from its path as a JSON
// envelope carrying the path, the type name, the struct layout and the
// value:
//
//	{"path":"/robot/pose","type":"struct:Pose2d","layout":"double x;double y;double rot","value":"AAAA..."}
//
// Reads and writes never block on the network. Set updates local state,
// notifies listeners and queues the envelope for a background flusher that
// coalesces writes per key. A bucket watcher applies puts and deletes made
// by other writers; this process's own puts are recognised when they come
// back and are not applied twice. A remote put whose type conflicts with a
// locally declared topic is logged and ignored.
//
// Keys escape every byte outside [a-zA-Z0-9/_-] as '=' and two hex digits,
// so distinct paths never share a key. An entry whose envelope path does not
// encode to its key was not written by a Table and is ignored.
//
// Usage:
//
//	client, err := natstable.NewClient("nats://localhost:4222")
//	if err := client.Connect(ctx); err != nil { ... }
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "turbologger"})
//	tbl := natstable.New(bucket, natstable.WithTableLogger(logger))
//	if err := tbl.Start(ctx); err != nil { ... }
//	defer tbl.Stop(ctx)
//
//	store := alias.New(tbl)
package natstable
