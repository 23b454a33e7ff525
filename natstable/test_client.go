package natstable

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/turbologger/pkg/retry"
)

// TestClient runs a JetStream-enabled NATS server in a container for
// integration tests.
type TestClient struct {
	container testcontainers.Container
	Client    *Client
	URL       string
	cleanup   func()
}

type testConfig struct {
	natsVersion  string
	timeout      time.Duration
	startTimeout time.Duration
}

// TestOption configures NewTestClient.
type TestOption func(*testConfig)

// WithNATSVersion selects the nats image tag.
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout sets the container startup timeout.
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

// NewTestClient starts a NATS container and connects a Client to it. The
// container is terminated when the test finishes.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	cfg := &testConfig{
		natsVersion:  "2.11.7-alpine",
		timeout:      5 * time.Second,
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:" + cfg.natsVersion,
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"--js"},
			WaitingFor: wait.ForLog("Server is ready").
				WithStartupTimeout(cfg.startTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}
	fail := func(format string, args ...any) {
		_ = container.Terminate(ctx)
		t.Fatalf(format, args...)
	}

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		fail("resolve NATS endpoint: %v", err)
	}

	client, err := NewClient(endpoint, WithTimeout(cfg.timeout), WithMaxReconnects(0), WithName(t.Name()))
	if err != nil {
		fail("create NATS client: %v", err)
	}
	if err := client.ConnectWithRetry(ctx, retry.Quick(), cfg.timeout); err != nil {
		fail("connect to NATS at %s: %v", endpoint, err)
	}

	tc := &TestClient{
		container: container,
		Client:    client,
		URL:       endpoint,
		cleanup: func() {
			_ = client.Close(context.Background())
			_ = container.Terminate(context.Background())
		},
	}
	t.Cleanup(tc.Terminate)
	return tc
}

// Terminate stops the client and the container. It is registered with
// t.Cleanup and safe to call early.
func (tc *TestClient) Terminate() {
	if tc.cleanup != nil {
		tc.cleanup()
		tc.cleanup = nil
	}
}

// NewTable opens bucket on the test server and starts a Table over it. The
// table is stopped before the container goes away.
func (tc *TestClient) NewTable(t testing.TB, bucket string, opts ...Option) *Table {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		t.Fatalf("open bucket %s: %v", bucket, err)
	}

	tbl := New(kv, opts...)
	if err := tbl.Start(ctx); err != nil {
		t.Fatalf("start table on %s: %v", bucket, err)
	}
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = tbl.Stop(stopCtx)
	})
	return tbl
}
