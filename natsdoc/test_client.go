package natsdoc

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestToken is the auth token the test server is started with.
const TestToken = "botstate-test-token"

// TestServer runs a NATS container with JetStream for testing.
type TestServer struct {
	container testcontainers.Container
	URL       string
	Token     string
	cleanup   func()
}

// testConfig holds configuration for the test server
type testConfig struct {
	natsVersion  string
	startTimeout time.Duration
}

// TestOption for configuring the test server
type TestOption func(*testConfig)

// WithNATSVersion specifies a specific NATS server version to use
func WithNATSVersion(version string) TestOption {
	return func(cfg *testConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout sets the container startup timeout
func WithStartTimeout(timeout time.Duration) TestOption {
	return func(cfg *testConfig) {
		cfg.startTimeout = timeout
	}
}

func defaultTestConfig() *testConfig {
	return &testConfig{
		natsVersion:  "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
}

func containerRequest(cfg *testConfig) testcontainers.ContainerRequest {
	return testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222", "--js", "--auth", TestToken},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}
}

// NewSharedTestServer starts a NATS container for use in TestMain.
// Unlike NewTestServer, this doesn't require testing.T and returns errors.
func NewSharedTestServer(opts ...TestOption) (*TestServer, error) {
	cfg := defaultTestConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: containerRequest(cfg),
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	url := fmt.Sprintf("nats://%s:%s", host, port.Port())

	return &TestServer{
		container: container,
		URL:       url,
		Token:     TestToken,
		cleanup: func() {
			_ = container.Terminate(context.Background()) // Best effort test cleanup
		},
	}, nil
}

// NewTestServer starts a NATS container and registers cleanup with t.
// Accepts testing.TB so it works with both *testing.T and *testing.B
func NewTestServer(t testing.TB, opts ...TestOption) *TestServer {
	t.Helper()

	server, err := NewSharedTestServer(opts...)
	if err != nil {
		t.Fatalf("Failed to start NATS test server: %v", err)
	}
	t.Cleanup(server.Cleanup)
	return server
}

// Cleanup terminates the container.
func (ts *TestServer) Cleanup() {
	if ts.cleanup != nil {
		ts.cleanup()
		ts.cleanup = nil
	}
}
