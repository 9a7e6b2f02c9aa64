package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/config"
	"github.com/opencode-ai/collab/internal/event"
	"github.com/opencode-ai/collab/internal/executor"
	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/internal/provider"
	"github.com/opencode-ai/collab/internal/server"
	"github.com/opencode-ai/collab/internal/tool"
	"github.com/opencode-ai/collab/pkg/types"
)

// TestServer wraps a collab server backed by the mock LLM.
type TestServer struct {
	Server  *server.Server
	Session *collab.Session
	Bus     *event.Bus
	MockLLM *MockLLMServer
	BaseURL string
	Config  *types.Config
	ToolReg *tool.Registry
	WorkDir string
	tempDir string
	port    int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	workDir   string
	envFile   string
	mock      *MockLLMConfig
	policy    *types.PolicyConfig
	shell     bool
	transform func(*collab.Options)
}

// WithWorkDir sets the working directory
func WithWorkDir(dir string) TestServerOption {
	return func(c *testServerConfig) {
		c.workDir = dir
	}
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// WithMockLLMConfig replaces the default mock LLM scenarios.
func WithMockLLMConfig(mock *MockLLMConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.mock = mock
	}
}

// WithPolicy sets the root policy.
func WithPolicy(p *types.PolicyConfig) TestServerOption {
	return func(c *testServerConfig) {
		c.policy = p
	}
}

// WithShell registers the shell tool.
func WithShell() TestServerOption {
	return func(c *testServerConfig) {
		c.shell = true
	}
}

// WithSessionOptions adjusts the session options before the session starts.
func WithSessionOptions(fn func(*collab.Options)) TestServerOption {
	return func(c *testServerConfig) {
		c.transform = fn
	}
}

// StartTestServer starts the mock LLM, a session wired to it and an HTTP
// server in front of the session.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	} else {
		_ = godotenv.Load("../../.env")
		_ = godotenv.Load("../.env")
		_ = godotenv.Load(".env")
	}
	if level := os.Getenv("COLLAB_TEST_LOG_LEVEL"); level != "" {
		logCfg := logging.DefaultConfig()
		logCfg.Level = logging.ParseLevel(level)
		logCfg.Pretty = true
		logging.Init(logCfg)
	}

	var tempDir string
	workDir := cfg.workDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "collab-test-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		tempDir, workDir = dir, dir
	}

	mock := NewMockLLMServer(cfg.mock)
	appConfig := buildTestConfig(mock.URL(), cfg.policy)

	port, err := findAvailablePort()
	if err != nil {
		mock.Close()
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	ctx := context.Background()

	sessionOpts, err := config.SessionOptions(appConfig, workDir)
	if err != nil {
		mock.Close()
		return nil, err
	}
	if cfg.transform != nil {
		cfg.transform(&sessionOpts)
	}

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		mock.Close()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	p, err := providerReg.Default()
	if err != nil {
		mock.Close()
		return nil, err
	}

	toolReg := tool.NewRegistry(workDir)
	if cfg.shell {
		toolReg.Register(tool.NewShellTool(workDir))
	}
	runner := executor.NewRunner(executor.Config{Provider: p, Tools: toolReg, MaxSteps: 10})

	bus := event.NewBus()
	session := collab.NewSession(sessionOpts, runner, toolReg, bus)
	toolReg.RegisterCollabTools(session)
	if err := session.Start(ctx); err != nil {
		bus.Close()
		mock.Close()
		return nil, err
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port
	srv := server.New(serverConfig, session)

	go func() {
		_ = srv.Start()
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(ctx)
		mock.Close()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:  srv,
		Session: session,
		Bus:     bus,
		MockLLM: mock,
		BaseURL: baseURL,
		Config:  appConfig,
		ToolReg: toolReg,
		WorkDir: workDir,
		tempDir: tempDir,
		port:    port,
	}, nil
}

// Stop shuts down the server, tears the session down and cleans up.
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.Session != nil {
		ts.Session.Teardown(ctx)
	}
	if ts.Bus != nil {
		ts.Bus.Close()
	}
	if ts.MockLLM != nil {
		ts.MockLLM.Close()
	}
	if ts.tempDir != "" {
		os.RemoveAll(ts.tempDir)
	}
	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// buildTestConfig points the OpenAI provider at the mock LLM.
func buildTestConfig(baseURL string, policy *types.PolicyConfig) *types.Config {
	return &types.Config{
		Model: "openai/mock-gpt-4",
		Provider: map[string]types.ProviderConfig{
			"openai": {
				APIKey:  "test-key",
				BaseURL: baseURL,
			},
		},
		Policy: policy,
	}
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/session")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
