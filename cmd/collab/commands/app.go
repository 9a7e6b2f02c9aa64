package commands

import (
	"context"
	"fmt"

	"github.com/opencode-ai/collab/internal/collab"
	"github.com/opencode-ai/collab/internal/config"
	"github.com/opencode-ai/collab/internal/event"
	"github.com/opencode-ai/collab/internal/executor"
	"github.com/opencode-ai/collab/internal/logging"
	"github.com/opencode-ai/collab/internal/provider"
	"github.com/opencode-ai/collab/internal/tool"
	"github.com/opencode-ai/collab/pkg/types"
)

// app is a started session with everything wired around it.
type app struct {
	workDir  string
	config   *types.Config
	bus      *event.Bus
	runner   *executor.Runner
	tools    *tool.Registry
	session  *collab.Session
	provider provider.Provider
}

// loadConfig reads .env files and the layered configuration for dir.
func loadConfig(dir string) (*types.Config, error) {
	config.LoadDotEnv(dir)
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if cfg.LogLevel != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		logLevel = cfg.LogLevel
		initLogging()
	}
	return cfg, nil
}

// newApp builds and starts a session. The tool registry is created first so
// the session can execute through it, and the collaboration tools are bound
// once the session exists.
func newApp(ctx context.Context, dir, model string) (*app, error) {
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Model = model
	}

	opts, err := config.SessionOptions(cfg, dir)
	if err != nil {
		return nil, err
	}

	providers, err := provider.InitializeProviders(ctx, cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some providers")
	}
	p, err := providers.Default()
	if err != nil {
		return nil, fmt.Errorf("no model provider configured: %w", err)
	}

	shellDir := dir
	shellEnabled := false
	if cfg.Shell != nil {
		shellEnabled = cfg.Shell.Enabled
		if cfg.Shell.WorkDir != "" {
			shellDir = cfg.Shell.WorkDir
		}
	}
	tools := tool.NewRegistry(shellDir)
	if shellEnabled {
		tools.Register(tool.NewShellTool(shellDir))
	}

	runner := executor.NewRunner(executor.Config{
		Provider: p,
		Tools:    tools,
		MaxSteps: cfg.MaxSteps,
	})

	bus := event.NewBus()
	session := collab.NewSession(opts, runner, tools, bus)
	tools.RegisterCollabTools(session)

	if err := session.Start(ctx); err != nil {
		bus.Close()
		return nil, err
	}

	logging.Info().
		Str("session", session.ID()).
		Str("provider", p.ID()).
		Str("model", p.Model()).
		Strs("tools", tools.IDs()).
		Msg("session ready")

	return &app{
		workDir:  dir,
		config:   cfg,
		bus:      bus,
		runner:   runner,
		tools:    tools,
		session:  session,
		provider: p,
	}, nil
}

// close tears the session down and releases the bus.
func (a *app) close(ctx context.Context) {
	if _, err := a.session.Teardown(ctx); err != nil && collab.KindOf(err) != collab.KindSessionClosed {
		logging.Error().Err(err).Msg("session teardown failed")
	}
	if err := a.bus.Close(); err != nil {
		logging.Debug().Err(err).Msg("closing event bus")
	}
}
