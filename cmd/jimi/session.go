package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jimihq/jimi/internal/agent"
	"github.com/jimihq/jimi/internal/agent/providers"
	"github.com/jimihq/jimi/internal/config"
	"github.com/jimihq/jimi/internal/mcp"
	jimisession "github.com/jimihq/jimi/internal/session"
	"github.com/jimihq/jimi/internal/tools/files"
	"github.com/jimihq/jimi/internal/tools/shell"
	"github.com/jimihq/jimi/internal/tools/web"
	"github.com/jimihq/jimi/internal/wire"
)

// session bundles everything one agent session needs: the event bus, the
// persistent context store, the tool registry, and the executor on top.
type session struct {
	cfg      *config.Config
	workdir  string
	id       string
	provider agent.Provider

	bus      *wire.Bus
	store    *jimisession.Context
	gate     *agent.Gate
	registry *agent.Registry
	exec     *agent.Executor
	bridge   *mcp.Bridge
}

// newSession assembles a session from config, flags, and the workspace.
func newSession(ctx context.Context) (*session, error) {
	workdir, err := filepath.Abs(flagWorkdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	cfgPath := flagConfig
	if cfgPath == "" {
		cfgPath = config.Path(workdir)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if flagModel != "" {
		cfg.Provider.Model = flagModel
	}
	if flagYolo {
		cfg.Yolo = true
	}
	if flagSpec != "" {
		cfg.Agent.SpecPath = flagSpec
	}
	if flagMCP != "" {
		extra, err := config.LoadMCPServers(flagMCP)
		if err != nil {
			return nil, err
		}
		cfg.MCPServers = append(cfg.MCPServers, extra...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	spec := agent.DefaultSpec()
	if cfg.Agent.SpecPath != "" {
		spec, err = agent.LoadSpec(cfg.Agent.SpecPath)
		if err != nil {
			return nil, fmt.Errorf("load agent spec: %w", err)
		}
	}

	snapshot, err := jimisession.LoadSnapshot(workdir)
	if err != nil {
		return nil, fmt.Errorf("inspect workdir: %w", err)
	}

	id := uuid.NewString()
	store, err := jimisession.Open(jimisession.HistoryPath(workdir, id))
	if err != nil {
		return nil, fmt.Errorf("open session history: %w", err)
	}

	bus := wire.New()
	gate := agent.NewGate(bus, cfg.Yolo)
	registry := agent.NewRegistry()

	fileCfg := files.Config{Workdir: workdir}
	registry.Register(files.NewReadFileTool(fileCfg))
	registry.Register(files.NewWriteFileTool(fileCfg))
	registry.Register(files.NewListDirTool(fileCfg))
	registry.Register(shell.NewRunShellTool(workdir))
	registry.Register(web.NewFetchTool())

	bridge := mcp.Connect(ctx, registry, cfg.MCPServers)

	execCfg := agent.Config{
		MaxSteps:  cfg.Agent.MaxSteps,
		MaxTokens: cfg.Agent.MaxTokens,
	}
	vars := snapshot.PromptVars()
	if len(spec.Subagents) > 0 {
		registry.Register(agent.NewTaskLauncher(
			provider, registry, gate, bus, spec, vars, execCfg,
			jimisession.HistoryPath(workdir, id)))
	}

	exec := agent.NewExecutor(provider, store, registry, gate, bus, spec, vars, execCfg)

	return &session{
		cfg:      cfg,
		workdir:  workdir,
		id:       id,
		provider: provider,
		bus:      bus,
		store:    store,
		gate:     gate,
		registry: registry,
		exec:     exec,
		bridge:   bridge,
	}, nil
}

// Close releases external resources. The bus drains before closing so a
// renderer subscribed to it sees every published event.
func (s *session) Close() {
	s.bridge.Close()
	s.bus.Close()
}

func buildProvider(cfg *config.Config) (agent.Provider, error) {
	switch cfg.Provider.Name {
	case "anthropic":
		return providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
			Model:   cfg.Provider.Model,
		}), nil
	case "openai":
		return providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:  cfg.Provider.APIKey,
			BaseURL: cfg.Provider.BaseURL,
			Model:   cfg.Provider.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}
