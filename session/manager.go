package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/mcp"
)

const defaultInitTimeout = 30 * time.Second

// Dialer starts a server process and returns an uninitialized client for it.
type Dialer func(ctx context.Context, name string, def ServerDefinition) (Client, error)

// StdioDialer launches servers as subprocesses speaking MCP over stdio.
func StdioDialer(logger *slog.Logger, info mcp.ClientInfo) Dialer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, name string, def ServerDefinition) (Client, error) {
		transport, err := mcp.NewStdioTransport(ctx, mcp.StdioTransportConfig{
			Command: def.Command,
			Args:    def.Args,
			Env:     def.Env,
			Logger:  logger.With("server", name),
		})
		if err != nil {
			return nil, err
		}
		return mcp.NewClient(transport, mcp.Options{ClientInfo: info}), nil
	}
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Dialer      Dialer
	Retry       core.RetryPolicy
	InitTimeout time.Duration
	Logger      *slog.Logger
}

// Manager connects to the configured servers and owns their connections.
type Manager struct {
	registry    *Registry
	dial        Dialer
	retry       core.RetryPolicy
	initTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	conns []*Connection
}

// NewManager creates a manager that registers discovered capabilities into registry.
func NewManager(registry *Registry, cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if registry == nil {
		registry = NewRegistry(cfg.Logger)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = StdioDialer(cfg.Logger, mcp.ClientInfo{})
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = core.DefaultRetryPolicy()
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = defaultInitTimeout
	}
	return &Manager{
		registry:    registry,
		dial:        cfg.Dialer,
		retry:       cfg.Retry,
		initTimeout: cfg.InitTimeout,
		logger:      cfg.Logger,
	}
}

// Registry returns the registry this manager fills.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// ConnectAll connects to every definition in name order, retrying each per
// the manager's policy. Servers that still fail are logged and skipped. It
// returns the number of servers connected.
func (m *Manager) ConnectAll(ctx context.Context, defs map[string]ServerDefinition) int {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)

	connected := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		def := defs[name]
		attempts, err := Retry(ctx, m.retry, func(ctx context.Context, attempt int) error {
			started := time.Now()
			_, err := m.ConnectOne(ctx, name, def)
			core.ActiveObserver().ObserveConnect(core.ConnectObservation{
				Server:     name,
				Attempt:    attempt,
				DurationMS: time.Since(started).Milliseconds(),
				Success:    err == nil,
				ErrorCode:  core.ErrorCode(err),
			})
			if err != nil {
				m.logger.Warn("server connect attempt failed", "server", name, "attempt", attempt, "error", err)
			}
			return err
		})
		if err != nil {
			m.logger.Error("skipping server", "server", name, "attempts", attempts, "error", err)
			continue
		}
		connected++
	}
	return connected
}

// ConnectOne launches one server, performs the MCP handshake and registers
// its tools, prompts, resources and resource templates. Handshake failures
// close the half-open process and return an error. Listing failures after a
// good handshake are logged and leave the connection in place.
func (m *Manager) ConnectOne(ctx context.Context, name string, def ServerDefinition) (*Connection, error) {
	initCtx, cancel := context.WithTimeout(ctx, m.initTimeout)
	defer cancel()

	client, err := m.dial(initCtx, name, def)
	if err != nil {
		return nil, fmt.Errorf("session: start %q: %w", name, err)
	}
	initResult, err := client.Initialize(initCtx)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("session: initialize %q: %w", name, err)
	}

	conn := newConnection(name, initResult.ServerInfo, client)
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()

	m.discover(initCtx, conn, initResult)
	return conn, nil
}

func (m *Manager) discover(ctx context.Context, conn *Connection, initResult mcp.InitializeResult) {
	logger := m.logger.With("server", conn.Name())

	if initResult.HasCapability("tools") {
		tools, err := conn.client.ListTools(ctx)
		if err != nil {
			logger.Error("list tools failed", "error", err)
		}
		names := make([]string, 0, len(tools.Tools))
		for _, tool := range tools.Tools {
			m.registry.RegisterTool(conn, core.ToolDescriptor{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
			names = append(names, tool.Name)
		}
		logger.Info("connected to server", "tools", names)
	}

	if initResult.HasCapability("prompts") {
		prompts, err := conn.client.ListPrompts(ctx)
		if err != nil {
			logger.Error("list prompts failed", "error", err)
		}
		for _, prompt := range prompts.Prompts {
			m.registry.RegisterPrompt(conn, promptDescriptor(prompt))
		}
	}

	if initResult.HasCapability("resources") {
		resources, err := conn.client.ListResources(ctx)
		if err != nil {
			logger.Error("list resources failed", "error", err)
		}
		for _, resource := range resources.Resources {
			m.registry.RegisterResource(conn, resource.URI)
		}

		templates, err := conn.client.ListResourceTemplates(ctx)
		if err != nil {
			logger.Debug("list resource templates failed", "error", err)
		}
		for _, tmpl := range templates.ResourceTemplates {
			m.registry.RegisterResourceTemplate(conn, tmpl)
		}
	}
}

func promptDescriptor(prompt mcp.Prompt) core.PromptDescriptor {
	args := make([]core.PromptArgument, 0, len(prompt.Arguments))
	for _, arg := range prompt.Arguments {
		args = append(args, core.PromptArgument{
			Name:        arg.Name,
			Description: arg.Description,
			Required:    arg.Required,
		})
	}
	return core.PromptDescriptor{
		Name:        prompt.Name,
		Description: prompt.Description,
		Arguments:   args,
	}
}

// Connections returns the connected servers in connect order.
func (m *Manager) Connections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.conns)
}

// Close closes every connection, attempting all of them, and joins the errors.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	conns := slices.Clone(m.conns)
	m.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session: close %q: %w", conn.Name(), err))
		}
	}
	return errors.Join(errs...)
}
