package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petal-labs/mcpchat/agent"
	"github.com/petal-labs/mcpchat/config"
	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/history"
	"github.com/petal-labs/mcpchat/llmprovider"
	"github.com/petal-labs/mcpchat/mcp"
	mcpotel "github.com/petal-labs/mcpchat/otel"
	"github.com/petal-labs/mcpchat/session"
	"github.com/petal-labs/mcpchat/shell"
)

func newChatCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE:  runChat(version),
	}
}

func runChat(version string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cmd)
		out := cmd.OutOrStdout()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		observer, shutdownTelemetry, err := mcpotel.Setup(ctx, mcpotel.SetupConfig{
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			ServiceName: cfg.Telemetry.ServiceName,
		})
		if err != nil {
			return exitError(exitConfig, "initializing telemetry: %v", err)
		}
		core.SetObserver(observer)
		defer func() {
			core.SetObserver(nil)
			if err := shutdownTelemetry(context.Background()); err != nil {
				logger.Warn("flushing telemetry failed", "error", err)
			}
		}()

		llm, err := newLLMClient(llmprovider.Config{
			Provider:  cfg.Model.Provider,
			APIKeyEnv: cfg.Model.APIKeyEnv,
		})
		if err != nil {
			logger.Warn("model client unavailable; queries will fail until it is configured",
				"provider", cfg.Model.Provider, "error", err)
			llm = unavailableLLM(err)
		}

		historyMode, err := agent.ParseHistoryMode(cfg.History.Mode)
		if err != nil {
			return exitError(exitConfig, "%v", err)
		}
		var recorder agent.Recorder
		if cfg.History.Store != "" {
			store, err := openHistoryStore(cfg)
			if err != nil {
				return exitError(exitRuntime, "opening transcript store: %v", err)
			}
			defer func() {
				_ = store.Close()
			}()
			recorder = store
		}

		manager := connectServers(ctx, cfg, logger, version)
		defer func() {
			if err := manager.Close(context.Background()); err != nil {
				logger.Warn("closing servers failed", "error", err)
			}
			fmt.Fprintln(out, "\nMCP ChatBot Stopped!")
		}()

		if schedule := strings.TrimSpace(cfg.Servers.HealthCheck); schedule != "" {
			monitor, err := session.NewHealthMonitor(session.HealthMonitorConfig{
				Manager:  manager,
				Schedule: schedule,
				Logger:   logger,
			})
			if err != nil {
				return exitError(exitConfig, "creating health monitor: %v", err)
			}
			monitor.Start(ctx)
			defer monitor.Stop()
		}

		bot := agent.NewChatbot(llm, manager.Registry(), out, agent.ChatbotConfig{
			Driver: agent.DriverConfig{
				Model:         cfg.Model.Name,
				System:        cfg.Model.SystemPrompt,
				MaxTokens:     cfg.Model.MaxTokens,
				MaxIterations: cfg.Model.MaxIterations,
			},
			History:  historyMode,
			Recorder: recorder,
			Logger:   logger,
		})
		logger.Debug("chat session started", "session", bot.SessionID(), "history", historyMode)

		sh := shell.New(bot, cmd.InOrStdin(), out, shell.Config{
			ResourceScheme: cfg.Shell.ResourceScheme,
			Logger:         logger,
		})
		if err := sh.Run(ctx); err != nil {
			return exitError(exitRuntime, "%v", err)
		}
		return nil
	}
}

// connectServers loads the server definition file and connects to every
// server in it. An unreadable file is logged and yields zero servers.
func connectServers(ctx context.Context, cfg config.Config, logger *slog.Logger, version string) *session.Manager {
	registry := session.NewRegistry(logger)
	manager := session.NewManager(registry, session.ManagerConfig{
		Dialer: session.StdioDialer(logger, mcp.ClientInfo{Name: "mcpchat", Version: version}),
		Retry: core.RetryPolicy{
			MaxAttempts: cfg.Servers.ConnectAttempts,
			Backoff:     cfg.Servers.RetryDelay,
		},
		InitTimeout: cfg.Servers.InitTimeout,
		Logger:      logger,
	})

	path := cfg.ServersFile()
	defs, err := config.LoadServers(path)
	if err != nil {
		logger.Error("loading server config failed", "path", path, "error", err)
		return manager
	}
	connected := manager.ConnectAll(ctx, defs)
	logger.Info("servers connected", "connected", connected, "configured", len(defs))
	return manager
}

func openHistoryStore(cfg config.Config) (history.Store, error) {
	path := strings.TrimSpace(cfg.History.Store)
	if path == "" || path == "default" {
		defaultPath, err := history.DefaultSQLitePath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	store, err := history.NewSQLiteStore(history.SQLiteStoreConfig{
		DSN:          path,
		RetentionAge: cfg.History.Retention,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

// unavailableLLM answers every model call with the error that prevented
// the client from being built.
func unavailableLLM(cause error) core.LLMClient {
	return core.LLMClientFunc(func(context.Context, core.ModelRequest) (core.ModelResponse, error) {
		return core.ModelResponse{}, fmt.Errorf("model client unavailable: %w", cause)
	})
}

var errNoHistoryStore = errors.New("no transcript store configured (set history.store)")
