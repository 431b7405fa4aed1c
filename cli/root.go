// Package cli implements the mcpchat command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/petal-labs/mcpchat/config"
	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/llmprovider"
)

// newLLMClient is replaced in tests.
var newLLMClient = func(cfg llmprovider.Config) (core.LLMClient, error) {
	return llmprovider.NewClient(cfg)
}

// NewRootCmd builds the mcpchat command tree. Running it without a
// subcommand starts a chat.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpchat",
		Short: "Chat with a model that can use MCP server tools",
		Long: "mcpchat connects to the MCP servers in a server definition file and " +
			"runs an interactive chat whose model can call their tools, prompts and resources.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runChat(version),
	}

	root.PersistentFlags().String("config", "", "Path to mcpchat.yaml (default: ./mcpchat.yaml, then ~/.mcpchat/config.yaml)")
	root.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	root.PersistentFlags().Bool("quiet", false, "Suppress all logging except errors")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("mcpchat version %s\n", version))

	root.AddCommand(newChatCmd(version))
	root.AddCommand(newServersCmd(version))
	root.AddCommand(newHistoryCmd())
	return root
}

// loadConfig resolves the --config flag into a validated config.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(explicit)
	if err != nil {
		return config.Config{}, exitError(exitConfig, "loading config: %v", err)
	}
	return cfg, nil
}

// newLogger builds the process logger on the command's stderr.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")
	return newLoggerTo(cmd.ErrOrStderr(), verbose, quiet)
}

func newLoggerTo(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
