package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/petal-labs/mcpchat/session"
)

func newServersCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "Connect to the configured servers and list what they offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd)

			manager := connectServers(cmd.Context(), cfg, logger, version)
			defer func() {
				_ = manager.Close(context.Background())
			}()

			if len(manager.Connections()) == 0 {
				return exitError(exitNotFound, "no servers connected from %s", cfg.ServersFile())
			}
			printServers(cmd.OutOrStdout(), manager)
			return nil
		},
	}
}

func printServers(w io.Writer, manager *session.Manager) {
	registry := manager.Registry()

	fmt.Fprintln(w, "Servers:")
	for _, conn := range manager.Connections() {
		info := conn.ServerInfo()
		fmt.Fprintf(w, "  %s (%s %s)\n", conn.Name(), info.Name, info.Version)
	}

	fmt.Fprintln(w, "\nTools:")
	for _, tool := range registry.Tools() {
		owner := ""
		if conn, ok := registry.LookupTool(tool.Name); ok {
			owner = conn.Name()
		}
		fmt.Fprintf(w, "  %s [%s]: %s\n", tool.Name, owner, tool.Description)
	}

	if prompts := registry.Prompts(); len(prompts) > 0 {
		fmt.Fprintln(w, "\nPrompts:")
		for _, prompt := range prompts {
			fmt.Fprintf(w, "  %s: %s\n", prompt.Name, prompt.Description)
		}
	}
	if resources := registry.Resources(); len(resources) > 0 {
		fmt.Fprintln(w, "\nResources:")
		for _, uri := range resources {
			fmt.Fprintf(w, "  %s\n", uri)
		}
	}
	if templates := registry.Templates(); len(templates) > 0 {
		fmt.Fprintln(w, "\nResource templates:")
		for _, tmpl := range templates {
			fmt.Fprintf(w, "  %s\n", tmpl.URITemplate)
		}
	}
}
