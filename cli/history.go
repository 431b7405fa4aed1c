package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/mcpchat/core"
	"github.com/petal-labs/mcpchat/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded chat transcripts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	list.Flags().IntP("limit", "n", 20, "Maximum sessions to list (0 = all)")

	show := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session's transcript",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}

	cmd.AddCommand(list, show)
	return cmd
}

func openConfiguredHistory(cmd *cobra.Command) (history.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.History.Store == "" {
		return nil, exitError(exitConfig, "%v", errNoHistoryStore)
	}
	store, err := openHistoryStore(cfg)
	if err != nil {
		return nil, exitError(exitRuntime, "opening transcript store: %v", err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	store, err := openConfiguredHistory(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	sessions, err := store.Sessions(cmd.Context(), limit)
	if err != nil {
		return exitError(exitRuntime, "listing sessions: %v", err)
	}
	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No recorded sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %s  %d message(s)\n", s.ID, s.Updated.Local().Format(time.DateTime), s.Messages)
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openConfiguredHistory(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	entries, err := store.Transcript(cmd.Context(), args[0])
	if errors.Is(err, history.ErrSessionNotFound) {
		return exitError(exitNotFound, "session %q not found", args[0])
	}
	if err != nil {
		return exitError(exitRuntime, "reading transcript: %v", err)
	}
	for _, entry := range entries {
		printEntry(cmd.OutOrStdout(), entry)
	}
	return nil
}

func printEntry(w io.Writer, entry history.Entry) {
	for _, block := range entry.Message.Content {
		switch b := block.(type) {
		case core.TextBlock:
			fmt.Fprintf(w, "[%d] %s: %s\n", entry.Seq, entry.Message.Role, b.Text)
		case core.ToolUseBlock:
			fmt.Fprintf(w, "[%d] %s: tool_use %s %s\n", entry.Seq, entry.Message.Role, b.Name, core.MarshalInput(b.Input))
		case core.ToolResultBlock:
			parts := make([]string, 0, len(b.Content))
			for _, item := range b.Content {
				if item.Text != "" {
					parts = append(parts, item.Text)
				}
			}
			label := "tool_result"
			if b.IsError {
				label = "tool_error"
			}
			fmt.Fprintf(w, "[%d] %s: %s %s\n", entry.Seq, entry.Message.Role, label, strings.Join(parts, " "))
		}
	}
}
