package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/guillermoBallester/nlquery/internal/config"
	"github.com/spf13/cobra"
)

var errRejected = errors.New("query rejected")

// offlineApp wires the gate and history log without touching the store.
func offlineApp(cmd *cobra.Command, fl *cliFlags) (*app, error) {
	o := fl.overrides(cmd.Flags())
	o.SkipDatabase = true
	cfg, err := config.Load(o)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newApp(cmd.Context(), cfg, newLogger(cfg.LogLevel), false)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newValidateCmd(fl *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check SQL against the allow-list without running it",
		Long:  "Print the gate verdict for a statement. Exits non-zero when the statement is rejected.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := offlineApp(cmd, fl)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			verdict := a.query.Validate(cmd.Context(), strings.Join(args, " "))
			if err := printJSON(cmd.OutOrStdout(), verdict); err != nil {
				return err
			}
			if !verdict.Allowed {
				return fmt.Errorf("%w at %s: %s", errRejected, verdict.Stage, verdict.Reason)
			}
			return nil
		},
	}
}

func newHistoryCmd(fl *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the query history",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print recorded attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := offlineApp(cmd, fl)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			records := a.query.History(cmd.Context())
			if limit > 0 && limit < len(records) {
				records = records[:limit]
			}
			if records == nil {
				return printJSON(cmd.OutOrStdout(), []any{})
			}
			return printJSON(cmd.OutOrStdout(), records)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "print at most this many records")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Irreversibly delete every recorded attempt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear history without --yes")
			}
			a, err := offlineApp(cmd, fl)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.query.ClearHistory(cmd.Context()); err != nil {
				return fmt.Errorf("clearing history: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return err
		},
	}
	clearCmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}
