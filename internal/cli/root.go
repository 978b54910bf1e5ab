// Package cli implements the opsassist command tree: an interactive shell,
// one-shot questions, dashboard charts and dataset seeding.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsassist/opsassist/internal/agent"
	"github.com/opsassist/opsassist/internal/charts"
	"github.com/opsassist/opsassist/internal/session"
	"github.com/opsassist/opsassist/internal/storage"
)

type Assistant interface {
	Answer(ctx context.Context, question string, history []session.Turn, opts agent.Options) (agent.Answer, error)
}

type ChartRunner interface {
	Charts() []charts.Chart
	Run(ctx context.Context, key string) (charts.Table, error)
}

// Runtime is what the commands need from the wired application.
type Runtime struct {
	Assistant   Assistant
	Charts      ChartRunner
	HistorySize int
	Close       func() error
}

type Options struct {
	// Build constructs the runtime. Commands that do not talk to the engine
	// never call it.
	Build func(ctx context.Context) (*Runtime, error)
	// Store returns the object store used by seed --upload.
	Store    func(ctx context.Context) (storage.ObjectStore, error)
	Database string
	Table    string
	Stdin    io.ReadCloser
	Remote   RemoteOptions
}

func NewRootCommand(opts Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "opsassist",
		Short:         "Ask questions about support tickets in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, opts, false, false)
		},
	}
	root.AddCommand(
		newShellCommand(opts),
		newAskCommand(opts),
		newChartsCommand(opts),
		newSeedCommand(opts),
		newRemoteCommand(opts.Remote),
	)
	return root
}

func newShellCommand(opts Options) *cobra.Command {
	var showSQL, showRows bool
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive question session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, opts, showSQL, showRows)
		},
	}
	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print the generated SQL with each answer")
	cmd.Flags().BoolVar(&showRows, "rows", false, "Print the raw result rows with each answer")
	return cmd
}

func newAskCommand(opts Options) *cobra.Command {
	var showSQL, showRows bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		Example: `  opsassist ask "How many high priority tickets are there?"
  opsassist ask --sql --rows "Tickets per category"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeRuntime(runtime)

			question := strings.Join(args, " ")
			answer, err := runtime.Assistant.Answer(cmd.Context(), question, nil, agent.Options{
				IncludeRawRows: showRows,
				ReturnSQL:      showSQL,
			})
			if err != nil {
				return err
			}
			printAnswer(cmd.OutOrStdout(), answer, showSQL, showRows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print the generated SQL")
	cmd.Flags().BoolVar(&showRows, "rows", false, "Print the raw result rows")
	return cmd
}

func newChartsCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "charts [key]",
		Short: "List dashboard charts or run one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeRuntime(runtime)
			if runtime.Charts == nil {
				return fmt.Errorf("charts are not configured")
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, chart := range runtime.Charts.Charts() {
					_, _ = fmt.Fprintf(out, "%-28s %s\n", chart.Key, chart.Title)
				}
				return nil
			}
			table, err := runtime.Charts.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(out, table.Title)
			renderStrings(out, table.Columns, table.Rows)
			return nil
		},
	}
}

func build(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Build == nil {
		return nil, fmt.Errorf("runtime builder is not configured")
	}
	runtime, err := opts.Build(ctx)
	if err != nil {
		return nil, err
	}
	if runtime.Assistant == nil {
		closeRuntime(runtime)
		return nil, fmt.Errorf("assistant is not configured")
	}
	return runtime, nil
}

func closeRuntime(runtime *Runtime) {
	if runtime != nil && runtime.Close != nil {
		_ = runtime.Close()
	}
}
