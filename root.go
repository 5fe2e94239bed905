package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nconklindev/custprep/internal/config"
	"github.com/nconklindev/custprep/internal/preparer"
	"github.com/nconklindev/custprep/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custprep",
		Short: "Prepare the e-commerce customer dataset",
		Long: `Download the e-commerce customers CSV, drop its three leading columns,
keep customers with more than one year of membership, drop "Time on Website"
and write the result to data/customer.csv.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, os.Stderr)
		},
	}

	flags := cmd.Flags()
	flags.String("source", preparer.DefaultSource, "CSV source: http(s) URL, file URL or local path")
	flags.String("output", preparer.DefaultOutput, "output file, .csv or .xlsx")
	flags.Bool("tui", false, "show an interactive progress view")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	// The progress view owns the terminal while it runs.
	if cfg.TUI {
		logOut = io.Discard
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	opts := preparer.Options{Source: cfg.Source, Output: cfg.Output}

	if cfg.TUI {
		return runTUI(ctx, opts)
	}

	result, err := preparer.Prepare(ctx, opts, nil)
	if err != nil {
		slog.Error("prepare failed", "category", preparer.Category(err), "error", err)
		return err
	}

	slog.Info("dataset prepared",
		"source", result.Source,
		"output", result.OutputFile,
		"columns", len(result.Columns),
		"rowsRead", result.RowsRead,
		"rowsWritten", result.RowsWritten,
	)
	return nil
}

func runTUI(ctx context.Context, opts preparer.Options) error {
	p := tea.NewProgram(ui.NewModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return err
	}

	if m, ok := final.(ui.Model); ok && m.Err() != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", preparer.Category(m.Err()), m.Err())
		return m.Err()
	}
	return nil
}
