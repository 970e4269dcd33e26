package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/ruleminer/internal/pipeline"
	"github.com/dshills/ruleminer/pkg/types"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run [codebase-id...]",
		Short: "Analyze codebases and write one report per project",
		Long: `Run discovers, indexes and analyzes every configured codebase, or only
the ones named on the command line, then writes a markdown report per run.

A failing file never stops its project and a failing project never stops
the batch. Interrupting the command marks in-flight runs FAILED.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				codebases, err := a.selectedCodebases(args)
				if err != nil {
					return err
				}
				p, err := a.pipeline()
				if err != nil {
					return err
				}

				serveMetrics(cmd.Context(), metricsAddr, a.logger)

				summary, err := p.Run(cmd.Context(), codebases)
				if summary != nil {
					printSummary(cmd.OutOrStdout(), summary)
				}
				return err
			})
		},
	}
	addMetricsFlag(cmd.Flags(), &metricsAddr)
	return cmd
}

func statusColor(status types.RunStatus) *color.Color {
	switch status {
	case types.RunCompleted:
		return color.New(color.FgGreen)
	case types.RunFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func printSummary(w io.Writer, s *pipeline.Summary) {
	for _, skip := range s.Skipped {
		fmt.Fprintf(w, "%s %s: %s\n", color.YellowString("skipped"), skip.ID, skip.Reason)
	}
	for _, r := range s.Runs {
		fmt.Fprintf(w, "%s %s (run %s)\n", statusColor(r.Status).Sprint(string(r.Status)), r.ProjectName, r.RunID)
		if r.Revision != "" {
			fmt.Fprintf(w, "  revision: %s\n", r.Revision)
		}
		fmt.Fprintf(w, "  files: %d discovered, %d indexed, %d analyzed, %d failed\n",
			r.FilesDiscovered, r.FilesIndexed, r.FilesAnalyzed, r.FilesFailed)
		fmt.Fprintf(w, "  rules: %d\n", r.RulesStored)
		if r.ReportPath != "" {
			fmt.Fprintf(w, "  report: %s\n", r.ReportPath)
		}
		if r.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", color.RedString(r.Error))
		}
	}
	fmt.Fprintf(w, "%d/%d runs completed in %s\n", s.Completed(), len(s.Runs), s.Duration.Round(1e6))
}
