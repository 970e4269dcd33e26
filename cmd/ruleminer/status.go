package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/ruleminer/internal/storage"
	"github.com/dshills/ruleminer/pkg/types"
)

const statusRecentRuns = 5

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store statistics and the most recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				status, err := store.GetStatus(cmd.Context())
				if err != nil {
					return err
				}
				runs, err := store.LatestRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), status, runs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", statusRecentRuns, "number of recent runs to show")
	return cmd
}

func printStatus(w io.Writer, status *storage.StoreStatus, runs []*storage.RunInfo) {
	fmt.Fprintf(w, "schema %s, %s build, %.2f MB\n", status.SchemaVersion, status.BuildMode, status.SizeMB)
	fmt.Fprintf(w, "projects: %d  runs: %d  rules: %d  summaries: %d  dependencies: %d  embeddings: %d\n",
		status.Projects, status.Runs, status.Rules, status.Summaries, status.Dependencies, status.RuleEmbeddings)
	for _, s := range []types.RunStatus{
		types.RunInProgress, types.RunAnalyzing, types.RunReporting, types.RunCompleted, types.RunFailed,
	} {
		if n := status.RunsByStatus[s]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", s, n)
		}
	}
	if len(runs) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPROJECT\tSTATUS\tRULES\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.RunID, r.ProjectName, statusColor(r.Status).Sprint(string(r.Status)), r.RuleCount,
			r.CreatedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}
