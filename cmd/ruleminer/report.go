package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Regenerate the summary report of a stored run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				run, err := store.GetRun(cmd.Context(), runID)
				if err != nil {
					return fmt.Errorf("run %s: %w", runID, err)
				}
				project, err := store.GetProject(cmd.Context(), run.ProjectID)
				if err != nil {
					return fmt.Errorf("project %s: %w", run.ProjectID, err)
				}
				provider, err := a.provider()
				if err != nil {
					return err
				}

				path, err := a.reporter(store, provider).Generate(cmd.Context(), run.RunID, project.Name, nil)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "analysis run to report on")
	_ = cmd.MarkFlagRequired("run-id")
	return cmd
}
