package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/ruleminer/pkg/types"
)

func newResetCmd(opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every project, run, rule and graph row",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("%w: reset deletes all stored data; pass --yes to confirm", types.ErrConfiguration)
			}
			return withApp(opts, func(a *app) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				if err := store.Reset(cmd.Context()); err != nil {
					return err
				}
				a.logger.Info("storage.reset", "path", a.cfg.DBPath)
				fmt.Fprintln(cmd.OutOrStdout(), "store reset")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
