package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/ruleminer/internal/config"
	"github.com/dshills/ruleminer/internal/mcp"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				p, err := a.pipeline()
				if err != nil {
					return err
				}
				provider, err := a.provider()
				if err != nil {
					return err
				}
				s, err := a.searcher()
				if err != nil {
					return err
				}

				mcp.ServerVersion = version
				srv, err := mcp.NewServer(mcp.Deps{
					Storage:  store,
					Analyzer: p,
					Reporter: a.reporter(store, provider),
					Searcher: s,
					Codebases: func() ([]config.Codebase, error) {
						return config.LoadCodebases(a.cfg.CodebaseConfig)
					},
					Logger: a.logger,
				})
				if err != nil {
					return err
				}

				serveMetrics(cmd.Context(), metricsAddr, a.logger)
				return srv.Serve(cmd.Context())
			})
		},
	}
	addMetricsFlag(cmd.Flags(), &metricsAddr)
	return cmd
}
