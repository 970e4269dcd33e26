package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dshills/ruleminer/internal/searcher"
	"github.com/dshills/ruleminer/pkg/types"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		req  searcher.SearchRequest
		mode string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search extracted business rules",
		Long: `Search stored business rules by keyword, vector similarity or both.

Vector and hybrid modes need an embedding provider (RE_EMBEDDING_PROVIDER);
hybrid falls back to keyword search without one.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			req.Mode = searcher.SearchMode(mode)
			switch req.Mode {
			case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeKeyword:
			default:
				return fmt.Errorf("%w: --mode must be hybrid, vector or keyword, got %q", types.ErrConfiguration, mode)
			}

			return withApp(opts, func(a *app) error {
				s, err := a.searcher()
				if err != nil {
					return err
				}
				resp, err := s.Search(cmd.Context(), req)
				if err != nil {
					return err
				}
				printResults(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&mode, "mode", string(searcher.SearchModeHybrid), "search mode: hybrid, vector or keyword")
	fs.IntVarP(&req.Limit, "limit", "n", searcher.DefaultLimit, "maximum results")
	fs.StringVar(&req.ProjectID, "project", "", "only rules of this project")
	fs.StringVar(&req.RunID, "run", "", "only rules of this run")
	fs.StringVar(&req.FilePattern, "files", "", "only rules from files matching this glob (e.g. **/billing/*.py)")
	return cmd
}

func printResults(w io.Writer, resp *searcher.SearchResponse) {
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "no matching rules")
		return
	}
	bold := color.New(color.Bold)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%d. %s  %s\n", r.Rank, bold.Sprint(r.Rule.Title), color.CyanString(r.Rule.FilePath))
		if r.Rule.Description != "" {
			fmt.Fprintf(w, "   %s\n", r.Rule.Description)
		}
	}
	fmt.Fprintf(w, "%d results (%s, %s)\n", resp.TotalResults, resp.SearchMode, resp.Duration.Round(1e3))
}
