package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mv-advisor/internal/domain"
	"mv-advisor/internal/service/advisor"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List, show and delete saved runs",
	}
	cmd.AddCommand(newRunsListCmd(a))
	cmd.AddCommand(newRunsShowCmd(a))
	cmd.AddCommand(newRunsDeleteCmd(a))
	return cmd
}

func newRunsListCmd(a *app) *cobra.Command {
	var page domain.Page

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			runs, total, err := st.List(cmd.Context(), page)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.output == "json" {
				items := make([]map[string]interface{}, len(runs))
				for i, r := range runs {
					items[i] = map[string]interface{}{
						"id":         r.ID,
						"label":      r.Label,
						"source":     r.Source,
						"summary":    r.Summary,
						"created_at": r.CreatedAt,
					}
				}
				return printJSON(out, map[string]interface{}{
					"runs":        items,
					"total":       total,
					"next_offset": page.NextOffset(total),
				})
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID,
					r.Label,
					r.CreatedAt.Local().Format(time.DateTime),
					strconv.Itoa(r.Summary.QueryBlocks),
					strconv.Itoa(r.Summary.Candidates),
					strconv.Itoa(r.Summary.Pruned),
				}
			}
			printTable(out, []string{"id", "label", "created", "query_blocks", "candidates", "pruned"}, rows)
			if next := page.NextOffset(total); next > 0 {
				_, _ = fmt.Fprintf(out, "\n%d of %d shown; next page: --offset %d\n", len(runs), total, next)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page.Size, "max-results", domain.DefaultPageSize, "Maximum runs to list")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "Runs to skip")
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the report of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			run, report, err := advisor.New(advisor.Deps{Logger: a.logger, Store: st}).GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.output == "json" {
				return printJSON(out, report)
			}
			printDetail(out, [][2]string{
				{"Label", run.Label},
				{"Source", run.Source},
				{"Created", run.CreatedAt.Local().Format(time.DateTime)},
			})
			printReport(out, report)
			return nil
		},
	}
}

func newRunsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
