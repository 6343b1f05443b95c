package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/service/advisor"
	"mv-advisor/internal/workload"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		schemaPath   string
		workloadPath string
		save         bool
		label        string
		lenient      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Derive candidate join sets from a workload",
		Long: `Builds a join graph per query block of the workload, runs the join-set
algebra per fact table and prunes the result. The workload may be a single
YAML/JSON file or a directory of them.`,
		Example: `  mvadvisor analyze --schema schema.yaml --workload workload/
  mvadvisor analyze --schema schema.yaml --workload q17.yaml --beta 1 --prune-d=false -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := catalog.LoadFile(schemaPath, catalog.LoadOptions{AllowUnknownFields: lenient})
			if err != nil {
				return err
			}
			wl, err := workload.Load(workloadPath, workload.LoadOptions{AllowUnknownFields: lenient})
			if err != nil {
				return err
			}
			opts, err := applyOptionFlags(cmd.Flags(), advisor.OptionsFromConfig(a.cfg.ECSE))
			if err != nil {
				return err
			}

			deps := advisor.Deps{Logger: a.logger}
			if save {
				st, err := a.openStore()
				if err != nil {
					return err
				}
				defer st.Close() //nolint:errcheck
				deps.Store = st
			}

			report, err := advisor.New(deps).Analyze(cmd.Context(), advisor.Request{
				Schema:   schema,
				Workload: wl,
				Options:  opts,
				Persist:  save,
				Label:    label,
				Source:   workloadPath,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.output == "json" {
				return printJSON(out, report)
			}
			printReport(out, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "Schema file (YAML or JSON)")
	cmd.Flags().StringVar(&workloadPath, "workload", "", "Workload file or directory")
	cmd.Flags().BoolVar(&save, "save", false, "Save the run to the run store")
	cmd.Flags().StringVar(&label, "label", "", "Label stored with a saved run")
	cmd.Flags().BoolVar(&lenient, "allow-unknown-fields", false, "Ignore unknown fields in the input documents")
	addOptionFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("workload")

	return cmd
}

func printReport(w io.Writer, r *advisor.Report) {
	pairs := [][2]string{
		{"Query blocks", strconv.Itoa(r.Summary.QueryBlocks)},
		{"Eligible", strconv.Itoa(r.Summary.EligibleQBs)},
		{"Fact tables", strconv.Itoa(r.Summary.FactTables)},
		{"Candidates", strconv.Itoa(r.Summary.Candidates)},
		{"Pruned", strconv.Itoa(r.Summary.Pruned)},
	}
	if r.RunID != "" {
		pairs = append([][2]string{{"Run", r.RunID}}, pairs...)
	}
	printDetail(w, pairs)

	var rows [][]string
	for _, f := range r.FactTables {
		for _, js := range f.JoinSets {
			rows = append(rows, []string{
				js.Name,
				f.FactTable,
				strings.Join(js.BaseTables(), ","),
				strconv.Itoa(js.Edges.Len()),
				js.QBIDs.String(),
			})
		}
	}
	if len(rows) > 0 {
		_, _ = fmt.Fprintln(w)
		printTable(w, []string{"name", "fact_table", "tables", "edges", "query_blocks"}, rows)
	}

	if len(r.Warnings) > 0 {
		_, _ = fmt.Fprintln(w)
		for _, warn := range r.Warnings {
			_, _ = fmt.Fprintf(w, "warning: %s\n", warn)
		}
	}
}
