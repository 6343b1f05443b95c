package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/catalog/introspect"
	"mv-advisor/internal/domain"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema documents and databases",
	}
	cmd.AddCommand(newSchemaInspectCmd(a))
	return cmd
}

type tableView struct {
	Name       string   `json:"name"`
	Role       string   `json:"role,omitempty"`
	Columns    []string `json:"columns"`
	NotNull    []string `json:"not_null"`
	PrimaryKey []string `json:"primary_key,omitempty"`
	RowCount   int64    `json:"row_count,omitempty"`
}

type foreignKeyView struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Enforced    bool   `json:"enforced"`
	Recommended bool   `json:"recommended,omitempty"`
}

type schemaView struct {
	Tables      []tableView      `json:"tables"`
	ForeignKeys []foreignKeyView `json:"foreign_keys"`
}

func newSchemaInspectCmd(a *app) *cobra.Command {
	var (
		dialect      string
		dbPath       string
		duckdbSchema string
		countRows    bool
		factTables   []string
		emitYAML     bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [schema-file]",
		Short: "Show the tables, keys and row counts of a schema",
		Long: `Reads a schema document, or introspects a live SQLite or DuckDB database
when --db is given. With --yaml the result is written as a schema document
that analyze accepts.`,
		Example: `  mvadvisor schema inspect schema.yaml
  mvadvisor schema inspect --dialect duckdb --db tpcds.duckdb --count-rows --yaml > schema.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				schema *catalog.Schema
				err    error
			)
			switch {
			case dbPath != "" && len(args) > 0:
				return domain.ErrValidation("give either a schema file or --db, not both")
			case dbPath != "":
				schema, err = introspectDB(cmd, dialect, dbPath, introspect.Options{
					Schema:     duckdbSchema,
					FactTables: factTables,
					CountRows:  countRows,
				})
			case len(args) == 1:
				schema, err = catalog.LoadFile(args[0], catalog.LoadOptions{})
			default:
				return domain.ErrValidation("a schema file or --db is required")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case emitYAML:
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(catalog.ToDocument(schema)); err != nil {
					return fmt.Errorf("encode schema: %w", err)
				}
				return enc.Close()
			case a.output == "json":
				return printJSON(out, toSchemaView(schema))
			}
			printSchema(out, toSchemaView(schema))
			return nil
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "duckdb", "Database dialect for --db (sqlite, duckdb)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database file to introspect")
	cmd.Flags().StringVar(&duckdbSchema, "db-schema", "main", "DuckDB schema to read")
	cmd.Flags().BoolVar(&countRows, "count-rows", false, "Record each table's row count")
	cmd.Flags().StringSliceVar(&factTables, "fact-tables", nil, "Tables to tag with the fact role")
	cmd.Flags().BoolVar(&emitYAML, "yaml", false, "Write the schema as a YAML document")

	return cmd
}

func introspectDB(cmd *cobra.Command, dialect, path string, opts introspect.Options) (*catalog.Schema, error) {
	d, err := introspect.ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	db, err := introspect.Open(d, path)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck
	return introspect.New(db, d).Load(cmd.Context(), opts)
}

func toSchemaView(s *catalog.Schema) schemaView {
	v := schemaView{Tables: []tableView{}, ForeignKeys: []foreignKeyView{}}
	for _, t := range s.Tables() {
		tv := tableView{
			Name:       t.Name,
			Role:       string(t.Role),
			Columns:    make([]string, 0, len(t.Columns)),
			NotNull:    []string{},
			PrimaryKey: t.PrimaryKey,
			RowCount:   t.RowCount,
		}
		for _, c := range t.Columns {
			tv.Columns = append(tv.Columns, c.Name)
			if !c.Nullable {
				tv.NotNull = append(tv.NotNull, c.Name)
			}
		}
		v.Tables = append(v.Tables, tv)
	}
	for _, fk := range s.ForeignKeys() {
		v.ForeignKeys = append(v.ForeignKeys, foreignKeyView{
			From:        fk.FromTable + "(" + strings.Join(fk.FromColumns, ",") + ")",
			To:          fk.ToTable + "(" + strings.Join(fk.ToColumns, ",") + ")",
			Enforced:    fk.Enforced,
			Recommended: fk.Recommended,
		})
	}
	return v
}

func printSchema(w io.Writer, v schemaView) {
	rows := make([][]string, len(v.Tables))
	for i, t := range v.Tables {
		rowCount := "-"
		if t.RowCount > 0 {
			rowCount = strconv.FormatInt(t.RowCount, 10)
		}
		role := t.Role
		if role == "" {
			role = "-"
		}
		rows[i] = []string{
			t.Name,
			role,
			strconv.Itoa(len(t.Columns)),
			strconv.Itoa(len(t.NotNull)),
			strings.Join(t.PrimaryKey, ","),
			rowCount,
		}
	}
	printTable(w, []string{"table", "role", "columns", "not_null", "primary_key", "rows"}, rows)

	if len(v.ForeignKeys) == 0 {
		return
	}
	fkRows := make([][]string, len(v.ForeignKeys))
	for i, fk := range v.ForeignKeys {
		fkRows[i] = []string{fk.From, fk.To, strconv.FormatBool(fk.Enforced)}
	}
	_, _ = fmt.Fprintln(w)
	printTable(w, []string{"from", "to", "enforced"}, fkRows)
}
