package cli

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/service/advisor"
)

func TestVersion(t *testing.T) {
	isolateEnv(t)

	code, out, _ := run(t, "version", "-o", "json")
	require.Equal(t, 0, code)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v["version"])

	code, out, _ = run(t, "version", "-o", "table")
	require.Equal(t, 0, code)
	assert.Equal(t, "mvadvisor version dev (commit: none)\n", out)
}

func TestOutputFormat_Rejected(t *testing.T) {
	isolateEnv(t)
	code, _, errOut := run(t, "version", "-o", "yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported output format")
}

func TestOutputFormat_FromEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MVADVISOR_OUTPUT", "table")
	code, out, _ := run(t, "version")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, "mvadvisor version"))
}

func TestAnalyze_Table(t *testing.T) {
	isolateEnv(t)
	_, schema, workload := fixtureFiles(t)

	code, out, errOut := run(t, "analyze", "--schema", schema, "--workload", workload, "-o", "table")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Candidates:")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "js_001")
	assert.Contains(t, out, "customer,item,store_sales")
	assert.Contains(t, out, "q1,q2")
}

func TestAnalyze_JSONWithOverrides(t *testing.T) {
	isolateEnv(t)
	_, schema, workload := fixtureFiles(t)

	code, out, errOut := run(t, "analyze", "--schema", schema, "--workload", workload,
		"--beta", "1", "--prune-d=false", "-o", "json")
	require.Equal(t, 0, code, errOut)

	var report advisor.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Options.Beta)
	assert.False(t, report.Options.PruneD)
	assert.Equal(t, 2, report.Summary.Candidates)
}

func TestAnalyze_EnvDefaults(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ECSE_PRUNE_D", "false")
	_, schema, workload := fixtureFiles(t)

	code, out, _ := run(t, "analyze", "--schema", schema, "--workload", workload, "-o", "json")
	require.Equal(t, 0, code)
	var report advisor.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Options.PruneD)
	assert.Equal(t, 2, report.Summary.Candidates)
}

func TestAnalyze_Errors(t *testing.T) {
	isolateEnv(t)
	dir, schema, workload := fixtureFiles(t)

	tests := []struct {
		name string
		args []string
		kind string
	}{
		{"missing workload file", []string{"--schema", schema, "--workload", filepath.Join(dir, "nope.yaml")}, "internal"},
		{"bad alpha", []string{"--schema", schema, "--workload", workload, "--alpha", "0"}, "validation"},
		{"save without store", []string{"--schema", schema, "--workload", workload, "--save"}, "validation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"analyze", "-o", "json"}, tt.args...)
			code, out, _ := run(t, args...)
			assert.Equal(t, 1, code)
			var e map[string]string
			require.NoError(t, json.Unmarshal([]byte(out), &e))
			assert.Equal(t, tt.kind, e["kind"])
			assert.NotEmpty(t, e["error"])
		})
	}
}

func TestRuns_SaveListShowDelete(t *testing.T) {
	isolateEnv(t)
	dir, schema, workload := fixtureFiles(t)
	storePath := filepath.Join(dir, "runs.sqlite")

	code, out, errOut := run(t, "--store", storePath, "analyze",
		"--schema", schema, "--workload", workload, "--save", "--label", "nightly", "-o", "json")
	require.Equal(t, 0, code, errOut)
	var report advisor.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.NotEmpty(t, report.RunID)

	code, out, _ = run(t, "--store", storePath, "runs", "list", "-o", "json")
	require.Equal(t, 0, code)
	var list struct {
		Runs []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"runs"`
		Total      int64 `json:"total"`
		NextOffset int   `json:"next_offset"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.EqualValues(t, 1, list.Total)
	assert.Equal(t, -1, list.NextOffset)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, report.RunID, list.Runs[0].ID)
	assert.Equal(t, "nightly", list.Runs[0].Label)

	code, out, _ = run(t, "--store", storePath, "runs", "list", "-o", "table")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "CANDIDATES")
	assert.Contains(t, out, report.RunID)

	code, out, _ = run(t, "--store", storePath, "runs", "show", report.RunID, "-o", "table")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "nightly")
	assert.Contains(t, out, "js_001")

	code, _, _ = run(t, "--store", storePath, "runs", "delete", report.RunID)
	require.Equal(t, 0, code)

	code, out, _ = run(t, "--store", storePath, "runs", "show", report.RunID, "-o", "json")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"not_found"`)
}

func TestSchemaInspect_File(t *testing.T) {
	isolateEnv(t)
	_, schema, _ := fixtureFiles(t)

	code, out, _ := run(t, "schema", "inspect", schema, "-o", "table")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "store_sales(ss_item_sk)")

	code, out, _ = run(t, "schema", "inspect", schema, "-o", "json")
	require.Equal(t, 0, code)
	var view schemaView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Len(t, view.Tables, 3)
	assert.Len(t, view.ForeignKeys, 2)

	code, out, _ = run(t, "schema", "inspect", schema, "--yaml")
	require.Equal(t, 0, code)
	s, err := catalog.Parse([]byte(out), catalog.LoadOptions{})
	require.NoError(t, err)
	assert.True(t, s.IsNotNull("store_sales", "ss_customer_sk"))
	assert.True(t, s.FindForeignKey("store_sales", "ss_item_sk", "item", "i_item_sk"))
}

func TestSchemaInspect_SQLite(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "warehouse.sqlite")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE item (i_item_sk INTEGER NOT NULL PRIMARY KEY)`,
		`CREATE TABLE store_sales (ss_item_sk INTEGER NOT NULL REFERENCES item(i_item_sk))`,
		`INSERT INTO item VALUES (1), (2)`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	code, out, errOut := run(t, "schema", "inspect", "--dialect", "sqlite", "--db", path, "--count-rows", "-o", "json")
	require.Equal(t, 0, code, errOut)
	var view schemaView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Tables, 2)
	counts := map[string]int64{}
	for _, tv := range view.Tables {
		counts[tv.Name] = tv.RowCount
	}
	assert.EqualValues(t, 2, counts["item"])
	require.Len(t, view.ForeignKeys, 1)
	assert.Equal(t, "item(i_item_sk)", view.ForeignKeys[0].To)
}

func TestSchemaInspect_ArgErrors(t *testing.T) {
	isolateEnv(t)
	code, _, errOut := run(t, "schema", "inspect", "-o", "table")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "a schema file or --db is required")

	code, _, errOut = run(t, "schema", "inspect", "x.yaml", "--db", "x.db", "-o", "table")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not both")
}

func TestApplyOptionFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addOptionFlags(fs)
	require.NoError(t, fs.Parse([]string{"--alpha", "3", "--union=false", "--prune-e", "--fact-tables", "a,b", "--max-cardinality-ratio", "12.5"}))

	base := advisor.DefaultOptions()
	base.Beta = 5
	opts, err := applyOptionFlags(fs, base)
	require.NoError(t, err)
	assert.Equal(t, 3, opts.Alpha)
	assert.Equal(t, 5, opts.Beta, "unset flags keep the base value")
	assert.False(t, opts.EnableUnion)
	assert.True(t, opts.PruneE)
	assert.True(t, opts.PruneD)
	assert.Equal(t, []string{"a", "b"}, opts.FactTables)
	assert.InDelta(t, 12.5, opts.MaxCardinalityRatio, 1e-9)

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	addOptionFlags(fs)
	require.NoError(t, fs.Parse([]string{"--workers", "0"}))
	_, err = applyOptionFlags(fs, advisor.DefaultOptions())
	require.Error(t, err)
}
