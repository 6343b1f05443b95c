package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchemaYAML = `
tables:
  store_sales:
    columns:
      ss_item_sk: {nullable: false}
      ss_customer_sk: {nullable: false}
  item:
    columns: {i_item_sk: {nullable: false}}
    primary_key: [i_item_sk]
  customer:
    columns: {c_customer_sk: {nullable: false}}
    primary_key: [c_customer_sk]
foreign_keys:
  - {from_table: store_sales, from_column: ss_item_sk, to_table: item, to_column: i_item_sk}
  - {from_table: store_sales, from_column: ss_customer_sk, to_table: customer, to_column: c_customer_sk}
`

const testWorkloadYAML = `
query_blocks:
  - qb_id: q1
    sources: [{alias: ss, name: store_sales}, {alias: i, name: item}]
    join_edges:
      - {left: ss, left_col: ss_item_sk, right: i, right_col: i_item_sk}
  - qb_id: q2
    sources: [{alias: ss, name: store_sales}, {alias: i, name: item}, {alias: c, name: customer}]
    join_edges:
      - {left: ss, left_col: ss_item_sk, right: i, right_col: i_item_sk}
      - {left: ss, left_col: ss_customer_sk, right: c, right_col: c_customer_sk}
`

// isolateEnv clears every variable the configuration reads so the host
// environment cannot leak into a test.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "STORE_PATH", "LOG_LEVEL", "ENV", "CORS_ALLOWED_ORIGINS", "MVADVISOR_OUTPUT",
		"ECSE_ALPHA", "ECSE_BETA", "ECSE_MIN_INTERSECTION_EDGES", "ECSE_WORKERS",
		"ECSE_ENABLE_UNION", "ECSE_ENABLE_SUPERSET",
		"ECSE_PRUNE_A", "ECSE_PRUNE_B", "ECSE_PRUNE_C", "ECSE_PRUNE_D", "ECSE_PRUNE_E",
		"ECSE_MAX_CARDINALITY_RATIO", "ECSE_MANY_TO_MANY_MIN_ROWS", "ECSE_FACT_TABLES",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(k, "")
	}
}

// fixtureFiles writes the schema and workload documents into a temp dir.
func fixtureFiles(t *testing.T) (dir, schema, workload string) {
	t.Helper()
	dir = t.TempDir()
	schema = filepath.Join(dir, "schema.yaml")
	workload = filepath.Join(dir, "workload.yaml")
	require.NoError(t, os.WriteFile(schema, []byte(testSchemaYAML), 0o600))
	require.NoError(t, os.WriteFile(workload, []byte(testWorkloadYAML), 0o600))
	return dir, schema, workload
}

// run executes the CLI with an isolated environment and no .env file.
func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...)
	code = execute(full, &out, &errOut)
	return code, out.String(), errOut.String()
}
