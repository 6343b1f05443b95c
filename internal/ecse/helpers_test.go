package ecse

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/invariance"
	"mv-advisor/internal/joingraph"
)

// schemaDoc returns a small star schema. The nullability of ss_customer_sk
// is the knob the superset tests turn.
func schemaDoc(customerNotNull bool) string {
	return fmt.Sprintf(`
tables:
  store_sales:
    columns:
      ss_item_sk: {nullable: false}
      ss_customer_sk: {nullable: %t}
      ss_sold_date_sk: {nullable: true}
      ss_store_sk: {nullable: false}
  item:
    columns: {i_item_sk: {nullable: false}}
    primary_key: [i_item_sk]
  customer:
    columns: {c_customer_sk: {nullable: false}, c_current_addr_sk: {nullable: false}}
    primary_key: [c_customer_sk]
  customer_address:
    columns: {ca_address_sk: {nullable: false}}
    primary_key: [ca_address_sk]
  date_dim:
    columns: {d_date_sk: {nullable: false}}
    primary_key: [d_date_sk]
  store:
    columns: {s_store_sk: {nullable: false}}
    primary_key: [s_store_sk]
foreign_keys:
  - {from_table: store_sales, from_column: ss_item_sk, to_table: item, to_column: i_item_sk}
  - {from_table: store_sales, from_column: ss_customer_sk, to_table: customer, to_column: c_customer_sk, enforced: false, recommended: true}
  - {from_table: store_sales, from_column: ss_sold_date_sk, to_table: date_dim, to_column: d_date_sk}
  - {from_table: store_sales, from_column: ss_store_sk, to_table: store, to_column: s_store_sk}
  - {from_table: customer, from_column: c_current_addr_sk, to_table: customer_address, to_column: ca_address_sk}
`, !customerNotNull)
}

func testSchema(t *testing.T, customerNotNull bool) *catalog.Schema {
	t.Helper()
	s, err := catalog.Parse([]byte(schemaDoc(customerNotNull)), catalog.LoadOptions{})
	require.NoError(t, err)
	return s
}

func testChecker(t *testing.T, customerNotNull bool) *invariance.Checker {
	t.Helper()
	return invariance.NewChecker(testSchema(t, customerNotNull))
}

var (
	instSS = joingraph.NewInstance("ss", "store_sales")
	instI  = joingraph.NewInstance("i", "item")
	instC  = joingraph.NewInstance("c", "customer")
	instCA = joingraph.NewInstance("ca", "customer_address")
	instD  = joingraph.NewInstance("d", "date_dim")
	instS  = joingraph.NewInstance("s", "store")
)

func mkEdge(l joingraph.TableInstance, lc string, r joingraph.TableInstance, rc string) joingraph.EdgeKey {
	e, err := joingraph.NewEdgeKey(l, lc, r, rc, "=", joingraph.JoinInner)
	if err != nil {
		panic(err)
	}
	return e
}

var (
	eItem = mkEdge(instSS, "ss_item_sk", instI, "i_item_sk")
	eCust = mkEdge(instSS, "ss_customer_sk", instC, "c_customer_sk")
	eDate = mkEdge(instSS, "ss_sold_date_sk", instD, "d_date_sk")
	eStor = mkEdge(instSS, "ss_store_sk", instS, "s_store_sk")
	eAddr = mkEdge(instC, "c_current_addr_sk", instCA, "ca_address_sk")
)

func js(qbs []string, edges ...joingraph.EdgeKey) *JoinSet {
	set := joingraph.NewEdgeSet(edges...)
	return &JoinSet{
		Edges:     set,
		Instances: set.Instances(),
		QBIDs:     joingraph.NewQBSet(qbs...),
		FactTable: "store_sales",
		Lineage:   []string{"test"},
	}
}

func qb(ids ...string) []string { return ids }

func findByEdges(sets []*JoinSet, edges ...joingraph.EdgeKey) *JoinSet {
	want := joingraph.NewEdgeSet(edges...)
	for _, s := range sets {
		if s.Edges.Equal(want) {
			return s
		}
	}
	return nil
}

// lineagePair parses the pair indices out of an "intersect(i,j)" or
// "union(i,j)" lineage entry.
func lineagePair(entry string, i, j *int) (int, error) {
	return fmt.Sscanf(entry[strings.IndexByte(entry, '('):], "(%d,%d)", i, j)
}
