package joingraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/domain"
)

func testCatalog(t *testing.T) *catalog.Schema {
	t.Helper()
	col := func(name string, nullable bool) catalog.Column { return catalog.Column{Name: name, Nullable: nullable} }
	s, err := catalog.New(
		[]catalog.Table{
			{Name: "store_sales", Columns: []catalog.Column{col("ss_item_sk", false), col("ss_customer_sk", false), col("ss_sold_date_sk", true)}},
			{Name: "item", Columns: []catalog.Column{col("i_item_sk", false)}, PrimaryKey: []string{"i_item_sk"}},
			{Name: "customer", Columns: []catalog.Column{col("c_customer_sk", false)}, PrimaryKey: []string{"c_customer_sk"}},
			{Name: "date_dim", Columns: []catalog.Column{col("d_date_sk", false)}, PrimaryKey: []string{"d_date_sk"}},
			{Name: "orders", Columns: []catalog.Column{col("o_cust", false)}, Role: catalog.RoleFact},
			{Name: "lines", Columns: []catalog.Column{col("l_order", false), col("l_item", false)}},
		},
		[]catalog.ForeignKey{
			{FromTable: "store_sales", FromColumns: []string{"ss_item_sk"}, ToTable: "item", ToColumns: []string{"i_item_sk"}, Enforced: true},
			{FromTable: "store_sales", FromColumns: []string{"ss_customer_sk"}, ToTable: "customer", ToColumns: []string{"c_customer_sk"}, Enforced: true},
			{FromTable: "lines", FromColumns: []string{"l_item"}, ToTable: "item", ToColumns: []string{"i_item_sk"}, Enforced: true},
		},
	)
	require.NoError(t, err)
	return s
}

func base(alias, name string) Source { return Source{Alias: alias, Name: name, Kind: SourceBase} }

func eq(l, lc, r, rc string) JoinEdge {
	return JoinEdge{Left: l, LeftCol: lc, Right: r, RightCol: rc, Op: "=", JoinType: JoinInner}
}

func TestBuild_Eligible(t *testing.T) {
	qb := QueryBlock{
		ID:      "q1",
		Sources: []Source{base("ss", "store_sales"), base("i", "item"), {Alias: "x", Name: "cte1", Kind: SourceCTERef}},
		Edges: []JoinEdge{
			eq("ss", "ss_item_sk", "i", "i_item_sk"),
			eq("i", "i_item_sk", "ss", "ss_item_sk"),
			eq("ss", "ss_item_sk", "x", "k"),
		},
	}
	g, err := Build(qb, testCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, "q1", g.QBID())
	assert.Len(t, g.Vertices(), 2)
	assert.Equal(t, 1, g.Edges().Len(), "duplicate predicates collapse, non-base edges are dropped")
	assert.Equal(t, []string{"x(cte_ref)"}, g.NonBaseSources())

	el := g.Eligibility()
	assert.True(t, el.Eligible)
	assert.Equal(t, "OK", el.Reason)
	assert.True(t, el.HasNonBaseSources)
}

func TestBuild_KeepsAliasSpelling(t *testing.T) {
	qb := QueryBlock{
		ID:      "q1",
		Sources: []Source{base("SS", "store_sales"), base("Itm", "item")},
		Edges:   []JoinEdge{eq("ss", "ss_item_sk", "ITM", "i_item_sk")},
	}
	g, err := Build(qb, testCatalog(t))
	require.NoError(t, err)

	v := g.Vertices()
	require.Len(t, v, 2)
	assert.Equal(t, "itm", v[0].ID)
	assert.Equal(t, "Itm", v[0].DisplayID)
	assert.Equal(t, "SS", v[1].DisplayID)
	assert.Equal(t, "item Itm", v[0].String())
	assert.True(t, g.Eligibility().Eligible)
}

func TestBuild_ResolvesUnqualifiedEndpoints(t *testing.T) {
	cat := testCatalog(t)
	sources := []Source{base("ss", "store_sales"), base("i", "item"), base("d1", "date_dim"), base("d2", "date_dim")}

	g, err := Build(QueryBlock{
		ID:      "q1",
		Sources: sources[:2],
		Edges:   []JoinEdge{eq("", "ss_item_sk", "i", "i_item_sk")},
	}, cat)
	require.NoError(t, err)
	want := mustEdge(t, ss, "ss_item_sk", item, "i_item_sk", "=", JoinInner)
	assert.True(t, g.Edges().Equal(NewEdgeSet(want)), "column only exists on store_sales")

	g, err = Build(QueryBlock{
		ID:      "q2",
		Sources: []Source{base("ss", "store_sales"), {Alias: "x", Name: "cte1", Kind: SourceCTERef}},
		Edges:   []JoinEdge{eq("", "anything", "x", "k")},
	}, cat)
	require.NoError(t, err, "a single base table takes every unqualified column")
	assert.Equal(t, 0, g.Edges().Len())

	tests := []struct {
		name string
		edge JoinEdge
		want string
	}{
		{"self join", eq("ss", "ss_sold_date_sk", "", "d_date_sk"), "ambiguous"},
		{"unknown column", eq("", "zzz", "i", "i_item_sk"), "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(QueryBlock{ID: "q3", Sources: sources, Edges: []JoinEdge{tt.edge}}, cat)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuild_Ineligible(t *testing.T) {
	tests := []struct {
		name         string
		qb           QueryBlock
		reason       string
		disconnected bool
	}{
		{
			name:   "single table",
			qb:     QueryBlock{ID: "q", Sources: []Source{base("ss", "store_sales")}},
			reason: "Insufficient base table instances (1)",
		},
		{
			name:   "unknown table excluded",
			qb:     QueryBlock{ID: "q", Sources: []Source{base("ss", "store_sales"), base("z", "zzz")}, Edges: []JoinEdge{eq("ss", "a", "z", "b")}},
			reason: "Insufficient base table instances (1)",
		},
		{
			name:   "no edges",
			qb:     QueryBlock{ID: "q", Sources: []Source{base("ss", "store_sales"), base("i", "item")}},
			reason: "No join edges between base tables",
		},
		{
			name: "disconnected",
			qb: QueryBlock{
				ID:      "q",
				Sources: []Source{base("ss", "store_sales"), base("i", "item"), base("d", "date_dim")},
				Edges:   []JoinEdge{eq("ss", "ss_item_sk", "i", "i_item_sk")},
			},
			reason:       "Join graph is disconnected",
			disconnected: true,
		},
		{
			name: "left edges only reach forward",
			qb: QueryBlock{
				ID:      "q",
				Sources: []Source{base("ss", "store_sales"), base("i", "item"), base("c", "customer")},
				Edges: []JoinEdge{
					{Left: "i", LeftCol: "i_item_sk", Right: "ss", RightCol: "ss_item_sk", Op: "=", JoinType: JoinLeft},
					{Left: "c", LeftCol: "c_customer_sk", Right: "ss", RightCol: "ss_customer_sk", Op: "=", JoinType: JoinLeft},
				},
			},
			reason:       "Join graph is disconnected",
			disconnected: true,
		},
	}
	cat := testCatalog(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.qb, cat)
			require.NoError(t, err)
			el := g.Eligibility()
			assert.False(t, el.Eligible)
			assert.Equal(t, tt.reason, el.Reason)
			assert.Equal(t, tt.disconnected, el.Disconnected)
		})
	}
}

func TestBuild_LeftChainIsConnected(t *testing.T) {
	qb := QueryBlock{
		ID:      "q",
		Sources: []Source{base("ss", "store_sales"), base("i", "item"), base("c", "customer")},
		Edges: []JoinEdge{
			{Left: "ss", LeftCol: "ss_item_sk", Right: "i", RightCol: "i_item_sk", Op: "=", JoinType: JoinLeft},
			{Left: "c", LeftCol: "c_customer_sk", Right: "ss", RightCol: "ss_customer_sk", Op: "=", JoinType: JoinRight},
		},
	}
	g, err := Build(qb, testCatalog(t))
	require.NoError(t, err)
	assert.True(t, g.Connected(), "ss reaches both i and c")
}

func TestBuild_MalformedEdge(t *testing.T) {
	qb := QueryBlock{
		ID:      "q7",
		Sources: []Source{base("ss", "store_sales"), base("i", "item")},
		Edges:   []JoinEdge{eq("ss", "ss_item_sk", "item_alias", "i_item_sk")},
	}
	_, err := Build(qb, testCatalog(t))
	require.Error(t, err)

	var me *domain.MalformedEdgeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "item_alias", me.Instance)
	assert.Contains(t, me.Scope, "q7")
}

func TestBuild_DuplicateAlias(t *testing.T) {
	qb := QueryBlock{ID: "q", Sources: []Source{base("a", "item"), base("A", "customer")}}
	_, err := Build(qb, testCatalog(t))
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestFactTableDetector(t *testing.T) {
	cat := testCatalog(t)
	d := NewFactTableDetector(cat, nil)

	tests := []struct {
		name      string
		instances []TableInstance
		want      string
		ok        bool
	}{
		{"role wins", []TableInstance{NewInstance("o", "orders"), NewInstance("ss", "store_sales")}, "orders", true},
		{"known list", []TableInstance{NewInstance("ss", "store_sales"), NewInstance("i", "item")}, "store_sales", true},
		{"most foreign keys", []TableInstance{NewInstance("l", "lines"), NewInstance("i", "item")}, "lines", true},
		{"none", []TableInstance{NewInstance("i", "item"), NewInstance("c", "customer")}, "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Detect(tt.instances)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	custom := NewFactTableDetector(cat, []string{"Customer"})
	got, ok := custom.Detect([]TableInstance{NewInstance("i", "item"), NewInstance("c", "customer")})
	require.True(t, ok)
	assert.Equal(t, "customer", got)
}

func TestCollection(t *testing.T) {
	cat := testCatalog(t)
	c := NewCollection(NewFactTableDetector(cat, nil))

	build := func(id string, edges ...JoinEdge) *Graph {
		g, err := Build(QueryBlock{
			ID:      id,
			Sources: []Source{base("ss", "store_sales"), base("i", "item"), base("c", "customer")},
			Edges:   edges,
		}, cat)
		require.NoError(t, err)
		return g
	}
	both := []JoinEdge{eq("ss", "ss_item_sk", "i", "i_item_sk"), eq("ss", "ss_customer_sk", "c", "c_customer_sk")}

	it1, ok := c.Add(build("q1", both...), "", false)
	require.True(t, ok)
	it2, ok := c.Add(build("q2", both[1], both[0]), "", false)
	require.True(t, ok)
	assert.Same(t, it1, it2)
	assert.Equal(t, []string{"q1", "q2"}, it1.QBIDs.IDs())

	_, ok = c.Add(build("q2", both...), "", false)
	require.True(t, ok)
	assert.Equal(t, 2, it1.QBIDs.Len(), "re-adding a query block is idempotent")

	it3, ok := c.Add(build("q3", both...), "rollup(i.i_category)", true)
	require.True(t, ok)
	assert.NotSame(t, it1, it3, "grouping signature separates classes")

	_, ok = c.Add(build("q4", both[0]), "", false)
	assert.False(t, ok, "disconnected graph is rejected")

	assert.Equal(t, []string{"store_sales"}, c.FactTables())
	assert.Len(t, c.ItemsByFact("store_sales"), 2)
	assert.Len(t, c.Items(), 2)
	assert.Equal(t, "store_sales", it1.FactTable)
}
