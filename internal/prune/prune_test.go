package prune

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/ecse"
	"mv-advisor/internal/joingraph"
)

const statsSchema = `
tables:
  store_sales:
    columns: [ss_item_sk, ss_customer_sk, ss_store_sk]
    role: fact
    row_count: 1000000
  web_sales:
    columns: [ws_item_sk]
    row_count: 500000
  item:
    columns: [i_item_sk]
    primary_key: [i_item_sk]
    row_count: 18000
  customer:
    columns: [c_customer_sk]
    primary_key: [c_customer_sk]
    row_count: 100000
  store:
    columns: [s_store_sk]
    primary_key: [s_store_sk]
`

var (
	instSS = joingraph.NewInstance("ss", "store_sales")
	instWS = joingraph.NewInstance("ws", "web_sales")
	instI  = joingraph.NewInstance("i", "item")
	instC  = joingraph.NewInstance("c", "customer")
	instS  = joingraph.NewInstance("s", "store")

	eItem  = mkEdge(instSS, "ss_item_sk", instI, "i_item_sk")
	eCust  = mkEdge(instSS, "ss_customer_sk", instC, "c_customer_sk")
	eStore = mkEdge(instSS, "ss_store_sk", instS, "s_store_sk")
	eM2M   = mkEdge(instSS, "ss_item_sk", instWS, "ws_item_sk")
)

func mkEdge(l joingraph.TableInstance, lc string, r joingraph.TableInstance, rc string) joingraph.EdgeKey {
	e, err := joingraph.NewEdgeKey(l, lc, r, rc, "=", joingraph.JoinInner)
	if err != nil {
		panic(err)
	}
	return e
}

func js(qbs []string, edges ...joingraph.EdgeKey) *ecse.JoinSet {
	set := joingraph.NewEdgeSet(edges...)
	return &ecse.JoinSet{
		Edges:     set,
		Instances: set.Instances(),
		QBIDs:     joingraph.NewQBSet(qbs...),
		FactTable: "store_sales",
		Lineage:   []string{"test"},
	}
}

func testSchema(t *testing.T) *catalog.Schema {
	t.Helper()
	s, err := catalog.Parse([]byte(statsSchema), catalog.LoadOptions{})
	require.NoError(t, err)
	return s
}

func onlyOpts(mod func(*Options)) Options {
	o := Options{Alpha: 2, Beta: 2, ManyToManyMinRows: 1000, MaxCardinalityRatio: 100}
	mod(&o)
	return o
}

func TestPrune_TableCount(t *testing.T) {
	small := js([]string{"q1", "q2"}, eItem)
	large := js([]string{"q1", "q2"}, eItem, eCust)

	res := New(onlyOpts(func(o *Options) { o.EnableB = true; o.Alpha = 3 })).Prune([]*ecse.JoinSet{small, large})

	require.Len(t, res.Kept, 1)
	assert.Same(t, large, res.Kept[0])
	require.Len(t, res.Pruned, 1)
	assert.Equal(t, HeuristicB, res.Pruned[0].Heuristic)
	assert.Equal(t, "table_count=2 < alpha=3", res.Pruned[0].Reason)
	assert.Equal(t, []string{"test", "pruned_B(tables=2<3)"}, res.Pruned[0].JoinSet.Lineage)
	assert.Equal(t, []string{"test"}, small.Lineage, "input is not modified")
}

func TestPrune_QBCount(t *testing.T) {
	res := New(onlyOpts(func(o *Options) { o.EnableC = true })).Prune([]*ecse.JoinSet{
		js([]string{"q1"}, eItem),
		js([]string{"q1", "q2"}, eCust),
	})

	require.Len(t, res.Kept, 1)
	require.Len(t, res.Pruned, 1)
	assert.Equal(t, "qbset_size=1 < beta=2", res.Pruned[0].Reason)
	assert.Contains(t, res.Pruned[0].JoinSet.Lineage, "pruned_C(qbs=1<2)")
}

func TestPrune_Maximality(t *testing.T) {
	tests := []struct {
		name       string
		sets       []*ecse.JoinSet
		wantKept   int
		wantPruned int
	}{
		{
			name: "edge subset with equal qbs",
			sets: []*ecse.JoinSet{
				js([]string{"q1", "q2"}, eItem),
				js([]string{"q1", "q2"}, eItem, eCust),
			},
			wantKept: 1, wantPruned: 1,
		},
		{
			name: "equal edges with qb subset",
			sets: []*ecse.JoinSet{
				js([]string{"q1"}, eItem, eCust),
				js([]string{"q1", "q2"}, eItem, eCust),
			},
			wantKept: 1, wantPruned: 1,
		},
		{
			name: "larger edges but fewer qbs",
			sets: []*ecse.JoinSet{
				js([]string{"q1", "q2"}, eItem),
				js([]string{"q2"}, eItem, eCust),
			},
			wantKept: 2,
		},
		{
			name: "identical sets do not dominate each other",
			sets: []*ecse.JoinSet{
				js([]string{"q1"}, eItem),
				js([]string{"q1"}, eItem),
			},
			wantKept: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := New(onlyOpts(func(o *Options) { o.EnableD = true })).Prune(tt.sets)
			assert.Len(t, res.Kept, tt.wantKept)
			assert.Len(t, res.Pruned, tt.wantPruned)
			for _, p := range res.Pruned {
				assert.Equal(t, "dominated by larger joinset with superset qbset", p.Reason)
				assert.Equal(t, "pruned_D(non-maximal)", p.JoinSet.Lineage[len(p.JoinSet.Lineage)-1])
			}
		})
	}
}

func TestPrune_MaximalityIsParetoFrontier(t *testing.T) {
	in := []*ecse.JoinSet{
		js([]string{"q1", "q2", "q3"}, eItem),
		js([]string{"q1", "q2"}, eItem, eCust),
		js([]string{"q1"}, eItem, eCust, eStore),
		js([]string{"q2"}, eItem, eCust),
		js([]string{"q3"}, eItem, eStore),
		js([]string{"q1", "q3"}, eItem, eStore),
	}
	res := New(onlyOpts(func(o *Options) { o.EnableD = true })).Prune(in)

	for _, x := range res.Kept {
		for _, y := range res.Kept {
			if x != y {
				assert.False(t, dominates(x, y), "%s dominates kept %s", x.Edges, y.Edges)
			}
		}
	}
	for _, p := range res.Pruned {
		found := false
		for _, k := range res.Kept {
			if dominates(k, p.JoinSet) {
				found = true
			}
		}
		assert.True(t, found, "pruned %s has a kept dominator", p.JoinSet.Edges)
	}
	assert.Len(t, res.Kept, 4)
}

func TestPrune_OrderAndStats(t *testing.T) {
	in := []*ecse.JoinSet{
		js([]string{"q1"}, eItem),                    // C
		js([]string{"q1", "q2"}, eItem, eCust),       // D (dominated by the next)
		js([]string{"q1", "q2", "q3"}, eItem, eCust), // kept
		js([]string{"q4", "q5"}, eStore),             // kept
	}
	res := New(DefaultOptions()).Prune(in)

	assert.Equal(t, Stats{Input: 4, PrunedC: 1, PrunedD: 1, Output: 2, Total: 2}, res.Stats)
	assert.Equal(t, HeuristicC, res.Pruned[0].Heuristic)
	assert.Equal(t, HeuristicD, res.Pruned[1].Heuristic)
}

func TestPrune_StatsHeuristicsNoOpWithoutStats(t *testing.T) {
	in := []*ecse.JoinSet{js([]string{"q1"}, eM2M)}
	res := New(onlyOpts(func(o *Options) { o.EnableA = true; o.EnableE = true })).Prune(in)
	assert.Len(t, res.Kept, 1)
	assert.Empty(t, res.Pruned)
}

func TestPrune_ManyToMany(t *testing.T) {
	schema := testSchema(t)
	opts := onlyOpts(func(o *Options) {
		o.EnableA = true
		o.Stats = schema
		o.Keys = schema
	})
	m2m := js([]string{"q1"}, eItem, eM2M)
	fkpk := js([]string{"q2"}, eItem, eCust)

	res := New(opts).Prune([]*ecse.JoinSet{m2m, fkpk})
	require.Len(t, res.Kept, 1)
	assert.Same(t, fkpk, res.Kept[0])
	require.Len(t, res.Pruned, 1)
	assert.Equal(t, HeuristicA, res.Pruned[0].Heuristic)
	assert.Contains(t, res.Pruned[0].Reason, "many-to-many")
	assert.Equal(t, 1, res.Stats.PrunedA)

	t.Run("small tables are kept", func(t *testing.T) {
		opts := opts
		opts.ManyToManyMinRows = 10_000_000
		res := New(opts).Prune([]*ecse.JoinSet{m2m})
		assert.Len(t, res.Kept, 1)
	})
	t.Run("missing statistic keeps the set", func(t *testing.T) {
		opts := opts
		opts.Stats = RowCounts{"store_sales": 1000000}
		res := New(opts).Prune([]*ecse.JoinSet{m2m})
		assert.Len(t, res.Kept, 1)
	})
}

func TestPrune_CardinalityRatio(t *testing.T) {
	schema := testSchema(t)
	opts := onlyOpts(func(o *Options) {
		o.EnableE = true
		o.Stats = schema
		o.Keys = schema
	})
	m2m := js([]string{"q1"}, eItem, eM2M)
	star := js([]string{"q2"}, eItem, eCust)

	res := New(opts).Prune([]*ecse.JoinSet{m2m, star})
	require.Len(t, res.Kept, 1)
	assert.Same(t, star, res.Kept[0])
	require.Len(t, res.Pruned, 1)
	assert.Equal(t, "estimated cardinality ratio 500000.0 > 100.0", res.Pruned[0].Reason)
	assert.Equal(t, "pruned_E(ratio=500000.0>100.0)", res.Pruned[0].JoinSet.Lineage[1])

	t.Run("ratio under threshold", func(t *testing.T) {
		opts := opts
		opts.MaxCardinalityRatio = 1e6
		assert.Len(t, New(opts).Prune([]*ecse.JoinSet{m2m}).Kept, 1)
	})
	t.Run("missing far-side count", func(t *testing.T) {
		opts := opts
		opts.Stats = RowCounts{"store_sales": 1000000, "item": 18000}
		assert.Len(t, New(opts).Prune([]*ecse.JoinSet{m2m}).Kept, 1)
	})
	t.Run("missing fact count", func(t *testing.T) {
		opts := opts
		opts.Stats = RowCounts{"web_sales": 500000}
		assert.Len(t, New(opts).Prune([]*ecse.JoinSet{m2m}).Kept, 1)
	})
}

func TestRowCounts(t *testing.T) {
	rc := RowCounts{"item": 10, "empty": 0}
	n, ok := rc.RowCount("ITEM")
	assert.True(t, ok)
	assert.EqualValues(t, 10, n)
	_, ok = rc.RowCount("empty")
	assert.False(t, ok)
	_, ok = rc.RowCount("missing")
	assert.False(t, ok)
}
