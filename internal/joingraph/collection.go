package joingraph

import "slices"

// Item is one join-set class: all eligible query blocks sharing an edge set
// and grouping signature.
type Item struct {
	Edges              EdgeSet
	Instances          []TableInstance
	QBIDs              QBSet
	FactTable          string
	GroupingSignature  string
	HasRollupSemantics bool
}

// Collection merges per-QB graphs into join-set classes and buckets them by
// fact table. Items keep insertion order, so feeding graphs in workload order
// gives deterministic output.
type Collection struct {
	detector *FactTableDetector
	byKey    map[string]*Item
	items    []*Item
	byFact   map[string][]*Item
}

// NewCollection creates an empty collection.
func NewCollection(detector *FactTableDetector) *Collection {
	return &Collection{
		detector: detector,
		byKey:    make(map[string]*Item),
		byFact:   make(map[string][]*Item),
	}
}

// Add merges an eligible graph into the collection. It returns false for an
// ineligible graph. Adding the same query block twice is idempotent.
func (c *Collection) Add(g *Graph, groupingSignature string, hasRollup bool) (*Item, bool) {
	if !g.Eligibility().Eligible {
		return nil, false
	}

	key := g.Edges().Signature() + "\x1d" + groupingSignature
	if it, ok := c.byKey[key]; ok {
		it.QBIDs = it.QBIDs.Union(NewQBSet(g.QBID()))
		it.HasRollupSemantics = it.HasRollupSemantics || hasRollup
		return it, true
	}

	vertices := g.Vertices()
	fact, _ := c.detector.Detect(vertices)
	it := &Item{
		Edges:              g.Edges(),
		Instances:          vertices,
		QBIDs:              NewQBSet(g.QBID()),
		FactTable:          fact,
		GroupingSignature:  groupingSignature,
		HasRollupSemantics: hasRollup,
	}
	c.byKey[key] = it
	c.items = append(c.items, it)
	if fact != "" {
		c.byFact[fact] = append(c.byFact[fact], it)
	}
	return it, true
}

// Items returns every item in insertion order, including those without a
// fact table.
func (c *Collection) Items() []*Item { return c.items }

// ItemsByFact returns the items of one fact table bucket.
func (c *Collection) ItemsByFact(fact string) []*Item { return c.byFact[fact] }

// FactTables returns the fact tables that have items, sorted.
func (c *Collection) FactTables() []string {
	out := make([]string, 0, len(c.byFact))
	for f := range c.byFact {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
