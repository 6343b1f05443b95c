package ecse

import (
	"fmt"
	"slices"

	"mv-advisor/internal/invariance"
	"mv-advisor/internal/joingraph"
)

// Equivalence merges sets with the same edges and grouping signature. The
// first set of each class is kept (in input order), absorbing the query
// blocks and rollup flag of later ones. Inputs are not modified.
func Equivalence(sets []*JoinSet) []*JoinSet {
	byKey := make(map[string]*JoinSet, len(sets))
	out := make([]*JoinSet, 0, len(sets))
	for _, js := range sets {
		key := js.equivalenceKey()
		if kept, ok := byKey[key]; ok {
			kept.QBIDs = kept.QBIDs.Union(js.QBIDs)
			kept.HasRollupSemantics = kept.HasRollupSemantics || js.HasRollupSemantics
			kept.appendLineage(fmt.Sprintf("equiv_merge(%s)", js.QBIDs))
			continue
		}
		c := js.Clone()
		c.appendLineage("equiv_kept")
		byKey[key] = c
		out = append(out, c)
	}
	return out
}

// Intersection returns the new sets formed by intersecting every unordered
// pair of simple-grouping sets. An intersection is kept when it has at
// least minEdges edges, is connected, and has not been produced by an
// earlier pair. It is not applied to its own output.
func Intersection(sets []*JoinSet, minEdges int) []*JoinSet {
	seen := make(map[string]bool)
	var out []*JoinSet
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			a, b := sets[i], sets[j]
			if a.HasRollupSemantics || b.HasRollupSemantics {
				continue
			}
			common := a.Edges.Intersect(b.Edges)
			if common.Len() < minEdges || !common.Connected() {
				continue
			}
			if seen[common.Signature()] {
				continue
			}
			seen[common.Signature()] = true
			out = append(out, derived(common, a.QBIDs.Union(b.QBIDs), a.FactTable, fmt.Sprintf("intersect(%d,%d)", i, j)))
		}
	}
	return out
}

// Union returns the new sets formed by merging overlapping pairs. A pair
// qualifies when the sets share a base table, neither edge set contains the
// other, and every edge found on only one side is an invariant FK-PK edge.
// The union must be connected and differ from every input and earlier
// union. Pairs involving rollup grouping are skipped, because the union has
// simple grouping.
func Union(sets []*JoinSet, checker *invariance.Checker) []*JoinSet {
	seen := make(map[string]bool, len(sets))
	for _, js := range sets {
		seen[js.Edges.Signature()] = true
	}

	var out []*JoinSet
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			a, b := sets[i], sets[j]
			if a.HasRollupSemantics || b.HasRollupSemantics {
				continue
			}
			if !sharesBaseTable(a, b) {
				continue
			}
			if a.Edges.SubsetOf(b.Edges) || b.Edges.SubsetOf(a.Edges) {
				continue
			}
			if _, ok := checker.All(a.Edges.Minus(b.Edges)); !ok {
				continue
			}
			if _, ok := checker.All(b.Edges.Minus(a.Edges)); !ok {
				continue
			}
			merged := a.Edges.Union(b.Edges)
			if seen[merged.Signature()] {
				continue
			}
			seen[merged.Signature()] = true
			if !merged.Connected() {
				continue
			}
			u := derived(merged, a.QBIDs.Union(b.QBIDs), a.FactTable, fmt.Sprintf("union(%d,%d)", i, j))
			annotateAdded(u, checker, a, b, i)
			annotateAdded(u, checker, b, a, j)
			out = append(out, u)
		}
	}
	return out
}

// annotateAdded records in u's lineage how each base table that from brings
// into the union attaches to into, whose index is idx.
func annotateAdded(u *JoinSet, checker *invariance.Checker, into, from *JoinSet, idx int) {
	have := into.BaseTables()
	extra := from.Edges.Minus(into.Edges).Edges()
	for _, t := range from.BaseTables() {
		if slices.Contains(have, t) {
			continue
		}
		res := checker.ForAddedTable(have, t, extra)
		u.appendLineage(fmt.Sprintf("adds(%s->%d): %s", t, idx, res.Reason))
	}
}

func sharesBaseTable(a, b *JoinSet) bool {
	tables := make(map[string]bool)
	for _, t := range a.BaseTables() {
		tables[t] = true
	}
	for _, t := range b.BaseTables() {
		if tables[t] {
			return true
		}
	}
	return false
}

// SupersetSubset propagates query blocks along proper edge-set containment.
// For every pair with B ⊂ A, B inherits A's query blocks; A inherits B's
// only when enableSuperset is set and every edge of A − B is invariant.
//
// Transfers are repeated until no set gains a query block, so blocks reach
// every set connected by a chain of transfers. Each round reads the sets as
// they were at its start, so the result does not depend on input order.
func SupersetSubset(sets []*JoinSet, checker *invariance.Checker, enableSuperset bool) []*JoinSet {
	out := make([]*JoinSet, len(sets))
	for i, js := range sets {
		out[i] = js.Clone()
	}

	type transfer struct {
		from, to int
		lineage  string
	}
	var transfers []transfer
	for i, a := range sets {
		for j, b := range sets {
			if i == j || !b.Edges.ProperSubsetOf(a.Edges) {
				continue
			}
			transfers = append(transfers, transfer{from: i, to: j, lineage: fmt.Sprintf("subset_inherit(%d<%d)", j, i)})
			if !enableSuperset {
				continue
			}
			if _, ok := checker.All(a.Edges.Minus(b.Edges)); ok {
				transfers = append(transfers, transfer{from: j, to: i, lineage: fmt.Sprintf("superset_inherit(%d>%d)", i, j)})
			}
		}
	}

	for changed := true; changed; {
		changed = false
		start := make([]joingraph.QBSet, len(out))
		for i, js := range out {
			start[i] = js.QBIDs
		}
		for _, tr := range transfers {
			if start[tr.from].Minus(start[tr.to]).Len() == 0 {
				continue
			}
			out[tr.to].QBIDs = out[tr.to].QBIDs.Union(start[tr.from])
			if !slices.Contains(out[tr.to].Lineage, tr.lineage) {
				out[tr.to].appendLineage(tr.lineage)
			}
			changed = true
		}
	}
	return out
}
