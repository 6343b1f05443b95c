package joingraph

import (
	"encoding/json"
	"slices"
	"strings"
)

// EdgeSet is an immutable, sorted, duplicate-free set of canonical edges.
// Two edge sets are equal exactly when their signatures are equal.
type EdgeSet struct {
	edges []EdgeKey
	sig   string
}

// NewEdgeSet sorts and deduplicates edges. When two edges share an identity
// the metadata of the first one wins.
func NewEdgeSet(edges ...EdgeKey) EdgeSet {
	sorted := slices.Clone(edges)
	slices.SortStableFunc(sorted, CompareEdges)
	sorted = slices.CompactFunc(sorted, EdgeKey.SameAs)

	ids := make([]string, len(sorted))
	for i, e := range sorted {
		ids[i] = e.identity()
	}
	return EdgeSet{edges: sorted, sig: strings.Join(ids, "\x1e")}
}

// Len returns the number of edges.
func (s EdgeSet) Len() int { return len(s.edges) }

// Edges returns the edges in canonical order. Callers must not modify the
// returned slice.
func (s EdgeSet) Edges() []EdgeKey { return s.edges }

// Signature is the canonical identity of the set, usable as a map key.
func (s EdgeSet) Signature() string { return s.sig }

// Equal reports set equality.
func (s EdgeSet) Equal(o EdgeSet) bool { return s.sig == o.sig }

// Contains reports membership.
func (s EdgeSet) Contains(e EdgeKey) bool {
	_, ok := slices.BinarySearchFunc(s.edges, e, CompareEdges)
	return ok
}

// SubsetOf reports s ⊆ o.
func (s EdgeSet) SubsetOf(o EdgeSet) bool {
	if len(s.edges) > len(o.edges) {
		return false
	}
	j := 0
	for _, e := range s.edges {
		for j < len(o.edges) && CompareEdges(o.edges[j], e) < 0 {
			j++
		}
		if j == len(o.edges) || CompareEdges(o.edges[j], e) != 0 {
			return false
		}
		j++
	}
	return true
}

// ProperSubsetOf reports s ⊂ o.
func (s EdgeSet) ProperSubsetOf(o EdgeSet) bool {
	return len(s.edges) < len(o.edges) && s.SubsetOf(o)
}

// Intersect returns s ∩ o.
func (s EdgeSet) Intersect(o EdgeSet) EdgeSet {
	var out []EdgeKey
	for _, e := range s.edges {
		if o.Contains(e) {
			out = append(out, e)
		}
	}
	return NewEdgeSet(out...)
}

// Union returns s ∪ o.
func (s EdgeSet) Union(o EdgeSet) EdgeSet {
	return NewEdgeSet(append(slices.Clone(s.edges), o.edges...)...)
}

// Minus returns s − o.
func (s EdgeSet) Minus(o EdgeSet) EdgeSet {
	var out []EdgeKey
	for _, e := range s.edges {
		if !o.Contains(e) {
			out = append(out, e)
		}
	}
	return NewEdgeSet(out...)
}

// Instances returns every endpoint instance, sorted by id.
func (s EdgeSet) Instances() []TableInstance {
	seen := make(map[string]TableInstance)
	for _, e := range s.edges {
		if _, ok := seen[e.LeftInstance]; !ok {
			seen[e.LeftInstance] = e.Left()
		}
		if _, ok := seen[e.RightInstance]; !ok {
			seen[e.RightInstance] = e.Right()
		}
	}
	return sortedInstances(seen)
}

// BaseTables returns the distinct base tables of all endpoints, sorted.
func (s EdgeSet) BaseTables() []string {
	return BaseTablesOf(s.Instances())
}

// Connected reports whether the edges, taken as undirected, form a single
// component. The empty set is not connected.
func (s EdgeSet) Connected() bool {
	if len(s.edges) == 0 {
		return false
	}
	adj := make(map[string][]string)
	for _, e := range s.edges {
		adj[e.LeftInstance] = append(adj[e.LeftInstance], e.RightInstance)
		adj[e.RightInstance] = append(adj[e.RightInstance], e.LeftInstance)
	}
	visited := make(map[string]bool, len(adj))
	stack := []string{s.edges[0].LeftInstance}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, n := range adj[cur] {
			if !visited[n] {
				stack = append(stack, n)
			}
		}
	}
	return len(visited) == len(adj)
}

// MarshalJSON encodes the set as its ordered edge list.
func (s EdgeSet) MarshalJSON() ([]byte, error) {
	if s.edges == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.edges)
}

// UnmarshalJSON decodes an edge list.
func (s *EdgeSet) UnmarshalJSON(data []byte) error {
	var edges []EdgeKey
	if err := json.Unmarshal(data, &edges); err != nil {
		return err
	}
	*s = NewEdgeSet(edges...)
	return nil
}

func (s EdgeSet) String() string {
	parts := make([]string, len(s.edges))
	for i, e := range s.edges {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortedInstances(m map[string]TableInstance) []TableInstance {
	out := make([]TableInstance, 0, len(m))
	for _, inst := range m {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b TableInstance) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// BaseTablesOf returns the distinct base tables of the instances, sorted.
func BaseTablesOf(instances []TableInstance) []string {
	var out []string
	for _, inst := range instances {
		out = append(out, inst.BaseTable)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
