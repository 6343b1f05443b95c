package joingraph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/domain"
)

// SourceKind classifies a FROM-clause source of a query block.
type SourceKind string

// Source kinds produced by the front end.
const (
	SourceBase    SourceKind = "base"
	SourceCTERef  SourceKind = "cte_ref"
	SourceDerived SourceKind = "derived"
)

// Source is one FROM-clause entry of a query block.
type Source struct {
	Alias string
	Name  string
	Kind  SourceKind
}

// JoinEdge is a join predicate as extracted from SQL, naming sources by
// alias.
type JoinEdge struct {
	Left     string
	LeftCol  string
	Right    string
	RightCol string
	Op       string
	JoinType JoinType
	Origin   string
}

// QueryBlock is the per-QB input to graph construction.
type QueryBlock struct {
	ID                 string
	SourceFile         string
	Kind               string
	Sources            []Source
	Edges              []JoinEdge
	GroupingSignature  string
	HasRollupSemantics bool
}

// Eligibility is the outcome of classifying a graph.
type Eligibility struct {
	Eligible          bool     `json:"ecse_eligible"`
	Reason            string   `json:"ecse_reason"`
	Disconnected      bool     `json:"disconnected"`
	HasNonBaseSources bool     `json:"has_non_base_sources"`
	NonBaseSources    []string `json:"non_base_sources"`
}

type arc struct{ from, to string }

// Graph is the join graph of one query block. Vertices are base-table
// instances; INNER and CROSS edges are undirected, LEFT edges point from
// the preserved side to the nullable side. A Graph is immutable once built.
type Graph struct {
	qbID       string
	vertices   map[string]TableInstance
	undirected map[arc]struct{}
	directed   map[arc]struct{}
	edges      EdgeSet
	nonBase    []string
}

// Build constructs the join graph of a query block. Sources that are not
// base tables known to the catalog are excluded from the graph and recorded
// as non-base sources, as are edges touching them. An edge naming an alias
// that is not among the block's sources is a MalformedEdgeError.
func Build(qb QueryBlock, cat catalog.Catalog) (*Graph, error) {
	g := &Graph{
		qbID:       qb.ID,
		vertices:   make(map[string]TableInstance),
		undirected: make(map[arc]struct{}),
		directed:   make(map[arc]struct{}),
	}

	byAlias := make(map[string]Source, len(qb.Sources))
	var bases []TableInstance
	for _, src := range qb.Sources {
		display := cmp.Or(strings.TrimSpace(src.Alias), strings.TrimSpace(src.Name))
		alias := strings.ToLower(display)
		if _, dup := byAlias[alias]; dup {
			return nil, domain.ErrValidation("query block %s: duplicate source alias %q", qb.ID, alias)
		}
		byAlias[alias] = src

		switch {
		case src.Kind == SourceBase && cat.HasTable(src.Name):
			inst := NewInstance(display, src.Name)
			g.vertices[inst.ID] = inst
			bases = append(bases, inst)
		case src.Kind == SourceBase:
			g.nonBase = append(g.nonBase, fmt.Sprintf("%s(unknown)", alias))
		default:
			g.nonBase = append(g.nonBase, fmt.Sprintf("%s(%s)", alias, src.Kind))
		}
	}

	var keys []EdgeKey
	for _, je := range qb.Edges {
		left, err := endpointAlias(qb.ID, je.Left, je.LeftCol, bases, cat)
		if err != nil {
			return nil, err
		}
		right, err := endpointAlias(qb.ID, je.Right, je.RightCol, bases, cat)
		if err != nil {
			return nil, err
		}
		for _, alias := range []string{left, right} {
			if _, ok := byAlias[alias]; !ok {
				return nil, &domain.MalformedEdgeError{
					Scope:    "query block " + qb.ID,
					Edge:     fmt.Sprintf("%s.%s %s %s.%s", je.Left, je.LeftCol, je.Op, je.Right, je.RightCol),
					Instance: alias,
				}
			}
		}
		li, lok := g.vertices[left]
		ri, rok := g.vertices[right]
		if !lok || !rok {
			continue
		}

		key, err := NewEdgeKey(li, je.LeftCol, ri, je.RightCol, je.Op, je.JoinType)
		if err != nil {
			return nil, fmt.Errorf("query block %s: %w", qb.ID, err)
		}
		if key.JoinType == JoinLeft {
			g.directed[arc{key.LeftInstance, key.RightInstance}] = struct{}{}
		} else {
			a, b := key.LeftInstance, key.RightInstance
			if b < a {
				a, b = b, a
			}
			g.undirected[arc{a, b}] = struct{}{}
		}
		keys = append(keys, key)
	}
	g.edges = NewEdgeSet(keys...)
	return g, nil
}

// endpointAlias returns the normalized alias of an edge endpoint. An endpoint
// without an alias belongs to the block's only base table, or else to the
// one base table whose schema has the column.
func endpointAlias(qbID, alias, col string, bases []TableInstance, cat catalog.Catalog) (string, error) {
	if alias = strings.ToLower(strings.TrimSpace(alias)); alias != "" {
		return alias, nil
	}
	if len(bases) == 1 {
		return bases[0].ID, nil
	}

	tables := BaseTablesOf(bases)
	table, res := cat.ResolveColumn(col, tables)
	if res == catalog.ResolutionUnique {
		var match []string
		for _, b := range bases {
			if b.BaseTable == table {
				match = append(match, b.ID)
			}
		}
		if len(match) == 1 {
			return match[0], nil
		}
		res = catalog.ResolutionAmbiguous
	}
	return "", domain.ErrValidation("query block %s: unqualified column %q: %s", qbID, col, res)
}

// QBID returns the query block id.
func (g *Graph) QBID() string { return g.qbID }

// Vertices returns the base-table instances sorted by id.
func (g *Graph) Vertices() []TableInstance { return sortedInstances(g.vertices) }

// Edges returns the canonical edge set.
func (g *Graph) Edges() EdgeSet { return g.edges }

// NonBaseSources lists excluded sources as "alias(kind)".
func (g *Graph) NonBaseSources() []string { return g.nonBase }

// Connected reports whether some vertex reaches every other vertex, walking
// undirected edges both ways and directed edges forward only.
func (g *Graph) Connected() bool {
	if len(g.vertices) <= 1 {
		return true
	}
	adj := make(map[string][]string, len(g.vertices))
	for a := range g.undirected {
		adj[a.from] = append(adj[a.from], a.to)
		adj[a.to] = append(adj[a.to], a.from)
	}
	for a := range g.directed {
		adj[a.from] = append(adj[a.from], a.to)
	}

	roots := make([]string, 0, len(g.vertices))
	for id := range g.vertices {
		roots = append(roots, id)
	}
	slices.Sort(roots)
	for _, root := range roots {
		if g.reachesAll(root, adj) {
			return true
		}
	}
	return false
}

func (g *Graph) reachesAll(root string, adj map[string][]string) bool {
	visited := map[string]bool{}
	stack := []string{root}
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
	return len(visited) == len(g.vertices)
}

// Eligibility classifies the graph for join-set analysis.
func (g *Graph) Eligibility() Eligibility {
	if len(g.vertices) < 2 {
		return Eligibility{Reason: fmt.Sprintf("Insufficient base table instances (%d)", len(g.vertices))}
	}
	if g.edges.Len() == 0 {
		return Eligibility{Reason: "No join edges between base tables"}
	}
	if !g.Connected() {
		return Eligibility{Reason: "Join graph is disconnected", Disconnected: true}
	}
	return Eligibility{
		Eligible:          true,
		Reason:            "OK",
		HasNonBaseSources: len(g.nonBase) > 0,
		NonBaseSources:    g.nonBase,
	}
}
