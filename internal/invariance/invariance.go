// Package invariance decides whether a join edge preserves the row set of
// the side it is added to: an INNER equi-join along a NOT NULL foreign key
// to its referenced key. Such edges are the only ones the join-set algebra
// may add or drop when widening a join set.
package invariance

import (
	"fmt"
	"slices"
	"strings"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/joingraph"
)

// Direction names which side of the edge holds the foreign key.
type Direction string

// Directions of an invariant edge.
const (
	LeftToRight Direction = "left_to_right"
	RightToLeft Direction = "right_to_left"
)

// Result is the outcome of an edge check.
type Result struct {
	Invariant bool      `json:"is_invariant"`
	Reason    string    `json:"reason"`
	Direction Direction `json:"fk_direction,omitempty"`
}

// Checker evaluates edges against a catalog.
type Checker struct {
	cat catalog.Catalog
}

// NewChecker creates a Checker.
func NewChecker(cat catalog.Catalog) *Checker {
	return &Checker{cat: cat}
}

// Edge reports whether e is an invariant FK-PK edge. Schema lookups use the
// edge's base tables, not its instance ids.
func (c *Checker) Edge(e joingraph.EdgeKey) Result {
	if e.JoinType != joingraph.JoinInner {
		return Result{Reason: fmt.Sprintf("Not INNER join (is %s)", e.JoinType)}
	}
	if e.Op != "=" {
		return Result{Reason: fmt.Sprintf("Not equality operator (is %s)", e.Op)}
	}
	if c.childToParent(e.LeftTable, e.LeftCol, e.RightTable, e.RightCol) {
		return Result{Invariant: true, Reason: "FK-PK invariant (left->right)", Direction: LeftToRight}
	}
	if c.childToParent(e.RightTable, e.RightCol, e.LeftTable, e.LeftCol) {
		return Result{Invariant: true, Reason: "FK-PK invariant (right->left)", Direction: RightToLeft}
	}
	return Result{Reason: "No FK relationship found"}
}

func (c *Checker) childToParent(childTable, childCol, parentTable, parentCol string) bool {
	return c.cat.FindForeignKey(childTable, childCol, parentTable, parentCol) &&
		c.cat.IsNotNull(childTable, childCol)
}

// All reports whether every edge of the set is invariant. On failure it
// returns the first offending edge in canonical order.
func (c *Checker) All(edges joingraph.EdgeSet) (joingraph.EdgeKey, bool) {
	for _, e := range edges.Edges() {
		if !c.Edge(e).Invariant {
			return e, false
		}
	}
	return joingraph.EdgeKey{}, true
}

// AddedTableResult is the outcome of ForAddedTable.
type AddedTableResult struct {
	Invariant       bool                `json:"is_invariant"`
	Reason          string              `json:"reason"`
	ConnectingEdges []joingraph.EdgeKey `json:"connecting_edges,omitempty"`
}

// ForAddedTable reports whether joining added onto the tables of base keeps
// base's rows intact: at least one edge must connect added to a base table,
// and every connecting edge must be invariant. Tables are matched by base
// table name, case-insensitively.
func (c *Checker) ForAddedTable(base []string, added string, edges []joingraph.EdgeKey) AddedTableResult {
	added = strings.ToLower(added)
	inBase := func(t string) bool {
		return slices.ContainsFunc(base, func(b string) bool { return strings.EqualFold(b, t) })
	}

	var connecting []joingraph.EdgeKey
	for _, e := range edges {
		l, r := strings.ToLower(e.LeftTable), strings.ToLower(e.RightTable)
		if (l == added && inBase(r)) || (r == added && inBase(l)) {
			connecting = append(connecting, e)
		}
	}
	if len(connecting) == 0 {
		return AddedTableResult{Reason: fmt.Sprintf("No edges connect %s to the join set", added)}
	}
	for _, e := range connecting {
		if res := c.Edge(e); !res.Invariant {
			return AddedTableResult{
				Reason:          "Edge not invariant: " + res.Reason,
				ConnectingEdges: connecting,
			}
		}
	}
	return AddedTableResult{
		Invariant:       true,
		Reason:          fmt.Sprintf("All %d connecting edge(s) are invariant FK-PK", len(connecting)),
		ConnectingEdges: connecting,
	}
}
