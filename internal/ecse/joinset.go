// Package ecse implements the join-set algebra that turns per-QB join sets
// into materialized-view candidates: Equivalence, Intersection, Union, a
// second Equivalence, and Superset/Subset propagation, run in that fixed
// order for one fact table at a time.
package ecse

import (
	"fmt"
	"slices"
	"strings"

	"mv-advisor/internal/domain"
	"mv-advisor/internal/joingraph"
)

// JoinSet is a candidate join pattern and the query blocks it serves.
// Lineage records how the set came to be and is never consulted by the
// algebra itself.
type JoinSet struct {
	Edges              joingraph.EdgeSet         `json:"edges"`
	Instances          []joingraph.TableInstance `json:"instances"`
	QBIDs              joingraph.QBSet           `json:"qb_ids"`
	FactTable          string                    `json:"fact_table,omitempty"`
	GroupingSignature  string                    `json:"grouping_signature"`
	HasRollupSemantics bool                      `json:"has_rollup_semantics"`
	Lineage            []string                  `json:"lineage"`
}

// FromItem converts a collection item into a join set.
func FromItem(it *joingraph.Item) *JoinSet {
	return &JoinSet{
		Edges:              it.Edges,
		Instances:          slices.Clone(it.Instances),
		QBIDs:              it.QBIDs,
		FactTable:          it.FactTable,
		GroupingSignature:  it.GroupingSignature,
		HasRollupSemantics: it.HasRollupSemantics,
		Lineage:            []string{fmt.Sprintf("original(%s)", it.QBIDs)},
	}
}

// derived builds a set whose instances are exactly its edges' endpoints.
func derived(edges joingraph.EdgeSet, qbs joingraph.QBSet, fact, lineage string) *JoinSet {
	return &JoinSet{
		Edges:     edges,
		Instances: edges.Instances(),
		QBIDs:     qbs,
		FactTable: fact,
		Lineage:   []string{lineage},
	}
}

// Clone returns a copy that shares no mutable state with js.
func (js *JoinSet) Clone() *JoinSet {
	c := *js
	c.Instances = slices.Clone(js.Instances)
	c.Lineage = slices.Clone(js.Lineage)
	return &c
}

// Key is the identity of the set: edges, instances, and grouping signature.
func (js *JoinSet) Key() string {
	ids := make([]string, len(js.Instances))
	for i, inst := range js.Instances {
		ids[i] = inst.ID
	}
	return js.Edges.Signature() + "\x1d" + strings.Join(ids, ",") + "\x1d" + js.GroupingSignature
}

func (js *JoinSet) equivalenceKey() string {
	return js.Edges.Signature() + "\x1d" + js.GroupingSignature
}

// TableCount returns the number of table instances.
func (js *JoinSet) TableCount() int { return len(js.Instances) }

// BaseTables returns the distinct base tables, sorted.
func (js *JoinSet) BaseTables() []string { return joingraph.BaseTablesOf(js.Instances) }

// Validate checks that the instance set is exactly the set of edge
// endpoints: every endpoint is an instance, every instance is an endpoint,
// and no instance is listed twice.
func (js *JoinSet) Validate() error {
	scope := fmt.Sprintf("join set (%s)", js.QBIDs)
	have := make(map[string]bool, len(js.Instances))
	for _, inst := range js.Instances {
		if have[inst.ID] {
			return &domain.MalformedEdgeError{Scope: scope, Instance: inst.ID}
		}
		have[inst.ID] = true
	}
	touched := make(map[string]bool, len(js.Instances))
	for _, e := range js.Edges.Edges() {
		for _, id := range []string{e.LeftInstance, e.RightInstance} {
			if !have[id] {
				return &domain.MalformedEdgeError{Scope: scope, Edge: e.String(), Instance: id}
			}
			touched[id] = true
		}
	}
	for _, inst := range js.Instances {
		if !touched[inst.ID] {
			return &domain.MalformedEdgeError{Scope: scope, Instance: inst.ID}
		}
	}
	return nil
}

func (js *JoinSet) appendLineage(entry string) {
	js.Lineage = append(js.Lineage, entry)
}
