package advisor

import (
	"fmt"
	"slices"
	"strings"

	"mv-advisor/internal/ecse"
	"mv-advisor/internal/joingraph"
	"mv-advisor/internal/prune"
)

// Report is the full outcome of an analysis run.
type Report struct {
	RunID       string       `json:"run_id,omitempty"`
	Options     Options      `json:"options"`
	Summary     Summary      `json:"summary"`
	QueryBlocks []QBReport   `json:"query_blocks"`
	FactTables  []FactReport `json:"fact_tables"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Summary holds the headline counts.
type Summary struct {
	QueryBlocks int `json:"query_blocks"`
	EligibleQBs int `json:"eligible_qbs"`
	FactTables  int `json:"fact_tables"`
	Candidates  int `json:"candidates"`
	Pruned      int `json:"pruned"`
}

// SourceReport is one FROM-clause source of a query block.
type SourceReport struct {
	Alias string `json:"alias"`
	Name  string `json:"name"`
	Kind  string `json:"kind"`
}

// QBReport describes one query block: its join edges, its eligibility for
// join-set analysis, and the candidates that serve it.
type QBReport struct {
	QBID       string              `json:"qb_id"`
	SourceFile string              `json:"source_sql_file,omitempty"`
	Kind       string              `json:"qb_kind,omitempty"`
	Sources    []SourceReport      `json:"sources"`
	Edges      []joingraph.EdgeKey `json:"edges"`
	joingraph.Eligibility
	FactTable string   `json:"fact_table,omitempty"`
	JoinSets  []string `json:"join_sets"`
}

// NamedJoinSet is a kept candidate with its report name.
type NamedJoinSet struct {
	Name string `json:"name"`
	*ecse.JoinSet
}

// FactReport is the pipeline outcome for one fact table.
type FactReport struct {
	FactTable  string         `json:"fact_table"`
	Stats      ecse.Stats     `json:"stats"`
	PruneStats prune.Stats    `json:"prune_stats"`
	JoinSets   []NamedJoinSet `json:"join_sets"`
	Pruned     []prune.Pruned `json:"pruned"`
}

// JoinSet returns the kept candidate with the given name.
func (r *Report) JoinSet(name string) (*NamedJoinSet, bool) {
	for i := range r.FactTables {
		for j := range r.FactTables[i].JoinSets {
			if r.FactTables[i].JoinSets[j].Name == name {
				return &r.FactTables[i].JoinSets[j], true
			}
		}
	}
	return nil, false
}

// nameJoinSets orders each fact table's kept sets by edge signature and
// grouping, then numbers them js_001, js_002, ... across fact tables, which
// are already in name order.
func nameJoinSets(facts []FactReport) {
	n := 0
	for i := range facts {
		slices.SortStableFunc(facts[i].JoinSets, func(a, b NamedJoinSet) int {
			return strings.Compare(a.Key(), b.Key())
		})
		for j := range facts[i].JoinSets {
			n++
			facts[i].JoinSets[j].Name = fmt.Sprintf("js_%03d", n)
		}
	}
}

// attachJoinSets records, per query block, the names of the kept sets that
// serve it.
func attachJoinSets(qbs []QBReport, facts []FactReport) {
	served := make(map[string][]string)
	for _, f := range facts {
		for _, js := range f.JoinSets {
			for _, id := range js.QBIDs.IDs() {
				served[id] = append(served[id], js.Name)
			}
		}
	}
	for i := range qbs {
		qbs[i].JoinSets = served[qbs[i].QBID]
		if qbs[i].JoinSets == nil {
			qbs[i].JoinSets = []string{}
		}
	}
}
