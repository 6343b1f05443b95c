// Package prune filters ECSE join sets down to the candidates worth
// materializing. Heuristics run in the fixed order B, C, D, A, E; each one
// sees only the survivors of the previous ones.
package prune

import (
	"fmt"
	"strings"

	"mv-advisor/internal/ecse"
	"mv-advisor/internal/joingraph"
)

// Heuristic tags a pruning rule.
type Heuristic string

// Pruning heuristics.
const (
	HeuristicB Heuristic = "B" // too few tables
	HeuristicC Heuristic = "C" // too few query blocks
	HeuristicD Heuristic = "D" // non-maximal
	HeuristicA Heuristic = "A" // many-to-many edge
	HeuristicE Heuristic = "E" // cardinality blow-up
)

// TableStats supplies row counts. A missing count is reported with ok=false.
type TableStats interface {
	RowCount(table string) (int64, bool)
}

// RowCounts is a TableStats backed by a map keyed by lowercase table name.
type RowCounts map[string]int64

// RowCount implements TableStats.
func (r RowCounts) RowCount(table string) (int64, bool) {
	n, ok := r[strings.ToLower(table)]
	return n, ok && n > 0
}

// Keys reports single-column primary keys.
type Keys interface {
	IsSingleColumnKey(table, col string) bool
}

// Options configures a Pruner.
type Options struct {
	Alpha   int
	Beta    int
	EnableB bool
	EnableC bool
	EnableD bool
	EnableA bool
	EnableE bool

	// Stats and Keys feed heuristics A and E. Either being nil turns both
	// into no-ops.
	Stats TableStats
	Keys  Keys

	ManyToManyMinRows   int64
	MaxCardinalityRatio float64
}

// DefaultOptions returns alpha=2, beta=2 with B, C, and D enabled.
func DefaultOptions() Options {
	return Options{
		Alpha:               2,
		Beta:                2,
		EnableB:             true,
		EnableC:             true,
		EnableD:             true,
		ManyToManyMinRows:   1000,
		MaxCardinalityRatio: 100,
	}
}

// Pruned is a join set removed by a heuristic.
type Pruned struct {
	JoinSet   *ecse.JoinSet `json:"join_set"`
	Reason    string        `json:"reason"`
	Heuristic Heuristic     `json:"heuristic"`
}

// Stats counts removals per heuristic.
type Stats struct {
	Input   int `json:"input_count"`
	PrunedB int `json:"pruned_B"`
	PrunedC int `json:"pruned_C"`
	PrunedD int `json:"pruned_D"`
	PrunedA int `json:"pruned_A"`
	PrunedE int `json:"pruned_E"`
	Output  int `json:"output_count"`
	Total   int `json:"total_pruned"`
}

// Result is the outcome of Prune.
type Result struct {
	Kept   []*ecse.JoinSet `json:"kept"`
	Pruned []Pruned        `json:"pruned"`
	Stats  Stats           `json:"stats"`
}

// Pruner applies the enabled heuristics.
type Pruner struct {
	opts Options
}

// New creates a Pruner.
func New(opts Options) *Pruner {
	return &Pruner{opts: opts}
}

// Prune runs the enabled heuristics. Kept sets are the input pointers;
// pruned sets are copies carrying an extra lineage entry.
func (p *Pruner) Prune(sets []*ecse.JoinSet) *Result {
	res := &Result{Stats: Stats{Input: len(sets)}}
	current := sets

	step := func(enabled bool, count *int, fn func([]*ecse.JoinSet) ([]*ecse.JoinSet, []Pruned)) {
		if !enabled {
			return
		}
		var pruned []Pruned
		current, pruned = fn(current)
		*count = len(pruned)
		res.Pruned = append(res.Pruned, pruned...)
	}

	step(p.opts.EnableB, &res.Stats.PrunedB, p.byTableCount)
	step(p.opts.EnableC, &res.Stats.PrunedC, p.byQBCount)
	step(p.opts.EnableD, &res.Stats.PrunedD, byMaximality)
	step(p.opts.EnableA, &res.Stats.PrunedA, p.byManyToMany)
	step(p.opts.EnableE, &res.Stats.PrunedE, p.byCardinalityRatio)

	res.Kept = current
	res.Stats.Output = len(current)
	res.Stats.Total = len(res.Pruned)
	return res
}

// filter splits sets by test, which returns a reason and a lineage entry
// for a set to prune and empty strings for a set to keep.
func filter(sets []*ecse.JoinSet, h Heuristic, test func(*ecse.JoinSet) (reason, lineage string)) ([]*ecse.JoinSet, []Pruned) {
	var kept []*ecse.JoinSet
	var pruned []Pruned
	for _, js := range sets {
		reason, lineage := test(js)
		if reason == "" {
			kept = append(kept, js)
			continue
		}
		c := js.Clone()
		c.Lineage = append(c.Lineage, lineage)
		pruned = append(pruned, Pruned{JoinSet: c, Reason: reason, Heuristic: h})
	}
	return kept, pruned
}

func (p *Pruner) byTableCount(sets []*ecse.JoinSet) ([]*ecse.JoinSet, []Pruned) {
	return filter(sets, HeuristicB, func(js *ecse.JoinSet) (string, string) {
		n := js.TableCount()
		if n >= p.opts.Alpha {
			return "", ""
		}
		return fmt.Sprintf("table_count=%d < alpha=%d", n, p.opts.Alpha),
			fmt.Sprintf("pruned_B(tables=%d<%d)", n, p.opts.Alpha)
	})
}

func (p *Pruner) byQBCount(sets []*ecse.JoinSet) ([]*ecse.JoinSet, []Pruned) {
	return filter(sets, HeuristicC, func(js *ecse.JoinSet) (string, string) {
		n := js.QBIDs.Len()
		if n >= p.opts.Beta {
			return "", ""
		}
		return fmt.Sprintf("qbset_size=%d < beta=%d", n, p.opts.Beta),
			fmt.Sprintf("pruned_C(qbs=%d<%d)", n, p.opts.Beta)
	})
}

// byMaximality keeps the Pareto frontier under (edges ⊆, qbIds ⊆): a set is
// pruned when another set contains both its edges and its query blocks,
// with at least one containment strict.
func byMaximality(sets []*ecse.JoinSet) ([]*ecse.JoinSet, []Pruned) {
	dominated := make(map[*ecse.JoinSet]bool)
	for _, y := range sets {
		for _, x := range sets {
			if x != y && dominates(x, y) {
				dominated[y] = true
				break
			}
		}
	}
	return filter(sets, HeuristicD, func(js *ecse.JoinSet) (string, string) {
		if !dominated[js] {
			return "", ""
		}
		return "dominated by larger joinset with superset qbset", "pruned_D(non-maximal)"
	})
}

func dominates(x, y *ecse.JoinSet) bool {
	if !y.Edges.SubsetOf(x.Edges) || !y.QBIDs.SubsetOf(x.QBIDs) {
		return false
	}
	return y.Edges.ProperSubsetOf(x.Edges) || !y.QBIDs.Equal(x.QBIDs)
}

func (p *Pruner) statsReady() bool {
	return p.opts.Stats != nil && p.opts.Keys != nil
}

// byManyToMany prunes sets containing an INNER equi-join where neither
// column is its table's primary key and both tables are large.
func (p *Pruner) byManyToMany(sets []*ecse.JoinSet) ([]*ecse.JoinSet, []Pruned) {
	if !p.statsReady() {
		return sets, nil
	}
	return filter(sets, HeuristicA, func(js *ecse.JoinSet) (string, string) {
		for _, e := range js.Edges.Edges() {
			if e.JoinType != joingraph.JoinInner || e.Op != "=" {
				continue
			}
			if p.landsOnKey(e) {
				continue
			}
			lr, lok := p.opts.Stats.RowCount(e.LeftTable)
			rr, rok := p.opts.Stats.RowCount(e.RightTable)
			if !lok || !rok {
				continue
			}
			if lr >= p.opts.ManyToManyMinRows && rr >= p.opts.ManyToManyMinRows {
				return fmt.Sprintf("many-to-many edge %s (rows %d x %d)", e, lr, rr),
					fmt.Sprintf("pruned_A(m2m=%s.%s~%s.%s)", e.LeftInstance, e.LeftCol, e.RightInstance, e.RightCol)
			}
		}
		return "", ""
	})
}

// byCardinalityRatio estimates the join's row count as fact rows times the
// far-side rows of every edge that does not land on a primary key, and
// prunes when the estimate exceeds MaxCardinalityRatio × fact rows. A
// missing statistic keeps the set.
func (p *Pruner) byCardinalityRatio(sets []*ecse.JoinSet) ([]*ecse.JoinSet, []Pruned) {
	if !p.statsReady() {
		return sets, nil
	}
	return filter(sets, HeuristicE, func(js *ecse.JoinSet) (string, string) {
		ratio, ok := p.estimateRatio(js)
		if !ok || ratio <= p.opts.MaxCardinalityRatio {
			return "", ""
		}
		return fmt.Sprintf("estimated cardinality ratio %.1f > %.1f", ratio, p.opts.MaxCardinalityRatio),
			fmt.Sprintf("pruned_E(ratio=%.1f>%.1f)", ratio, p.opts.MaxCardinalityRatio)
	})
}

func (p *Pruner) estimateRatio(js *ecse.JoinSet) (float64, bool) {
	if js.FactTable == "" {
		return 0, false
	}
	if _, ok := p.opts.Stats.RowCount(js.FactTable); !ok {
		return 0, false
	}
	ratio := 1.0
	for _, e := range js.Edges.Edges() {
		if p.landsOnKey(e) {
			continue
		}
		far := e.RightTable
		if strings.EqualFold(e.RightTable, js.FactTable) && !strings.EqualFold(e.LeftTable, js.FactTable) {
			far = e.LeftTable
		}
		n, ok := p.opts.Stats.RowCount(far)
		if !ok {
			return 0, false
		}
		ratio *= float64(n)
	}
	return ratio, true
}

func (p *Pruner) landsOnKey(e joingraph.EdgeKey) bool {
	return p.opts.Keys.IsSingleColumnKey(e.LeftTable, e.LeftCol) ||
		p.opts.Keys.IsSingleColumnKey(e.RightTable, e.RightCol)
}
