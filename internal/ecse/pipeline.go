package ecse

import (
	"fmt"

	"mv-advisor/internal/invariance"
)

// Options toggles pipeline stages.
type Options struct {
	EnableUnion          bool
	EnableSuperset       bool
	MinIntersectionEdges int
}

// DefaultOptions enables every stage with a one-edge intersection floor.
func DefaultOptions() Options {
	return Options{EnableUnion: true, EnableSuperset: true, MinIntersectionEdges: 1}
}

// Stats counts join sets through the stages of one pipeline run. The
// pruning counts are filled in by the caller that prunes.
type Stats struct {
	InputCount             int `json:"input_count"`
	AfterEquiv1            int `json:"after_equiv_1"`
	IntersectionsGenerated int `json:"intersections_generated"`
	AfterIntersection      int `json:"after_intersection"`
	UnionsGenerated        int `json:"unions_generated"`
	AfterUnion             int `json:"after_union"`
	AfterEquiv2            int `json:"after_equiv_2"`
	AfterSupersetSubset    int `json:"after_superset_subset"`
	BeforePruning          int `json:"before_pruning"`
	AfterPruning           int `json:"after_pruning"`
	TotalPruned            int `json:"total_pruned"`
}

// Result is the output of one pipeline run.
type Result struct {
	FactTable string     `json:"fact_table"`
	JoinSets  []*JoinSet `json:"join_sets"`
	Stats     Stats      `json:"stats"`
}

// Pipeline runs the five stages in fixed order. It holds no per-run state
// and may be shared by concurrent runs.
type Pipeline struct {
	checker *invariance.Checker
	opts    Options
}

// NewPipeline creates a Pipeline.
func NewPipeline(checker *invariance.Checker, opts Options) *Pipeline {
	if opts.MinIntersectionEdges < 1 {
		opts.MinIntersectionEdges = 1
	}
	return &Pipeline{checker: checker, opts: opts}
}

// Run executes the pipeline over the join sets of one fact table. Inputs
// are validated first; a set whose edges name instances outside its
// instance set is rejected with a MalformedEdgeError.
func (p *Pipeline) Run(factTable string, sets []*JoinSet) (*Result, error) {
	for _, js := range sets {
		if err := js.Validate(); err != nil {
			return nil, fmt.Errorf("fact table %s: %w", factTable, err)
		}
	}

	res := &Result{FactTable: factTable}
	res.Stats.InputCount = len(sets)
	if len(sets) == 0 {
		return res, nil
	}

	current := Equivalence(sets)
	res.Stats.AfterEquiv1 = len(current)

	inter := Intersection(current, p.opts.MinIntersectionEdges)
	res.Stats.IntersectionsGenerated = len(inter)
	current = append(current, inter...)
	res.Stats.AfterIntersection = len(current)

	if p.opts.EnableUnion {
		unions := Union(current, p.checker)
		res.Stats.UnionsGenerated = len(unions)
		current = append(current, unions...)
	}
	res.Stats.AfterUnion = len(current)

	current = Equivalence(current)
	res.Stats.AfterEquiv2 = len(current)

	current = SupersetSubset(current, p.checker, p.opts.EnableSuperset)
	res.Stats.AfterSupersetSubset = len(current)
	res.Stats.BeforePruning = len(current)
	res.Stats.AfterPruning = len(current)

	res.JoinSets = current
	return res, nil
}
