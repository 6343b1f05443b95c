package advisor

import (
	"mv-advisor/internal/config"
	"mv-advisor/internal/domain"
	"mv-advisor/internal/ecse"
	"mv-advisor/internal/prune"
)

// Options controls one analysis run.
type Options struct {
	Alpha                int      `json:"alpha"`
	Beta                 int      `json:"beta"`
	MinIntersectionEdges int      `json:"min_intersection_edges"`
	EnableUnion          bool     `json:"enable_union"`
	EnableSuperset       bool     `json:"enable_superset"`
	PruneA               bool     `json:"prune_a"`
	PruneB               bool     `json:"prune_b"`
	PruneC               bool     `json:"prune_c"`
	PruneD               bool     `json:"prune_d"`
	PruneE               bool     `json:"prune_e"`
	ManyToManyMinRows    int64    `json:"many_to_many_min_rows"`
	MaxCardinalityRatio  float64  `json:"max_cardinality_ratio"`
	Workers              int      `json:"workers"`
	FactTables           []string `json:"fact_tables,omitempty"`
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Alpha:                2,
		Beta:                 2,
		MinIntersectionEdges: 1,
		EnableUnion:          true,
		EnableSuperset:       true,
		PruneB:               true,
		PruneC:               true,
		PruneD:               true,
		ManyToManyMinRows:    1000,
		MaxCardinalityRatio:  100,
		Workers:              4,
	}
}

// OptionsFromConfig converts the ECSE section of the configuration.
func OptionsFromConfig(c config.ECSEConfig) Options {
	return Options{
		Alpha:                c.Alpha,
		Beta:                 c.Beta,
		MinIntersectionEdges: c.MinIntersectionEdges,
		EnableUnion:          c.EnableUnion,
		EnableSuperset:       c.EnableSuperset,
		PruneA:               c.PruneA,
		PruneB:               c.PruneB,
		PruneC:               c.PruneC,
		PruneD:               c.PruneD,
		PruneE:               c.PruneE,
		ManyToManyMinRows:    c.ManyToManyMinRows,
		MaxCardinalityRatio:  c.MaxCardinalityRatio,
		Workers:              c.Workers,
		FactTables:           c.FactTables,
	}
}

// Validate rejects option values the pipeline cannot run with.
func (o Options) Validate() error {
	switch {
	case o.Alpha < 1:
		return domain.ErrValidation("alpha must be at least 1, got %d", o.Alpha)
	case o.Beta < 1:
		return domain.ErrValidation("beta must be at least 1, got %d", o.Beta)
	case o.MinIntersectionEdges < 1:
		return domain.ErrValidation("min_intersection_edges must be at least 1, got %d", o.MinIntersectionEdges)
	case o.Workers < 1:
		return domain.ErrValidation("workers must be at least 1, got %d", o.Workers)
	case o.MaxCardinalityRatio <= 0:
		return domain.ErrValidation("max_cardinality_ratio must be positive")
	}
	return nil
}

func (o Options) pipeline() ecse.Options {
	return ecse.Options{
		EnableUnion:          o.EnableUnion,
		EnableSuperset:       o.EnableSuperset,
		MinIntersectionEdges: o.MinIntersectionEdges,
	}
}

func (o Options) prune(stats prune.TableStats, keys prune.Keys) prune.Options {
	return prune.Options{
		Alpha:               o.Alpha,
		Beta:                o.Beta,
		EnableA:             o.PruneA,
		EnableB:             o.PruneB,
		EnableC:             o.PruneC,
		EnableD:             o.PruneD,
		EnableE:             o.PruneE,
		Stats:               stats,
		Keys:                keys,
		ManyToManyMinRows:   o.ManyToManyMinRows,
		MaxCardinalityRatio: o.MaxCardinalityRatio,
	}
}
