package cli

import (
	"github.com/spf13/pflag"

	"mv-advisor/internal/service/advisor"
)

// addOptionFlags registers the per-run option overrides. Unset flags keep
// the values resolved from the environment.
func addOptionFlags(fs *pflag.FlagSet) {
	fs.Int("alpha", 0, "Minimum table instances per candidate (heuristic B)")
	fs.Int("beta", 0, "Minimum query blocks per candidate (heuristic C)")
	fs.Int("min-intersection-edges", 0, "Minimum edges of an intersection")
	fs.Bool("union", true, "Run the union stage")
	fs.Bool("superset", true, "Propagate query blocks from supersets")
	fs.Bool("prune-a", false, "Prune many-to-many joins (needs row counts)")
	fs.Bool("prune-b", true, "Prune candidates with too few tables")
	fs.Bool("prune-c", true, "Prune candidates serving too few query blocks")
	fs.Bool("prune-d", true, "Prune non-maximal candidates")
	fs.Bool("prune-e", false, "Prune candidates with a high cardinality ratio (needs row counts)")
	fs.Int64("many-to-many-min-rows", 0, "Heuristic A table size floor")
	fs.Float64("max-cardinality-ratio", 0, "Heuristic E threshold")
	fs.Int("workers", 0, "Fact tables analyzed in parallel")
	fs.StringSlice("fact-tables", nil, "Tables always treated as fact tables")
}

// applyOptionFlags overlays the flags the user set onto base.
func applyOptionFlags(fs *pflag.FlagSet, base advisor.Options) (advisor.Options, error) {
	opts := base
	ints := map[string]*int{
		"alpha":                  &opts.Alpha,
		"beta":                   &opts.Beta,
		"min-intersection-edges": &opts.MinIntersectionEdges,
		"workers":                &opts.Workers,
	}
	for name, dst := range ints {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetInt(name)
		if err != nil {
			return opts, err
		}
		*dst = v
	}

	bools := map[string]*bool{
		"union":    &opts.EnableUnion,
		"superset": &opts.EnableSuperset,
		"prune-a":  &opts.PruneA,
		"prune-b":  &opts.PruneB,
		"prune-c":  &opts.PruneC,
		"prune-d":  &opts.PruneD,
		"prune-e":  &opts.PruneE,
	}
	for name, dst := range bools {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return opts, err
		}
		*dst = v
	}

	if fs.Changed("many-to-many-min-rows") {
		v, err := fs.GetInt64("many-to-many-min-rows")
		if err != nil {
			return opts, err
		}
		opts.ManyToManyMinRows = v
	}
	if fs.Changed("max-cardinality-ratio") {
		v, err := fs.GetFloat64("max-cardinality-ratio")
		if err != nil {
			return opts, err
		}
		opts.MaxCardinalityRatio = v
	}
	if fs.Changed("fact-tables") {
		v, err := fs.GetStringSlice("fact-tables")
		if err != nil {
			return opts, err
		}
		opts.FactTables = v
	}
	return opts, opts.Validate()
}
