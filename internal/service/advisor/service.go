// Package advisor runs the materialized-view candidate analysis end to end:
// per-QB join graphs, the join-set collection, one ECSE pipeline per fact
// table, and pruning.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/domain"
	"mv-advisor/internal/ecse"
	"mv-advisor/internal/invariance"
	"mv-advisor/internal/joingraph"
	"mv-advisor/internal/prune"
	"mv-advisor/internal/store"
	"mv-advisor/internal/workload"
)

// RunStore persists finished runs.
type RunStore interface {
	Save(ctx context.Context, run *store.Run) (*store.Run, error)
	Get(ctx context.Context, id string) (*store.Run, error)
	List(ctx context.Context, page domain.Page) ([]store.Run, int64, error)
}

// Deps holds dependencies for Service. Store may be nil, in which case runs
// are not persisted.
type Deps struct {
	Logger *slog.Logger
	Store  RunStore
}

// Service orchestrates analysis runs.
type Service struct {
	logger *slog.Logger
	store  RunStore
}

// New creates a Service.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{logger: logger, store: deps.Store}
}

// Request is the input of Analyze.
type Request struct {
	Schema   *catalog.Schema
	Workload *workload.Workload
	Options  Options

	// Persist saves the report to the run store; Label and Source are
	// stored alongside it.
	Persist bool
	Label   string
	Source  string
}

// Analyze runs the full analysis. Fact tables are processed in parallel,
// at most Options.Workers at a time.
func (s *Service) Analyze(ctx context.Context, req Request) (*Report, error) {
	if req.Schema == nil {
		return nil, domain.ErrValidation("schema is required")
	}
	if req.Workload == nil {
		return nil, domain.ErrValidation("workload is required")
	}
	opts := req.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	report := &Report{Options: opts}
	coll := joingraph.NewCollection(joingraph.NewFactTableDetector(req.Schema, opts.FactTables))

	qbFact := make(map[string]string)
	var disconnected, nonBase int
	for _, qb := range req.Workload.QueryBlocks {
		g, err := joingraph.Build(qb, req.Schema)
		if err != nil {
			return nil, fmt.Errorf("build join graph: %w", err)
		}
		elig := g.Eligibility()
		qr := qbReport(qb, g, elig)

		if elig.Disconnected {
			disconnected++
		}
		if len(qr.NonBaseSources) > 0 {
			nonBase++
		}
		if !elig.Eligible {
			s.logger.Debug("query block not eligible", "qb_id", qb.ID, "reason", elig.Reason)
		} else if it, ok := coll.Add(g, qb.GroupingSignature, qb.HasRollupSemantics); ok {
			report.Summary.EligibleQBs++
			if it.FactTable == "" {
				report.Warnings = append(report.Warnings, fmt.Sprintf("query block %s: no fact table detected", qb.ID))
			}
			qbFact[qb.ID] = it.FactTable
		}
		report.QueryBlocks = append(report.QueryBlocks, qr)
	}
	for i := range report.QueryBlocks {
		report.QueryBlocks[i].FactTable = qbFact[report.QueryBlocks[i].QBID]
	}
	report.Summary.QueryBlocks = len(report.QueryBlocks)

	if disconnected > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d query block(s) have disconnected join graphs", disconnected))
	}
	if nonBase > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d query block(s) reference non-base sources", nonBase))
	}

	var stats prune.TableStats
	var keys prune.Keys
	if req.Schema.HasRowCounts() {
		stats, keys = req.Schema, req.Schema
	} else if opts.PruneA || opts.PruneE {
		report.Warnings = append(report.Warnings, "heuristics A and E skipped: schema has no row counts")
	}

	facts, err := s.runFactTables(ctx, coll, invariance.NewChecker(req.Schema), opts, opts.prune(stats, keys))
	if err != nil {
		return nil, err
	}
	nameJoinSets(facts)
	attachJoinSets(report.QueryBlocks, facts)
	report.FactTables = facts
	report.Summary.FactTables = len(facts)
	for _, f := range facts {
		report.Summary.Candidates += len(f.JoinSets)
		report.Summary.Pruned += len(f.Pruned)
	}

	for _, w := range report.Warnings {
		s.logger.Warn(w)
	}
	s.logger.Info("analysis complete",
		"query_blocks", report.Summary.QueryBlocks,
		"eligible", report.Summary.EligibleQBs,
		"fact_tables", report.Summary.FactTables,
		"candidates", report.Summary.Candidates,
		"pruned", report.Summary.Pruned)

	if req.Persist {
		if err := s.persist(ctx, report, req.Label, req.Source); err != nil {
			return nil, err
		}
	}
	return report, nil
}

func (s *Service) runFactTables(ctx context.Context, coll *joingraph.Collection, checker *invariance.Checker, opts Options, pruneOpts prune.Options) ([]FactReport, error) {
	factTables := coll.FactTables()
	out := make([]FactReport, len(factTables))
	pipeline := ecse.NewPipeline(checker, opts.pipeline())
	pruner := prune.New(pruneOpts)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, fact := range factTables {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items := coll.ItemsByFact(fact)
			sets := make([]*ecse.JoinSet, len(items))
			for j, it := range items {
				sets[j] = ecse.FromItem(it)
			}

			res, err := pipeline.Run(fact, sets)
			if err != nil {
				return err
			}
			pr := pruner.Prune(res.JoinSets)
			res.Stats.AfterPruning = pr.Stats.Output
			res.Stats.TotalPruned = pr.Stats.Total

			kept := make([]NamedJoinSet, len(pr.Kept))
			for j, js := range pr.Kept {
				kept[j] = NamedJoinSet{JoinSet: js}
			}
			pruned := pr.Pruned
			if pruned == nil {
				pruned = []prune.Pruned{}
			}
			out[i] = FactReport{
				FactTable:  fact,
				Stats:      res.Stats,
				PruneStats: pr.Stats,
				JoinSets:   kept,
				Pruned:     pruned,
			}

			s.logger.Info("fact table analyzed",
				"fact_table", fact,
				"input", res.Stats.InputCount,
				"intersections", res.Stats.IntersectionsGenerated,
				"unions", res.Stats.UnionsGenerated,
				"before_pruning", res.Stats.BeforePruning,
				"kept", pr.Stats.Output,
				"pruned", pr.Stats.Total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze fact tables: %w", err)
	}
	return out, nil
}

func (s *Service) persist(ctx context.Context, report *Report, label, source string) error {
	if s.store == nil {
		return domain.ErrValidation("no run store configured")
	}
	report.RunID = domain.NewID()
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	optsJSON, err := json.Marshal(report.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = s.store.Save(ctx, &store.Run{
		ID:      report.RunID,
		Label:   label,
		Source:  source,
		Options: optsJSON,
		Summary: store.RunSummary(report.Summary),
		Report:  body,
	})
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	s.logger.Info("run saved", "run_id", report.RunID)
	return nil
}

// GetRun loads a persisted run and decodes its report.
func (s *Service) GetRun(ctx context.Context, id string) (*store.Run, *Report, error) {
	if s.store == nil {
		return nil, nil, domain.ErrValidation("no run store configured")
	}
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var report Report
	if err := json.Unmarshal(run.Report, &report); err != nil {
		return nil, nil, fmt.Errorf("decode report of run %s: %w", id, err)
	}
	return run, &report, nil
}

// ListRuns lists persisted runs, newest first.
func (s *Service) ListRuns(ctx context.Context, page domain.Page) ([]store.Run, int64, error) {
	if s.store == nil {
		return nil, 0, domain.ErrValidation("no run store configured")
	}
	return s.store.List(ctx, page)
}

// HasStore reports whether runs can be persisted.
func (s *Service) HasStore() bool { return s.store != nil }

func qbReport(qb joingraph.QueryBlock, g *joingraph.Graph, elig joingraph.Eligibility) QBReport {
	sources := make([]SourceReport, len(qb.Sources))
	for i, src := range qb.Sources {
		sources[i] = SourceReport{Alias: src.Alias, Name: src.Name, Kind: string(src.Kind)}
	}
	edges := g.Edges().Edges()
	if edges == nil {
		edges = []joingraph.EdgeKey{}
	}
	elig.NonBaseSources = g.NonBaseSources()
	elig.HasNonBaseSources = len(elig.NonBaseSources) > 0
	return QBReport{
		QBID:        qb.ID,
		SourceFile:  qb.SourceFile,
		Kind:        qb.Kind,
		Sources:     sources,
		Edges:       edges,
		Eligibility: elig,
	}
}
