package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mv-advisor/internal/domain"
)

// RunSummary holds the headline counts of a run.
type RunSummary struct {
	QueryBlocks int `json:"query_blocks"`
	EligibleQBs int `json:"eligible_qbs"`
	FactTables  int `json:"fact_tables"`
	Candidates  int `json:"candidates"`
	Pruned      int `json:"pruned"`
}

// Run is one persisted advisor run. Report holds the full JSON report and
// is omitted from list results.
type Run struct {
	ID        string          `json:"id"`
	Label     string          `json:"label,omitempty"`
	Source    string          `json:"source,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
	Summary   RunSummary      `json:"summary"`
	Report    json.RawMessage `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the SQLite run store. Writes go through a single-connection
// pool; reads use a separate pool.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
	version int64
}

// Open opens the store at path and applies pending migrations.
func Open(path string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	writeDB, err := openPool(ctx, path, true, 1)
	if err != nil {
		return nil, err
	}
	version, err := migrate(ctx, writeDB)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}
	readDB, err := openPool(ctx, path, false, readPoolSize)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}
	return &Store{writeDB: writeDB, readDB: readDB, version: version}, nil
}

// SchemaVersion is the migration version the store was opened at.
func (s *Store) SchemaVersion() int64 { return s.version }

// Close closes both pools.
func (s *Store) Close() error {
	return errors.Join(s.readDB.Close(), s.writeDB.Close())
}

// Save inserts a run, assigning an id when it has none.
func (s *Store) Save(ctx context.Context, run *Run) (*Run, error) {
	if run == nil {
		return nil, domain.ErrValidation("run is required")
	}
	if len(run.Report) == 0 {
		return nil, domain.ErrValidation("run report is required")
	}
	if run.ID == "" {
		run.ID = domain.NewID()
	}
	opts := run.Options
	if len(opts) == 0 {
		opts = json.RawMessage("{}")
	}

	_, err := s.writeDB.ExecContext(ctx, `
		INSERT INTO runs (id, label, source, options_json, query_blocks, eligible_qbs,
		                  fact_tables, candidates, pruned, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, run.Source, string(opts),
		run.Summary.QueryBlocks, run.Summary.EligibleQBs, run.Summary.FactTables,
		run.Summary.Candidates, run.Summary.Pruned, string(run.Report))
	if err != nil {
		return nil, mapDBError(err, run.ID)
	}
	return s.Get(ctx, run.ID)
}

// Get returns a run with its report.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var (
		run          Run
		opts, report string
	)
	err := s.readDB.QueryRowContext(ctx, `
		SELECT id, label, source, options_json, query_blocks, eligible_qbs,
		       fact_tables, candidates, pruned, report_json, created_at
		FROM runs WHERE id = ?
	`, id).Scan(
		&run.ID, &run.Label, &run.Source, &opts,
		&run.Summary.QueryBlocks, &run.Summary.EligibleQBs, &run.Summary.FactTables,
		&run.Summary.Candidates, &run.Summary.Pruned, &report, &run.CreatedAt,
	)
	if err != nil {
		return nil, mapDBError(err, id)
	}
	run.Options = json.RawMessage(opts)
	run.Report = json.RawMessage(report)
	return &run, nil
}

// List returns runs newest first, without reports, and the total count.
func (s *Store) List(ctx context.Context, page domain.Page) ([]Run, int64, error) {
	var total int64
	if err := s.readDB.QueryRowContext(ctx, `SELECT count(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, label, source, options_json, query_blocks, eligible_qbs,
		       fact_tables, candidates, pruned, created_at
		FROM runs
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, page.Limit(), page.Start())
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var (
			run  Run
			opts string
		)
		if err := rows.Scan(
			&run.ID, &run.Label, &run.Source, &opts,
			&run.Summary.QueryBlocks, &run.Summary.EligibleQBs, &run.Summary.FactTables,
			&run.Summary.Candidates, &run.Summary.Pruned, &run.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		run.Options = json.RawMessage(opts)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	return runs, total, nil
}

// Delete removes a run.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound("run %q not found", id)
	}
	return nil
}

func mapDBError(err error, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("run %q not found", id)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.ErrConflict("run %q already exists", id)
	}
	return err
}
