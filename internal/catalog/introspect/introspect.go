// Package introspect builds a catalog.Schema from a live SQLite or DuckDB
// database by reading its table, column, primary-key and foreign-key
// metadata.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver

	"mv-advisor/internal/catalog"
	"mv-advisor/internal/domain"
)

// Dialect names the database flavour being introspected.
type Dialect string

// Supported dialects.
const (
	DialectSQLite Dialect = "sqlite"
	DialectDuckDB Dialect = "duckdb"
)

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(s)) {
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	case DialectDuckDB:
		return DialectDuckDB, nil
	}
	return "", domain.ErrValidation("unsupported dialect %q: must be sqlite or duckdb", s)
}

// Options narrows and annotates what is read.
type Options struct {
	// Schema is the DuckDB schema to read. Defaults to "main".
	Schema string
	// FactTables are tagged with the fact role.
	FactTables []string
	// CountRows records each table's row count for the pruning statistics.
	CountRows bool
}

// Open opens a read-only connection for the dialect.
func Open(dialect Dialect, path string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = sql.Open("sqlite3", "file:"+path+"?mode=ro")
	case DialectDuckDB:
		db, err = sql.Open("duckdb", path+"?access_mode=read_only")
	default:
		return nil, domain.ErrValidation("unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	return db, nil
}

// Introspector reads schema metadata from one database handle.
type Introspector struct {
	db      *sql.DB
	dialect Dialect
}

// New creates an Introspector over an open database.
func New(db *sql.DB, dialect Dialect) *Introspector {
	return &Introspector{db: db, dialect: dialect}
}

type tableSet struct {
	order  []string
	tables map[string]*catalog.Table
}

func newTableSet() *tableSet {
	return &tableSet{tables: make(map[string]*catalog.Table)}
}

func (ts *tableSet) get(name string) *catalog.Table {
	if t, ok := ts.tables[name]; ok {
		return t
	}
	t := &catalog.Table{Name: name}
	ts.tables[name] = t
	ts.order = append(ts.order, name)
	return t
}

func (ts *tableSet) list(facts []string) []catalog.Table {
	isFact := make(map[string]bool, len(facts))
	for _, f := range facts {
		isFact[strings.ToLower(f)] = true
	}
	sort.Strings(ts.order)
	out := make([]catalog.Table, 0, len(ts.order))
	for _, name := range ts.order {
		t := *ts.tables[name]
		if isFact[strings.ToLower(name)] {
			t.Role = catalog.RoleFact
		}
		out = append(out, t)
	}
	return out
}

// Load reads all tables and constraints and builds a Schema.
func (i *Introspector) Load(ctx context.Context, opts Options) (*catalog.Schema, error) {
	var (
		ts  *tableSet
		fks []catalog.ForeignKey
		err error
	)
	switch i.dialect {
	case DialectSQLite:
		ts, fks, err = i.loadSQLite(ctx)
	case DialectDuckDB:
		schema := opts.Schema
		if schema == "" {
			schema = "main"
		}
		ts, fks, err = i.loadDuckDB(ctx, schema)
	default:
		return nil, domain.ErrValidation("unsupported dialect %q", i.dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", i.dialect, err)
	}
	if opts.CountRows {
		if err := i.countRows(ctx, ts); err != nil {
			return nil, fmt.Errorf("introspect %s: %w", i.dialect, err)
		}
	}
	return catalog.New(ts.list(opts.FactTables), fks)
}

func (i *Introspector) countRows(ctx context.Context, ts *tableSet) error {
	for _, name := range ts.order {
		q := `SELECT count(*) FROM "` + strings.ReplaceAll(name, `"`, `""`) + `"`
		if err := i.db.QueryRowContext(ctx, q).Scan(&ts.tables[name].RowCount); err != nil {
			return fmt.Errorf("count %s: %w", name, err)
		}
	}
	return nil
}

func (i *Introspector) loadSQLite(ctx context.Context) (*tableSet, []catalog.ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, nil, err
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			_ = rows.Close()
			return nil, nil, err
		}
		names = append(names, n)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	ts := newTableSet()
	for _, name := range names {
		if err := i.sqliteColumns(ctx, ts.get(name)); err != nil {
			return nil, nil, fmt.Errorf("table %s: %w", name, err)
		}
	}

	var fks []catalog.ForeignKey
	for _, name := range names {
		tfks, err := i.sqliteForeignKeys(ctx, name, ts)
		if err != nil {
			return nil, nil, fmt.Errorf("table %s: %w", name, err)
		}
		fks = append(fks, tfks...)
	}
	return ts, fks, nil
}

func (i *Introspector) sqliteColumns(ctx context.Context, t *catalog.Table) error {
	rows, err := i.db.QueryContext(ctx,
		`SELECT name, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, t.Name)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck

	type pkCol struct {
		name string
		pos  int
	}
	var pks []pkCol
	for rows.Next() {
		var (
			name    string
			notNull int
			pk      int
		)
		if err := rows.Scan(&name, &notNull, &pk); err != nil {
			return err
		}
		t.Columns = append(t.Columns, catalog.Column{Name: name, Nullable: notNull == 0})
		if pk > 0 {
			pks = append(pks, pkCol{name, pk})
		}
	}
	sort.Slice(pks, func(a, b int) bool { return pks[a].pos < pks[b].pos })
	for _, p := range pks {
		t.PrimaryKey = append(t.PrimaryKey, p.name)
	}
	return rows.Err()
}

func (i *Introspector) sqliteForeignKeys(ctx context.Context, table string, ts *tableSet) ([]catalog.ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var (
		out    []catalog.ForeignKey
		lastID = -1
	)
	for rows.Next() {
		var (
			id     int
			parent string
			from   string
			to     sql.NullString
		)
		if err := rows.Scan(&id, &parent, &from, &to); err != nil {
			return nil, err
		}
		if id != lastID {
			out = append(out, catalog.ForeignKey{FromTable: table, ToTable: parent, Enforced: true})
			lastID = id
		}
		fk := &out[len(out)-1]
		fk.FromColumns = append(fk.FromColumns, from)
		if to.Valid && to.String != "" {
			fk.ToColumns = append(fk.ToColumns, to.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// A reference without explicit parent columns targets the parent's key.
	for j := range out {
		if len(out[j].ToColumns) == 0 {
			if p, ok := ts.tables[out[j].ToTable]; ok {
				out[j].ToColumns = append([]string(nil), p.PrimaryKey...)
			}
		}
	}
	return out, nil
}

func (i *Introspector) loadDuckDB(ctx context.Context, schema string) (*tableSet, []catalog.ForeignKey, error) {
	ts := newTableSet()

	rows, err := i.db.QueryContext(ctx,
		`SELECT table_name, column_name, is_nullable FROM duckdb_columns()
		 WHERE schema_name = ? ORDER BY table_name, column_index`, schema)
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var (
			table, col string
			nullable   bool
		)
		if err := rows.Scan(&table, &col, &nullable); err != nil {
			_ = rows.Close()
			return nil, nil, err
		}
		t := ts.get(table)
		t.Columns = append(t.Columns, catalog.Column{Name: col, Nullable: nullable})
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = i.db.QueryContext(ctx,
		`SELECT table_name, constraint_type,
		        array_to_string(constraint_column_names, ','),
		        coalesce(referenced_table, ''),
		        coalesce(array_to_string(referenced_column_names, ','), '')
		 FROM duckdb_constraints()
		 WHERE schema_name = ? AND constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')
		 ORDER BY table_name, constraint_index`, schema)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close() //nolint:errcheck

	var (
		fks  []catalog.ForeignKey
		seen = make(map[string]bool)
	)
	for rows.Next() {
		var table, kind, cols, refTable, refCols string
		if err := rows.Scan(&table, &kind, &cols, &refTable, &refCols); err != nil {
			return nil, nil, err
		}
		switch kind {
		case "PRIMARY KEY":
			ts.get(table).PrimaryKey = splitCols(cols)
		case "FOREIGN KEY":
			key := table + "|" + cols + "|" + refTable + "|" + refCols
			if seen[key] {
				continue
			}
			seen[key] = true
			fks = append(fks, catalog.ForeignKey{
				FromTable:   table,
				FromColumns: splitCols(cols),
				ToTable:     refTable,
				ToColumns:   splitCols(refCols),
				Enforced:    true,
			})
		}
	}
	return ts, fks, rows.Err()
}

func splitCols(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for j := range parts {
		parts[j] = strings.TrimSpace(parts[j])
	}
	return parts
}
