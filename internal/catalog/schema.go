// Package catalog holds the schema metadata the join-set engine reasons
// about: tables, column nullability, primary keys, foreign keys, and the
// fact/dimension role hint.
//
// All lookups are case-insensitive. Names are normalized to lower case once,
// when the Schema is built; the original spelling is kept on Table and
// ForeignKey for display.
package catalog

import (
	"sort"
	"strings"

	"mv-advisor/internal/domain"
)

// Role is the fact/dimension hint attached to a table.
type Role string

// RoleFact and RoleDimension are the recognized table roles.
const (
	RoleFact      Role = "fact"
	RoleDimension Role = "dimension"
)

// Column describes one column of a table.
type Column struct {
	Name     string
	Nullable bool
}

// Table describes one physical table.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	Role       Role
	// RowCount is an optional statistic; zero means unknown.
	RowCount int64
}

// ForeignKey is a (possibly composite) reference from child columns to
// parent columns. Recommended keys are not enforced by the database but are
// trusted for invariance reasoning exactly like enforced ones.
type ForeignKey struct {
	FromTable   string
	FromColumns []string
	ToTable     string
	ToColumns   []string
	Enforced    bool
	Recommended bool
}

// IsSimple reports whether the key has a single column.
func (fk ForeignKey) IsSimple() bool { return len(fk.FromColumns) == 1 }

// Catalog is the read-only schema view consulted by the engine.
type Catalog interface {
	HasTable(table string) bool
	HasColumn(table, col string) bool
	IsNotNull(table, col string) bool
	FindForeignKey(childTable, childCol, parentTable, parentCol string) bool
	ForeignKeysFrom(table string) []ForeignKey
	RoleOf(table string) (Role, bool)
	ResolveColumn(col string, candidates []string) (string, Resolution)
}

// Resolution classifies the outcome of ResolveColumn.
type Resolution string

// Resolution values.
const (
	ResolutionUnique    Resolution = "unique"
	ResolutionAmbiguous Resolution = "ambiguous"
	ResolutionNotFound  Resolution = "not_found"
)

type tableEntry struct {
	table   Table
	columns map[string]Column
	pk      []string
}

type pairKey struct {
	child, childCol, parent, parentCol string
}

// Schema is the in-memory Catalog implementation. It is immutable once built
// and safe for concurrent readers.
type Schema struct {
	tables      map[string]*tableEntry
	names       []string
	fks         []ForeignKey
	fkByPair    map[pairKey]ForeignKey
	fkByChild   map[string][]ForeignKey
	colToTables map[string][]string
}

var _ Catalog = (*Schema)(nil)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// New builds a Schema and its lookup indexes.
func New(tables []Table, fks []ForeignKey) (*Schema, error) {
	s := &Schema{
		tables:      make(map[string]*tableEntry, len(tables)),
		fkByPair:    make(map[pairKey]ForeignKey),
		fkByChild:   make(map[string][]ForeignKey),
		colToTables: make(map[string][]string),
	}

	for _, t := range tables {
		name := norm(t.Name)
		if name == "" {
			return nil, domain.ErrValidation("table with empty name")
		}
		if _, dup := s.tables[name]; dup {
			return nil, domain.ErrValidation("duplicate table %q", t.Name)
		}
		if t.Role != "" && t.Role != RoleFact && t.Role != RoleDimension {
			return nil, domain.ErrValidation("table %q: unknown role %q", t.Name, t.Role)
		}
		e := &tableEntry{table: t, columns: make(map[string]Column, len(t.Columns))}
		for _, c := range t.Columns {
			col := norm(c.Name)
			e.columns[col] = c
			s.colToTables[col] = append(s.colToTables[col], name)
		}
		for _, pk := range t.PrimaryKey {
			e.pk = append(e.pk, norm(pk))
		}
		s.tables[name] = e
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	for col := range s.colToTables {
		sort.Strings(s.colToTables[col])
	}

	for _, fk := range fks {
		if len(fk.FromColumns) == 0 || len(fk.FromColumns) != len(fk.ToColumns) {
			return nil, domain.ErrValidation("foreign key %s -> %s: column count mismatch", fk.FromTable, fk.ToTable)
		}
		s.fks = append(s.fks, fk)
		child := norm(fk.FromTable)
		s.fkByChild[child] = append(s.fkByChild[child], fk)
		if fk.IsSimple() {
			k := pairKey{child, norm(fk.FromColumns[0]), norm(fk.ToTable), norm(fk.ToColumns[0])}
			if _, ok := s.fkByPair[k]; !ok {
				s.fkByPair[k] = fk
			}
		}
	}
	return s, nil
}

// HasTable reports whether the table exists.
func (s *Schema) HasTable(table string) bool {
	_, ok := s.tables[norm(table)]
	return ok
}

// HasColumn reports whether the table has the column.
func (s *Schema) HasColumn(table, col string) bool {
	e, ok := s.tables[norm(table)]
	if !ok {
		return false
	}
	_, ok = e.columns[norm(col)]
	return ok
}

// IsNotNull reports whether the column is declared NOT NULL. Unknown
// columns are treated as nullable.
func (s *Schema) IsNotNull(table, col string) bool {
	e, ok := s.tables[norm(table)]
	if !ok {
		return false
	}
	c, ok := e.columns[norm(col)]
	return ok && !c.Nullable
}

// FindForeignKey reports whether a single-column foreign key (enforced or
// recommended) exists from childTable.childCol to parentTable.parentCol.
func (s *Schema) FindForeignKey(childTable, childCol, parentTable, parentCol string) bool {
	_, ok := s.fkByPair[pairKey{norm(childTable), norm(childCol), norm(parentTable), norm(parentCol)}]
	return ok
}

// ForeignKeysFrom returns all foreign keys whose child is the table.
func (s *Schema) ForeignKeysFrom(table string) []ForeignKey {
	return s.fkByChild[norm(table)]
}

// RoleOf returns the role hint of the table, if one is declared.
func (s *Schema) RoleOf(table string) (Role, bool) {
	e, ok := s.tables[norm(table)]
	if !ok || e.table.Role == "" {
		return "", false
	}
	return e.table.Role, true
}

// PrimaryKey returns the normalized primary key columns of the table.
func (s *Schema) PrimaryKey(table string) []string {
	e, ok := s.tables[norm(table)]
	if !ok {
		return nil
	}
	return e.pk
}

// IsSingleColumnKey reports whether col alone is the table's primary key.
func (s *Schema) IsSingleColumnKey(table, col string) bool {
	pk := s.PrimaryKey(table)
	return len(pk) == 1 && pk[0] == norm(col)
}

// RowCount returns the table's row count statistic, if known.
func (s *Schema) RowCount(table string) (int64, bool) {
	e, ok := s.tables[norm(table)]
	if !ok || e.table.RowCount <= 0 {
		return 0, false
	}
	return e.table.RowCount, true
}

// HasRowCounts reports whether any table carries a row count.
func (s *Schema) HasRowCounts() bool {
	for _, e := range s.tables {
		if e.table.RowCount > 0 {
			return true
		}
	}
	return false
}

// Table returns the table definition.
func (s *Schema) Table(name string) (Table, bool) {
	e, ok := s.tables[norm(name)]
	if !ok {
		return Table{}, false
	}
	return e.table, true
}

// Tables returns all tables ordered by normalized name.
func (s *Schema) Tables() []Table {
	out := make([]Table, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.tables[n].table)
	}
	return out
}

// ForeignKeys returns all foreign keys in declaration order.
func (s *Schema) ForeignKeys() []ForeignKey { return s.fks }

// ResolveColumn finds the single table (among candidates, or all tables when
// candidates is empty) that has the column.
func (s *Schema) ResolveColumn(col string, candidates []string) (string, Resolution) {
	tables := s.colToTables[norm(col)]
	if len(candidates) > 0 {
		allowed := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			allowed[norm(c)] = true
		}
		var filtered []string
		for _, t := range tables {
			if allowed[t] {
				filtered = append(filtered, t)
			}
		}
		tables = filtered
	}
	switch len(tables) {
	case 0:
		return "", ResolutionNotFound
	case 1:
		return tables[0], ResolutionUnique
	default:
		return "", ResolutionAmbiguous
	}
}
