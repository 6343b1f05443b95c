package joingraph

import (
	"strings"

	"mv-advisor/internal/catalog"
)

// DefaultFactTables is the known fact-table list used when none is
// configured (the TPC-DS fact tables).
var DefaultFactTables = []string{
	"store_sales",
	"store_returns",
	"catalog_sales",
	"catalog_returns",
	"web_sales",
	"web_returns",
	"inventory",
}

// FactTableDetector picks the fact table of a set of instances.
type FactTableDetector struct {
	cat   catalog.Catalog
	known map[string]bool
}

// NewFactTableDetector creates a detector. A nil known list selects
// DefaultFactTables.
func NewFactTableDetector(cat catalog.Catalog, known []string) *FactTableDetector {
	if known == nil {
		known = DefaultFactTables
	}
	d := &FactTableDetector{cat: cat, known: make(map[string]bool, len(known))}
	for _, t := range known {
		d.known[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return d
}

// Detect returns the fact table among the instances' base tables, trying in
// order: a table whose schema role is fact, a table on the known list, and
// the table with the most outgoing foreign keys. Candidates are examined in
// name order so ties resolve deterministically.
func (d *FactTableDetector) Detect(instances []TableInstance) (string, bool) {
	tables := BaseTablesOf(instances)
	if len(tables) == 0 {
		return "", false
	}

	for _, t := range tables {
		if role, ok := d.cat.RoleOf(t); ok && role == catalog.RoleFact {
			return t, true
		}
	}
	for _, t := range tables {
		if d.known[t] {
			return t, true
		}
	}

	best, bestFKs := "", 0
	for _, t := range tables {
		if n := len(d.cat.ForeignKeysFrom(t)); n > bestFKs {
			best, bestFKs = t, n
		}
	}
	return best, best != ""
}
