// Package joingraph models the join structure of a single query block: table
// instances, canonical join edges, edge sets, and the per-QB join graph used
// to decide whether a query block takes part in join-set analysis.
package joingraph

import (
	"cmp"
	"fmt"
	"strings"

	"mv-advisor/internal/domain"
)

// TableInstance is one occurrence of a base table in a query block. Two
// aliases of the same table (date_dim d1, date_dim d2) are distinct
// instances. Identity and ordering use ID only; DisplayID keeps the alias
// as it was written and is for output only.
type TableInstance struct {
	ID        string `json:"instance_id"`
	DisplayID string `json:"display_id"`
	BaseTable string `json:"base_table"`
}

// NewInstance returns a normalized instance. An empty id defaults to the
// base table name.
func NewInstance(id, baseTable string) TableInstance {
	display := strings.TrimSpace(id)
	if display == "" {
		display = strings.TrimSpace(baseTable)
	}
	return TableInstance{
		ID:        strings.ToLower(display),
		DisplayID: display,
		BaseTable: strings.ToLower(strings.TrimSpace(baseTable)),
	}
}

func (t TableInstance) String() string {
	if t.ID == t.BaseTable {
		return t.BaseTable
	}
	return t.BaseTable + " " + cmp.Or(t.DisplayID, t.ID)
}

// JoinType is the SQL join kind of an edge.
type JoinType string

// Join types accepted on input. RIGHT is rewritten to LEFT on normalization.
const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinCross JoinType = "CROSS"
)

// ParseJoinType normalizes a join type name. An empty name means INNER.
func ParseJoinType(s string) (JoinType, error) {
	switch jt := JoinType(strings.ToUpper(strings.TrimSpace(s))); jt {
	case "":
		return JoinInner, nil
	case JoinInner, JoinLeft, JoinRight, JoinCross:
		return jt, nil
	}
	return "", domain.ErrValidation("unsupported join type %q", s)
}

// opAliases rewrites alternate spellings to the canonical operator.
var opAliases = map[string]string{
	"==": "=",
	"<>": "!=",
}

// NormalizeOp trims op and rewrites alternate spellings, so "<>" and "!="
// produce the same key.
func NormalizeOp(op string) string {
	op = strings.TrimSpace(op)
	if canon, ok := opAliases[op]; ok {
		return canon
	}
	return op
}

// flippedOps maps each canonical comparison operator to its mirror image,
// so that a op b is equivalent to b flippedOps[op] a.
var flippedOps = map[string]string{
	"=":  "=",
	"!=": "!=",
	"<":  ">",
	">":  "<",
	"<=": ">=",
	">=": "<=",
}

// ValidOp reports whether op is a supported comparison operator in any
// accepted spelling.
func ValidOp(op string) bool {
	_, ok := flippedOps[NormalizeOp(op)]
	return ok
}

// FlipOp returns the operator that keeps the predicate's meaning when its
// operands are swapped. Unknown operators are returned unchanged.
func FlipOp(op string) string {
	if f, ok := flippedOps[op]; ok {
		return f
	}
	return op
}

// EdgeKey is the canonical form of a join predicate between two instances.
// LeftTable and RightTable are metadata for schema lookups and never take
// part in equality or ordering, nor do the display aliases.
type EdgeKey struct {
	LeftInstance  string   `json:"left_instance"`
	LeftCol       string   `json:"left_col"`
	RightInstance string   `json:"right_instance"`
	RightCol      string   `json:"right_col"`
	Op            string   `json:"op"`
	JoinType      JoinType `json:"join_type"`
	LeftTable     string   `json:"left_table"`
	RightTable    string   `json:"right_table"`
	LeftDisplay   string   `json:"-"`
	RightDisplay  string   `json:"-"`
}

// NewEdgeKey builds the canonical key for "left.leftCol op right.rightCol".
//
// INNER and CROSS edges are reordered so that (left instance, left column)
// sorts first, flipping asymmetric operators. LEFT edges keep their
// direction (left is preserved, right is nullable). RIGHT edges become LEFT
// edges with the sides swapped.
func NewEdgeKey(left TableInstance, leftCol string, right TableInstance, rightCol string, op string, jt JoinType) (EdgeKey, error) {
	op = NormalizeOp(op)
	if !ValidOp(op) {
		return EdgeKey{}, domain.ErrValidation("unsupported join operator %q", op)
	}
	jt, err := ParseJoinType(string(jt))
	if err != nil {
		return EdgeKey{}, err
	}

	e := EdgeKey{
		LeftInstance:  left.ID,
		LeftCol:       strings.ToLower(strings.TrimSpace(leftCol)),
		RightInstance: right.ID,
		RightCol:      strings.ToLower(strings.TrimSpace(rightCol)),
		Op:            op,
		JoinType:      jt,
		LeftTable:     left.BaseTable,
		RightTable:    right.BaseTable,
		LeftDisplay:   left.DisplayID,
		RightDisplay:  right.DisplayID,
	}

	switch jt {
	case JoinRight:
		e = e.swapped()
		e.JoinType = JoinLeft
	case JoinInner, JoinCross:
		if cmp.Or(
			cmp.Compare(e.RightInstance, e.LeftInstance),
			cmp.Compare(e.RightCol, e.LeftCol),
		) < 0 {
			e = e.swapped()
		}
	}
	return e, nil
}

func (e EdgeKey) swapped() EdgeKey {
	return EdgeKey{
		LeftInstance:  e.RightInstance,
		LeftCol:       e.RightCol,
		RightInstance: e.LeftInstance,
		RightCol:      e.LeftCol,
		Op:            flippedOps[e.Op],
		JoinType:      e.JoinType,
		LeftTable:     e.RightTable,
		RightTable:    e.LeftTable,
		LeftDisplay:   e.RightDisplay,
		RightDisplay:  e.LeftDisplay,
	}
}

// Left returns the left endpoint as an instance.
func (e EdgeKey) Left() TableInstance {
	return TableInstance{ID: e.LeftInstance, DisplayID: cmp.Or(e.LeftDisplay, e.LeftInstance), BaseTable: e.LeftTable}
}

// Right returns the right endpoint as an instance.
func (e EdgeKey) Right() TableInstance {
	return TableInstance{ID: e.RightInstance, DisplayID: cmp.Or(e.RightDisplay, e.RightInstance), BaseTable: e.RightTable}
}

// Touches reports whether either endpoint is the given instance.
func (e EdgeKey) Touches(instanceID string) bool {
	return e.LeftInstance == instanceID || e.RightInstance == instanceID
}

// SameAs reports identity equality, ignoring base-table metadata.
func (e EdgeKey) SameAs(o EdgeKey) bool { return CompareEdges(e, o) == 0 }

// CompareEdges orders edges by their identity fields.
func CompareEdges(a, b EdgeKey) int {
	return cmp.Or(
		cmp.Compare(a.LeftInstance, b.LeftInstance),
		cmp.Compare(a.LeftCol, b.LeftCol),
		cmp.Compare(a.RightInstance, b.RightInstance),
		cmp.Compare(a.RightCol, b.RightCol),
		cmp.Compare(a.Op, b.Op),
		cmp.Compare(a.JoinType, b.JoinType),
	)
}

func (e EdgeKey) identity() string {
	return strings.Join([]string{e.LeftInstance, e.LeftCol, e.RightInstance, e.RightCol, e.Op, string(e.JoinType)}, "\x1f")
}

func (e EdgeKey) String() string {
	s := fmt.Sprintf("%s.%s %s %s.%s", e.LeftInstance, e.LeftCol, e.Op, e.RightInstance, e.RightCol)
	if e.JoinType != JoinInner {
		s += " (" + string(e.JoinType) + ")"
	}
	return s
}
