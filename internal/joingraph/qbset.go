package joingraph

import (
	"encoding/json"
	"slices"
	"strings"
)

// QBSet is an immutable sorted set of query block ids.
type QBSet struct {
	ids []string
}

// NewQBSet builds a set from ids.
func NewQBSet(ids ...string) QBSet {
	s := slices.Clone(ids)
	slices.Sort(s)
	return QBSet{ids: slices.Compact(s)}
}

// Len returns the set size.
func (s QBSet) Len() int { return len(s.ids) }

// IDs returns the ids in sorted order. Callers must not modify the result.
func (s QBSet) IDs() []string { return s.ids }

// Contains reports membership.
func (s QBSet) Contains(id string) bool {
	_, ok := slices.BinarySearch(s.ids, id)
	return ok
}

// Union returns s ∪ o.
func (s QBSet) Union(o QBSet) QBSet {
	if len(o.ids) == 0 {
		return s
	}
	return NewQBSet(append(slices.Clone(s.ids), o.ids...)...)
}

// Minus returns s − o.
func (s QBSet) Minus(o QBSet) QBSet {
	var out []string
	for _, id := range s.ids {
		if !o.Contains(id) {
			out = append(out, id)
		}
	}
	return QBSet{ids: out}
}

// SubsetOf reports s ⊆ o.
func (s QBSet) SubsetOf(o QBSet) bool {
	if len(s.ids) > len(o.ids) {
		return false
	}
	for _, id := range s.ids {
		if !o.Contains(id) {
			return false
		}
	}
	return true
}

// Equal reports set equality.
func (s QBSet) Equal(o QBSet) bool { return slices.Equal(s.ids, o.ids) }

func (s QBSet) String() string { return strings.Join(s.ids, ",") }

// MarshalJSON encodes the set as a sorted array.
func (s QBSet) MarshalJSON() ([]byte, error) {
	if s.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.ids)
}

// UnmarshalJSON decodes an array of ids.
func (s *QBSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewQBSet(ids...)
	return nil
}
