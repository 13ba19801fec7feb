package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/livefetch/internal/ir"
)

// Predicate represents a filter condition over record fields.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal
//   - Compare: field <op> literal
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
	String() string
}

// Equals represents a field-equals-literal predicate.
//
// Example:
//
//	Equals{Field: "done", Value: ir.IRBool(false)}
//
// Translates to SQL:
//
//	json_extract(fields, '$.done') = 0
type Equals struct {
	Field string     // Field name in the entity schema
	Value ir.IRValue // Literal value (string, int or bool)
}

func (Equals) predicateNode() {}

func (e Equals) String() string {
	return fmt.Sprintf("%s = %s", e.Field, ir.Format(e.Value))
}

// CompareOp is an ordering comparison operator.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpNotEqual     CompareOp = "!="
)

// validCompareOps lists the operators accepted by Compare.
var validCompareOps = map[CompareOp]bool{
	OpLess:         true,
	OpLessEqual:    true,
	OpGreater:      true,
	OpGreaterEqual: true,
	OpNotEqual:     true,
}

// Compare represents an ordering comparison between a field and a literal.
//
// Example:
//
//	Compare{Field: "timestamp", Op: OpGreater, Value: ir.IRInt(100)}
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.IRValue
}

func (Compare) predicateNode() {}

func (c Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, ir.Format(c.Value))
}

// And represents a conjunction of predicates.
// Empty Predicates means "always true".
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

func (a And) String() string {
	if len(a.Predicates) == 0 {
		return "true"
	}
	parts := make([]string, len(a.Predicates))
	for i, p := range a.Predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, " AND ")
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// SortKey is one (field, direction) pair of a sort order.
type SortKey struct {
	Field     string
	Direction Direction
}

// Asc returns an ascending sort key.
func Asc(field string) SortKey {
	return SortKey{Field: field, Direction: Ascending}
}

// Desc returns a descending sort key.
func Desc(field string) SortKey {
	return SortKey{Field: field, Direction: Descending}
}

func (k SortKey) String() string {
	return k.Field + ":" + k.Direction.String()
}

// Reversed returns the key with its direction flipped.
func (k SortKey) Reversed() SortKey {
	if k.Direction == Descending {
		return Asc(k.Field)
	}
	return Desc(k.Field)
}

// QuerySpec describes what a live query fetches.
//
// Semantics:
//
//	SELECT * FROM <Entity> WHERE <Filter> ORDER BY <SortKeys...>
//
// Filter nil matches all records. SortKeys empty means unordered.
type QuerySpec struct {
	Entity   string
	Filter   Predicate
	SortKeys []SortKey
}

// New builds a QuerySpec. It performs no validation and cannot fail.
func New(entity string, filter Predicate, sortKeys ...SortKey) QuerySpec {
	return QuerySpec{
		Entity:   entity,
		Filter:   filter,
		SortKeys: slices.Clone(sortKeys),
	}
}

// All returns a spec matching every record of entity, unordered.
func All(entity string) QuerySpec {
	return QuerySpec{Entity: entity}
}

// WithFilter returns a copy of q with its filter replaced.
func (q QuerySpec) WithFilter(filter Predicate) QuerySpec {
	out := q.Clone()
	out.Filter = filter
	return out
}

// WithSortKeys returns a copy of q with its sort keys replaced.
func (q QuerySpec) WithSortKeys(keys ...SortKey) QuerySpec {
	out := q.Clone()
	out.SortKeys = slices.Clone(keys)
	return out
}

// Clone returns a copy of q that shares no mutable state with it.
// Predicates are immutable values and are shared.
func (q QuerySpec) Clone() QuerySpec {
	return QuerySpec{
		Entity:   q.Entity,
		Filter:   q.Filter,
		SortKeys: slices.Clone(q.SortKeys),
	}
}

// Unordered reports whether the spec carries no sort keys.
func (q QuerySpec) Unordered() bool {
	return len(q.SortKeys) == 0
}

func (q QuerySpec) String() string {
	var b strings.Builder
	b.WriteString(q.Entity)
	if q.Filter != nil {
		b.WriteString(" where ")
		b.WriteString(q.Filter.String())
	}
	if len(q.SortKeys) > 0 {
		b.WriteString(" sort ")
		b.WriteString(FormatSortKeys(q.SortKeys))
	}
	return b.String()
}
