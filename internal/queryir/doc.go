// Package queryir provides the query description used by live queries.
//
// A QuerySpec names an entity kind, an optional filter predicate and an
// ordered list of sort keys. It is pure data: building one performs no I/O
// and cannot fail. Problems such as an unknown entity or a filter on an
// undeclared field are reported by Validate, which the store runs at fetch
// time.
//
// ARCHITECTURE:
//
//	[CUE declarations / CLI flags] → [QuerySpec] → [querysql] → [SQLite]
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only
// types in this package implement it, which enables exhaustive type
// switches in the SQL backend and the validator:
//
//	switch p := pred.(type) {
//	case Equals:
//	case Compare:
//	case And:
//	}
//
// ORDERING:
//
// Sort keys are applied in order; earlier keys take priority and later keys
// break ties. A spec with no sort keys is explicitly unordered: the backend
// still returns rows in a deterministic order, but callers must not rely on
// any particular one.
//
// IMMUTABILITY:
//
// QuerySpec values are copied on every With* call. The sort key slice is
// never shared between two specs, so a spec captured by one controller is
// not affected by reconfiguring another.
package queryir
