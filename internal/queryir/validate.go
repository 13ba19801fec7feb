package queryir

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/livefetch/internal/ir"
)

// ErrUnknownEntity is returned when a spec names an entity kind the store
// has no schema for.
var ErrUnknownEntity = errors.New("unknown entity kind")

// identPattern restricts field and entity names to plain identifiers. Field
// names end up in JSON paths, so anything else is rejected up front.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name is usable as an entity or field name.
func ValidIdent(name string) bool {
	return identPattern.MatchString(name)
}

// ValidationError lists every problem found in a spec.
type ValidationError struct {
	Entity   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid query on %s: %s", e.Entity, strings.Join(e.Problems, "; "))
}

// Validate checks a spec against the schema of its entity kind.
//
// Checked rules:
//  1. Entity matches the schema name
//  2. Filter fields exist and literals match the declared field type
//  3. Compare operators are known; bool fields only support = and !=
//  4. Sort fields exist and are not repeated
//
// Validate is a pure function with no side effects. It returns nil or a
// *ValidationError.
func Validate(q QuerySpec, schema ir.EntitySchema) error {
	v := &validator{schema: schema}

	if q.Entity != schema.Name {
		v.addProblem("entity %q does not match schema %q", q.Entity, schema.Name)
	}
	if q.Filter != nil {
		v.validatePredicate(q.Filter)
	}
	v.validateSortKeys(q.SortKeys)

	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Entity: q.Entity, Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	schema   ir.EntitySchema
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.validateLiteral(pred.Field, pred.Value)
	case *Equals:
		v.validateLiteral(pred.Field, pred.Value)
	case Compare:
		v.validateCompare(pred)
	case *Compare:
		v.validateCompare(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case nil:
		v.addProblem("nil predicate inside conjunction")
	default:
		v.addProblem("unsupported predicate type %T", p)
	}
}

func (v *validator) validateCompare(c Compare) {
	if !validCompareOps[c.Op] {
		v.addProblem("unknown operator %q on field %q", c.Op, c.Field)
		return
	}
	if typ, ok := v.validateLiteral(c.Field, c.Value); ok && typ == ir.TypeBool && c.Op != OpNotEqual {
		v.addProblem("operator %q not supported on bool field %q", c.Op, c.Field)
	}
}

// validateLiteral checks a field reference and its literal. Returns the
// declared type and whether both were valid.
func (v *validator) validateLiteral(field string, value ir.IRValue) (string, bool) {
	typ, ok := v.checkField(field)
	if !ok {
		return "", false
	}
	if value == nil {
		v.addProblem("field %q compared to nil", field)
		return "", false
	}
	if got := ir.TypeName(value); got != typ {
		v.addProblem("field %q is %s, literal is %T", field, typ, value)
		return "", false
	}
	return typ, true
}

func (v *validator) checkField(field string) (string, bool) {
	if !ValidIdent(field) {
		v.addProblem("invalid field name %q", field)
		return "", false
	}
	typ, ok := v.schema.FieldType(field)
	if !ok {
		v.addProblem("unknown field %q", field)
		return "", false
	}
	return typ, true
}

func (v *validator) validateSortKeys(keys []SortKey) {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if _, ok := v.checkField(k.Field); !ok {
			continue
		}
		if seen[k.Field] {
			v.addProblem("field %q sorted more than once", k.Field)
		}
		seen[k.Field] = true
		if k.Direction != Ascending && k.Direction != Descending {
			v.addProblem("invalid direction %d on field %q", k.Direction, k.Field)
		}
	}
}
