package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

// NamedQuery is a declared default query.
type NamedQuery struct {
	Name string
	Spec queryir.QuerySpec
}

// CompileQuery parses a CUE value into a NamedQuery. The spec is not checked
// against any entity schema; see ValidateQuery.
func CompileQuery(v cue.Value) (*NamedQuery, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	q := &NamedQuery{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		q.Name = labels[len(labels)-1].String()
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{
			Field:   "entity",
			Message: "entity is required",
			Pos:     v.Pos(),
		}
	}
	entity, err := entityVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	filter, err := parseWhere(v.LookupPath(cue.ParsePath("where")))
	if err != nil {
		return nil, err
	}
	keys, err := parseSort(v.LookupPath(cue.ParsePath("sort")))
	if err != nil {
		return nil, err
	}

	q.Spec = queryir.New(entity, filter, keys...)
	return q, nil
}

func parseWhere(v cue.Value) (queryir.Predicate, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var preds []queryir.Predicate
	for iter.Next() {
		p, err := parseCondition(iter.Value())
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	switch len(preds) {
	case 0:
		return nil, nil
	case 1:
		return preds[0], nil
	default:
		return queryir.And{Predicates: preds}, nil
	}
}

func parseCondition(v cue.Value) (queryir.Predicate, error) {
	if s, err := v.String(); err == nil {
		p, err := queryir.ParseCondition(s)
		if err != nil {
			return nil, &CompileError{Field: "where", Message: err.Error(), Pos: v.Pos()}
		}
		return p, nil
	}

	fieldVal := v.LookupPath(cue.ParsePath("field"))
	if !fieldVal.Exists() {
		return nil, &CompileError{
			Field:   "where",
			Message: "condition must be a string or have a field",
			Pos:     v.Pos(),
		}
	}
	field, err := fieldVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}

	op := "="
	if opVal := v.LookupPath(cue.ParsePath("op")); opVal.Exists() {
		if op, err = opVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
	}

	valueVal := v.LookupPath(cue.ParsePath("value"))
	if !valueVal.Exists() {
		return nil, &CompileError{
			Field:   "where.value",
			Message: fmt.Sprintf("condition on %q has no value", field),
			Pos:     v.Pos(),
		}
	}
	value, err := extractLiteral(valueVal)
	if err != nil {
		return nil, err
	}

	switch op {
	case "=", "==":
		return queryir.Equals{Field: field, Value: value}, nil
	case "<", "<=", ">", ">=", "!=":
		return queryir.Compare{Field: field, Op: queryir.CompareOp(op), Value: value}, nil
	default:
		return nil, &CompileError{
			Field:   "where.op",
			Message: fmt.Sprintf("unknown operator %q", op),
			Pos:     v.Pos(),
		}
	}
}

// extractLiteral converts a concrete CUE scalar to an IRValue.
func extractLiteral(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "where.value",
			Message: "float literals are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   "where.value",
			Message: fmt.Sprintf("value must be a concrete string, int or bool, got %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

func parseSort(v cue.Value) ([]queryir.SortKey, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var keys []queryir.SortKey
	for iter.Next() {
		elem := iter.Value()

		expr, err := elem.String()
		if err != nil {
			// Struct form: {field, dir}
			fieldVal := elem.LookupPath(cue.ParsePath("field"))
			if !fieldVal.Exists() {
				return nil, &CompileError{
					Field:   "sort",
					Message: "sort key must be a string or have a field",
					Pos:     elem.Pos(),
				}
			}
			if expr, err = fieldVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
			if dirVal := elem.LookupPath(cue.ParsePath("dir")); dirVal.Exists() {
				dir, err := dirVal.String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				expr += ":" + dir
			}
		}

		key, err := queryir.ParseSortKey(expr)
		if err != nil {
			return nil, &CompileError{Field: "sort", Message: err.Error(), Pos: elem.Pos()}
		}
		keys = append(keys, key)
	}
	return keys, nil
}
