package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/livefetch/internal/ir"
)

// CompileEntity parses a CUE value into an EntitySchema.
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Item: fields: { title: string }`)
//	schema, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Item")))
func CompileEntity(v cue.Value) (*ir.EntitySchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &ir.EntitySchema{Fields: make(map[string]string)}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		schema.Name = labels[len(labels)-1].String()
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{
			Field:   "fields",
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		typ, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		schema.Fields[iter.Label()] = typ
	}

	if len(schema.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     fieldsVal.Pos(),
		}
	}

	return schema, nil
}

// extractTypeName converts a CUE type to an entity field type.
// Floats are forbidden: records hold exact scalars only.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.TypeString, nil
	case cue.IntKind:
		return ir.TypeInt, nil
	case cue.BoolKind:
		return ir.TypeBool, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
