package compiler

import (
	"fmt"
	"sort"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Entity errors (E101-E109)
	ErrEntityNoFields     = "E101" // entity declares no fields
	ErrInvalidEntityName  = "E102" // entity name is not an identifier
	ErrInvalidFieldName   = "E103" // field name is not an identifier
	ErrInvalidFieldType   = "E104" // invalid type string
	ErrDuplicateName      = "E105" // duplicate entity or query name
	ErrFloatTypeForbidden = "E106" // float types not allowed

	// Query errors (E110-E119)
	ErrUndeclaredEntity   = "E110" // query names an undeclared entity
	ErrInvalidWhereClause = "E112" // invalid where clause
	ErrInvalidSortKey     = "E113" // invalid sort key
)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled entity schema.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch s := v.(type) {
	case *ir.EntitySchema:
		return validateEntity(s)
	case ir.EntitySchema:
		return validateEntity(&s)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateEntity(schema *ir.EntitySchema) []ValidationError {
	var errs []ValidationError
	path := "entity." + schema.Name

	if !queryir.ValidIdent(schema.Name) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("invalid entity name %q", schema.Name),
			Code:    ErrInvalidEntityName,
		})
	}
	if len(schema.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   path + ".fields",
			Message: "at least one field is required",
			Code:    ErrEntityNoFields,
		})
	}

	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fieldPath := path + ".fields." + name
		if !queryir.ValidIdent(name) {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("invalid field name %q", name),
				Code:    ErrInvalidFieldName,
			})
		}
		typ := schema.Fields[name]
		switch {
		case typ == "float" || typ == "float64" || typ == "number":
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("float type forbidden for field %q, use int instead", name),
				Code:    ErrFloatTypeForbidden,
			})
		case !ir.ValidFieldTypes[typ]:
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("invalid type %q for field %q", typ, name),
				Code:    ErrInvalidFieldType,
			})
		}
	}

	return errs
}

// ValidateQuery checks a named query against the declared schemas.
// Filter and sort problems are reported separately.
func ValidateQuery(q NamedQuery, schemas map[string]ir.EntitySchema) []ValidationError {
	path := "query." + q.Name
	schema, ok := schemas[q.Spec.Entity]
	if !ok {
		return []ValidationError{{
			Field:   path + ".entity",
			Message: fmt.Sprintf("entity %q is not declared", q.Spec.Entity),
			Code:    ErrUndeclaredEntity,
		}}
	}

	var errs []ValidationError
	errs = append(errs, problems(queryir.Validate(q.Spec.WithSortKeys(), schema), path+".where", ErrInvalidWhereClause)...)
	errs = append(errs, problems(queryir.Validate(q.Spec.WithFilter(nil), schema), path+".sort", ErrInvalidSortKey)...)
	return errs
}

// ValidateAll validates entities, queries and name uniqueness.
func ValidateAll(entities []ir.EntitySchema, queries []NamedQuery) []ValidationError {
	var errs []ValidationError
	schemas := make(map[string]ir.EntitySchema, len(entities))

	for _, e := range entities {
		if _, dup := schemas[e.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   "entity." + e.Name,
				Message: fmt.Sprintf("entity %q declared more than once", e.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		schemas[e.Name] = e
		errs = append(errs, Validate(e)...)
	}

	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		if seen[q.Name] {
			errs = append(errs, ValidationError{
				Field:   "query." + q.Name,
				Message: fmt.Sprintf("query %q declared more than once", q.Name),
				Code:    ErrDuplicateName,
			})
			continue
		}
		seen[q.Name] = true
		errs = append(errs, ValidateQuery(q, schemas)...)
	}
	return errs
}

func problems(err error, field, code string) []ValidationError {
	if err == nil {
		return nil
	}
	verr, ok := err.(*queryir.ValidationError)
	if !ok {
		return []ValidationError{{Field: field, Message: err.Error(), Code: code}}
	}
	out := make([]ValidationError, len(verr.Problems))
	for i, p := range verr.Problems {
		out[i] = ValidationError{Field: field, Message: p, Code: code}
	}
	return out
}
