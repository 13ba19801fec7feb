package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

// recordColumns is the column list every compiled query selects.
const recordColumns = "id, entity, fields, seq"

// tiebreaker follows the caller's sort keys so that equal keys (and
// unordered specs) still come back in a stable order.
const tiebreaker = "seq ASC, id ASC COLLATE BINARY"

// SQLCompiler compiles a QuerySpec to parameterized SQL for SQLite.
//
// Records live in a single table with their fields stored as a JSON object,
// so every field reference becomes json_extract(fields, '$.<name>').
//
// CRITICAL: All literal values are parameterized (never interpolated).
// Field names are interpolated into JSON paths and therefore must pass
// queryir.ValidIdent; anything else is rejected.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a spec to parameterized SQL.
// Returns (sql, params, error).
//
// Every query ends with the deterministic tiebreaker, even when the spec is
// unordered.
func (c *SQLCompiler) Compile(q queryir.QuerySpec) (string, []any, error) {
	if q.Entity == "" {
		return "", nil, fmt.Errorf("cannot compile query without entity")
	}

	where := "entity = ?"
	params := []any{q.Entity}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	orderBy, err := c.compileOrderBy(q.SortKeys)
	if err != nil {
		return "", nil, fmt.Errorf("compile sort: %w", err)
	}

	sql := fmt.Sprintf("SELECT %s FROM records WHERE %s ORDER BY %s",
		recordColumns,
		where,
		orderBy)

	return sql, params, nil
}

// compileOrderBy converts sort keys to an ORDER BY list ending in the tiebreaker.
func (c *SQLCompiler) compileOrderBy(keys []queryir.SortKey) (string, error) {
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		col, err := fieldRef(k.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if k.Direction == queryir.Descending {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, tiebreaker)
	return strings.Join(parts, ", "), nil
}

// compilePredicate compiles a predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileComparison(pred.Field, "=", pred.Value)
	case *queryir.Equals:
		return c.compileComparison(pred.Field, "=", pred.Value)
	case queryir.Compare:
		return c.compileComparison(pred.Field, string(pred.Op), pred.Value)
	case *queryir.Compare:
		return c.compileComparison(pred.Field, string(pred.Op), pred.Value)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileComparison compiles "field <op> ?".
// CRITICAL: Value is NEVER interpolated - always parameterized.
func (c *SQLCompiler) compileComparison(field, op string, value ir.IRValue) (string, []any, error) {
	col, err := fieldRef(field)
	if err != nil {
		return "", nil, err
	}
	switch op {
	case "=", "!=", "<", "<=", ">", ">=":
	default:
		return "", nil, fmt.Errorf("unsupported operator %q", op)
	}
	param, err := irValueToParam(value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", field, err)
	}
	return fmt.Sprintf("%s %s ?", col, op), []any{param}, nil
}

// compileAnd compiles a conjunction.
func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Always true (vacuous truth)
	}

	sqlParts := make([]string, 0, len(and.Predicates))
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return "(" + strings.Join(sqlParts, " AND ") + ")", allParams, nil
}

// fieldRef returns the SQL expression reading a record field.
func fieldRef(field string) (string, error) {
	if !queryir.ValidIdent(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return fmt.Sprintf("json_extract(fields, '$.%s')", field), nil
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
// Booleans bind as 1/0, matching what json_extract returns for true/false.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case nil:
		return nil, fmt.Errorf("nil value cannot be used as SQL parameter")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
