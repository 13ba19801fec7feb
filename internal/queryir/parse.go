package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/livefetch/internal/ir"
)

// ParseSortKey parses "field", "field:asc" or "field:desc".
func ParseSortKey(s string) (SortKey, error) {
	field, dir, hasDir := strings.Cut(strings.TrimSpace(s), ":")
	if field == "" {
		return SortKey{}, fmt.Errorf("empty sort field in %q", s)
	}
	if !hasDir {
		return Asc(field), nil
	}
	switch strings.ToLower(dir) {
	case "asc", "ascending":
		return Asc(field), nil
	case "desc", "descending":
		return Desc(field), nil
	default:
		return SortKey{}, fmt.Errorf("invalid sort direction %q in %q", dir, s)
	}
}

// ParseSortKeys parses a list of sort key expressions. Each element may also
// hold several comma-separated keys.
func ParseSortKeys(exprs []string) ([]SortKey, error) {
	var keys []SortKey
	for _, expr := range exprs {
		for _, part := range strings.Split(expr, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			k, err := ParseSortKey(part)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// FormatSortKeys renders keys in the form accepted by ParseSortKeys.
func FormatSortKeys(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// operators in match order; two-character operators come first.
var conditionOps = []string{"<=", ">=", "!=", "=", "<", ">"}

// ParseCondition parses "field<op>value", e.g. "done=false" or "timestamp>=10".
// The literal is typed with ir.ParseScalar.
func ParseCondition(s string) (Predicate, error) {
	s = strings.TrimSpace(s)
	for _, op := range conditionOps {
		idx := strings.Index(s, op)
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(s[:idx])
		value := ir.ParseScalar(strings.TrimSpace(s[idx+len(op):]))
		if op == "=" {
			return Equals{Field: field, Value: value}, nil
		}
		return Compare{Field: field, Op: CompareOp(op), Value: value}, nil
	}
	return nil, fmt.Errorf("invalid condition %q: expected field<op>value", s)
}

// ParseFilter parses a list of conditions into a single predicate.
// No conditions yields nil (match all); one yields that predicate; several
// yield an And.
func ParseFilter(conds []string) (Predicate, error) {
	preds := make([]Predicate, 0, len(conds))
	for _, c := range conds {
		p, err := ParseCondition(c)
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
		return And{Predicates: preds}, nil
	}
}
