package queryir

import (
	"fmt"

	"github.com/roach88/livefetch/internal/ir"
)

// Hash returns a content-addressed identity for a spec.
//
// Two specs with the same entity, structurally equal filters and the same
// sort keys in the same order hash equally. The result is a plain string, so
// it can be used directly as a change token by callers whose declared spec is
// data rather than a closure.
func Hash(q QuerySpec) (string, error) {
	doc := map[string]any{
		"entity": q.Entity,
		"sort":   sortDoc(q.SortKeys),
	}
	if q.Filter != nil {
		f, err := predicateDoc(q.Filter)
		if err != nil {
			return "", fmt.Errorf("hash query: %w", err)
		}
		doc["filter"] = f
	}
	return ir.ContentHash(ir.DomainQuerySpec, doc)
}

func sortDoc(keys []SortKey) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = map[string]any{"field": k.Field, "dir": k.Direction.String()}
	}
	return out
}

func predicateDoc(p Predicate) (map[string]any, error) {
	switch pred := p.(type) {
	case Equals:
		return map[string]any{"op": "=", "field": pred.Field, "value": pred.Value}, nil
	case *Equals:
		return predicateDoc(*pred)
	case Compare:
		return map[string]any{"op": string(pred.Op), "field": pred.Field, "value": pred.Value}, nil
	case *Compare:
		return predicateDoc(*pred)
	case And:
		subs := make([]any, len(pred.Predicates))
		for i, sub := range pred.Predicates {
			d, err := predicateDoc(sub)
			if err != nil {
				return nil, err
			}
			subs[i] = d
		}
		return map[string]any{"op": "and", "all": subs}, nil
	case *And:
		return predicateDoc(*pred)
	default:
		return nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}
