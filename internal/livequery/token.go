package livequery

import "github.com/roach88/livefetch/internal/queryir"

// Token remembers the last observed change token.
//
// Callers whose predicate or sort comes from a closure pass a comparable
// value summarizing the closure's inputs (a direction toggle, a search
// string, a struct of both). Equal tokens mean "same query shape" even if
// the closure is re-created on every render.
type Token[T comparable] struct {
	value T
	valid bool
}

// Observe records v and reports whether it differs from the previous
// token. The first observation always counts as a change.
func (t *Token[T]) Observe(v T) bool {
	changed := t.Changed(v)
	t.value = v
	t.valid = true
	return changed
}

// Changed reports whether v differs from the last observed token without
// recording it.
func (t *Token[T]) Changed(v T) bool {
	return !t.valid || t.value != v
}

// Value returns the last observed token.
func (t *Token[T]) Value() (T, bool) {
	return t.value, t.valid
}

// Reset forgets the last observed token.
func (t *Token[T]) Reset() {
	var zero T
	t.value = zero
	t.valid = false
}

// SpecToken derives a token from a spec that is plain data. Structurally
// equal specs give equal tokens.
func SpecToken(q queryir.QuerySpec) string {
	h, err := queryir.Hash(q)
	if err != nil {
		// Unhashable literals still need a stable token.
		return "unhashable:" + q.String()
	}
	return h
}
