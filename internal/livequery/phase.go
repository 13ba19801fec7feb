package livequery

import (
	"github.com/roach88/livefetch/internal/ir"
)

// PhaseKind is the outcome of the last fetch attempt.
type PhaseKind int

const (
	// PhaseEmpty means no fetch has completed yet.
	PhaseEmpty PhaseKind = iota
	// PhaseUpdated means the last fetch succeeded.
	PhaseUpdated
	// PhaseFailed means the last fetch failed.
	PhaseFailed
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseUpdated:
		return "updated"
	case PhaseFailed:
		return "failed"
	default:
		return "empty"
	}
}

// Phase is what a render draws.
//
// Records is the last good snapshot. For PhaseFailed it is the stale
// snapshot from before the failure, or nil if no fetch ever succeeded.
type Phase struct {
	Kind    PhaseKind
	Records []ir.Record
	Err     error

	// Generation counts completed fetch attempts, successful or not.
	Generation int64
}

// HasSnapshot reports whether a fetch has ever succeeded.
func (p Phase) HasSnapshot() bool {
	return p.Records != nil
}

// result is one published holder state. Published values are never
// mutated.
type result struct {
	records    []ir.Record // nil until the first successful fetch
	err        error
	generation int64
}

func (r *result) phase() Phase {
	p := Phase{Records: r.records, Err: r.err, Generation: r.generation}
	switch {
	case r.err != nil:
		p.Kind = PhaseFailed
	case r.records != nil:
		p.Kind = PhaseUpdated
	default:
		p.Kind = PhaseEmpty
	}
	p.Records = cloneRecords(r.records)
	return p
}

// cloneRecords copies records and their field maps. An empty non-nil
// snapshot stays non-nil.
func cloneRecords(records []ir.Record) []ir.Record {
	if records == nil {
		return nil
	}
	out := make([]ir.Record, len(records))
	for i, rec := range records {
		rec.Fields = rec.Fields.Clone()
		out[i] = rec
	}
	return out
}
