package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

// recordRow is the scan target for the records table.
type recordRow struct {
	ID     string `db:"id"`
	Entity string `db:"entity"`
	Fields string `db:"fields"`
	Seq    int64  `db:"seq"`
}

func (r recordRow) record() (ir.Record, error) {
	fields, err := unmarshalFields(r.Fields)
	if err != nil {
		return ir.Record{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return ir.Record{ID: r.ID, Entity: r.Entity, Fields: fields, Seq: r.Seq}, nil
}

// Fetch evaluates a spec against the current state.
//
// The spec is validated against the entity schema first. Unknown kinds wrap
// queryir.ErrUnknownEntity; invalid filters and sort keys return a
// *queryir.ValidationError.
func (s *Store) Fetch(ctx context.Context, spec queryir.QuerySpec) ([]ir.Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	schema, err := s.Entity(ctx, spec.Entity)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", spec.Entity, err)
	}
	if err := queryir.Validate(spec, schema); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", spec.Entity, err)
	}

	query, params, err := s.compiler.Compile(spec)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", spec.Entity, err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, params...); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", spec.Entity, err)
	}

	records := make([]ir.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", spec.Entity, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get reads one record by id. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (ir.Record, error) {
	if err := s.checkOpen(); err != nil {
		return ir.Record{}, err
	}
	var row recordRow
	err := s.db.GetContext(ctx, &row, `SELECT id, entity, fields, seq FROM records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return row.record()
}

type changeRow struct {
	Seq      int64  `db:"seq"`
	Entity   string `db:"entity"`
	RecordID string `db:"record_id"`
	Op       string `db:"op"`
}

// ChangesSince returns committed changes with seq greater than after, in
// seq order.
func (s *Store) ChangesSince(ctx context.Context, after int64) ([]Change, error) {
	var rows []changeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT seq, entity, record_id, op FROM changes
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	out := make([]Change, len(rows))
	for i, r := range rows {
		out[i] = Change{Seq: r.Seq, Entity: r.Entity, RecordID: r.RecordID, Op: ir.ChangeOp(r.Op)}
	}
	return out, nil
}
