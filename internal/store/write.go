package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/livefetch/internal/ir"
)

// Change describes one committed write.
type Change struct {
	Seq      int64
	Entity   string
	RecordID string
	Op       ir.ChangeOp
}

// Insert stores a new record with a generated id and returns it.
func (s *Store) Insert(ctx context.Context, entity string, fields ir.IRObject) (ir.Record, error) {
	return s.Put(ctx, ir.Record{ID: s.ids.Generate(), Entity: entity, Fields: fields})
}

// Put stores rec under rec.ID, replacing all fields of an existing record.
// A record id may not move between entity kinds.
func (s *Store) Put(ctx context.Context, rec ir.Record) (ir.Record, error) {
	if rec.ID == "" {
		return ir.Record{}, fmt.Errorf("put %s: empty record id", rec.Entity)
	}
	schema, err := s.Entity(ctx, rec.Entity)
	if err != nil {
		return ir.Record{}, fmt.Errorf("put %s: %w", rec.Entity, err)
	}
	fields := rec.Fields
	if fields == nil {
		fields = ir.IRObject{}
	}
	if err := checkFields(schema, fields); err != nil {
		return ir.Record{}, fmt.Errorf("put %s: %w", rec.ID, err)
	}

	var out ir.Record
	change, err := s.write(ctx, func(tx *sqlx.Tx) (Change, error) {
		existing, err := getRecordTx(ctx, tx, rec.ID)
		op := ir.OpUpdate
		switch {
		case errors.Is(err, ErrNotFound):
			op = ir.OpInsert
		case err != nil:
			return Change{}, err
		case existing.Entity != rec.Entity:
			return Change{}, fmt.Errorf("record %s belongs to %s, not %s", rec.ID, existing.Entity, rec.Entity)
		}

		seq, err := appendChange(ctx, tx, rec.Entity, rec.ID, op)
		if err != nil {
			return Change{}, err
		}
		data, err := marshalFields(fields)
		if err != nil {
			return Change{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, entity, fields, seq) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET fields = excluded.fields, seq = excluded.seq
		`, rec.ID, rec.Entity, data, seq); err != nil {
			return Change{}, fmt.Errorf("write record: %w", err)
		}
		out = ir.Record{ID: rec.ID, Entity: rec.Entity, Fields: fields.Clone(), Seq: seq}
		return Change{Seq: seq, Entity: rec.Entity, RecordID: rec.ID, Op: op}, nil
	})
	if err != nil {
		return ir.Record{}, fmt.Errorf("put %s: %w", rec.ID, err)
	}
	s.publishLocal(change)
	return out, nil
}

// Update merges patch into the fields of an existing record.
// Returns ErrNotFound if the record does not exist.
func (s *Store) Update(ctx context.Context, id string, patch ir.IRObject) (ir.Record, error) {
	var out ir.Record
	change, err := s.write(ctx, func(tx *sqlx.Tx) (Change, error) {
		existing, err := getRecordTx(ctx, tx, id)
		if err != nil {
			return Change{}, err
		}
		schema, err := s.entityWith(ctx, tx, existing.Entity)
		if err != nil {
			return Change{}, err
		}
		if err := checkFields(schema, patch); err != nil {
			return Change{}, err
		}

		fields := existing.Fields.Clone()
		for k, v := range patch {
			fields[k] = v
		}
		seq, err := appendChange(ctx, tx, existing.Entity, id, ir.OpUpdate)
		if err != nil {
			return Change{}, err
		}
		data, err := marshalFields(fields)
		if err != nil {
			return Change{}, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE records SET fields = ?, seq = ? WHERE id = ?`, data, seq, id); err != nil {
			return Change{}, fmt.Errorf("write record: %w", err)
		}
		out = ir.Record{ID: id, Entity: existing.Entity, Fields: fields, Seq: seq}
		return Change{Seq: seq, Entity: existing.Entity, RecordID: id, Op: ir.OpUpdate}, nil
	})
	if err != nil {
		return ir.Record{}, fmt.Errorf("update %s: %w", id, err)
	}
	s.publishLocal(change)
	return out, nil
}

// Delete removes a record. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	change, err := s.write(ctx, func(tx *sqlx.Tx) (Change, error) {
		existing, err := getRecordTx(ctx, tx, id)
		if err != nil {
			return Change{}, err
		}
		seq, err := appendChange(ctx, tx, existing.Entity, id, ir.OpDelete)
		if err != nil {
			return Change{}, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
			return Change{}, fmt.Errorf("delete record: %w", err)
		}
		return Change{Seq: seq, Entity: existing.Entity, RecordID: id, Op: ir.OpDelete}, nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	s.publishLocal(change)
	return nil
}

// write runs fn in a transaction and commits it. The returned change is
// published by the caller only after Commit succeeds.
func (s *Store) write(ctx context.Context, fn func(tx *sqlx.Tx) (Change, error)) (Change, error) {
	if err := s.checkOpen(); err != nil {
		return Change{}, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Change{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	change, err := fn(tx)
	if err != nil {
		return Change{}, err
	}
	if err := tx.Commit(); err != nil {
		return Change{}, fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("write committed",
		"seq", change.Seq,
		"entity", change.Entity,
		"record", change.RecordID,
		"op", change.Op)
	return change, nil
}

func appendChange(ctx context.Context, tx *sqlx.Tx, entity, recordID string, op ir.ChangeOp) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO changes (entity, record_id, op) VALUES (?, ?, ?)`,
		entity, recordID, string(op))
	if err != nil {
		return 0, fmt.Errorf("append change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append change: %w", err)
	}
	return seq, nil
}

func getRecordTx(ctx context.Context, tx *sqlx.Tx, id string) (ir.Record, error) {
	var row recordRow
	err := tx.GetContext(ctx, &row, `SELECT id, entity, fields, seq FROM records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("read record: %w", err)
	}
	return row.record()
}
