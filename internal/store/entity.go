package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

type entityRow struct {
	Name       string `db:"name"`
	Fields     string `db:"fields"`
	SchemaHash string `db:"schema_hash"`
}

// RegisterEntity declares an entity kind, or replaces the field types of an
// existing one. Registering an identical schema again is a no-op.
func (s *Store) RegisterEntity(ctx context.Context, schema ir.EntitySchema) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := checkSchema(schema); err != nil {
		return err
	}

	hash, err := ir.SchemaHash(schema)
	if err != nil {
		return fmt.Errorf("register entity %s: %w", schema.Name, err)
	}
	fields, err := json.Marshal(schema.Fields)
	if err != nil {
		return fmt.Errorf("register entity %s: %w", schema.Name, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (name, fields, schema_hash) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET fields = excluded.fields, schema_hash = excluded.schema_hash
		WHERE entities.schema_hash != excluded.schema_hash
	`, schema.Name, string(fields), hash)
	if err != nil {
		return fmt.Errorf("register entity %s: %w", schema.Name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("entity registered", "entity", schema.Name, "schema_hash", hash)
	}

	s.mu.Lock()
	s.schemas[schema.Name] = cloneSchema(schema)
	s.mu.Unlock()
	return nil
}

// Entity returns the schema of a declared entity kind. Unknown kinds return
// an error wrapping queryir.ErrUnknownEntity.
//
// Schemas are cached per Store. A re-registration by another connection is
// seen after the next SyncExternal.
func (s *Store) Entity(ctx context.Context, name string) (ir.EntitySchema, error) {
	return s.entityWith(ctx, s.db, name)
}

// entityWith loads a schema through q, which is the open transaction when
// called mid-write; the pool holds a single connection.
func (s *Store) entityWith(ctx context.Context, q sqlx.QueryerContext, name string) (ir.EntitySchema, error) {
	s.mu.Lock()
	schema, ok := s.schemas[name]
	s.mu.Unlock()
	if ok {
		return schema, nil
	}

	var row entityRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT name, fields, schema_hash FROM entities WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.EntitySchema{}, fmt.Errorf("%w: %q", queryir.ErrUnknownEntity, name)
	}
	if err != nil {
		return ir.EntitySchema{}, fmt.Errorf("load entity %s: %w", name, err)
	}
	schema, err = row.schema()
	if err != nil {
		return ir.EntitySchema{}, err
	}

	s.mu.Lock()
	s.schemas[name] = schema
	s.mu.Unlock()
	return schema, nil
}

// forgetSchemas drops the schema cache.
func (s *Store) forgetSchemas() {
	s.mu.Lock()
	clear(s.schemas)
	s.mu.Unlock()
}

// Entities returns every declared entity kind, sorted by name.
func (s *Store) Entities(ctx context.Context) ([]ir.EntitySchema, error) {
	var rows []entityRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, fields, schema_hash FROM entities ORDER BY name COLLATE BINARY`); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	out := make([]ir.EntitySchema, 0, len(rows))
	for _, row := range rows {
		schema, err := row.schema()
		if err != nil {
			return nil, err
		}
		out = append(out, schema)
	}
	return out, nil
}

func (r entityRow) schema() (ir.EntitySchema, error) {
	schema := ir.EntitySchema{Name: r.Name}
	if err := json.Unmarshal([]byte(r.Fields), &schema.Fields); err != nil {
		return ir.EntitySchema{}, fmt.Errorf("decode entity %s: %w", r.Name, err)
	}
	return schema, nil
}

func checkSchema(schema ir.EntitySchema) error {
	if !queryir.ValidIdent(schema.Name) {
		return fmt.Errorf("invalid entity name %q", schema.Name)
	}
	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !queryir.ValidIdent(name) {
			return fmt.Errorf("entity %s: invalid field name %q", schema.Name, name)
		}
		if !ir.ValidFieldTypes[schema.Fields[name]] {
			return fmt.Errorf("entity %s: field %q has invalid type %q", schema.Name, name, schema.Fields[name])
		}
	}
	return nil
}

// checkFields rejects fields the schema does not declare and values of the
// wrong type. Declared fields may be absent.
func checkFields(schema ir.EntitySchema, fields ir.IRObject) error {
	for _, name := range fields.SortedKeys() {
		typ, ok := schema.FieldType(name)
		if !ok {
			return fmt.Errorf("entity %s has no field %q", schema.Name, name)
		}
		if got := ir.TypeName(fields[name]); got != typ {
			return fmt.Errorf("entity %s: field %q is %s, got %s", schema.Name, name, typ, got)
		}
	}
	return nil
}

func cloneSchema(schema ir.EntitySchema) ir.EntitySchema {
	fields := make(map[string]string, len(schema.Fields))
	for k, v := range schema.Fields {
		fields[k] = v
	}
	return ir.EntitySchema{Name: schema.Name, Fields: fields}
}
