package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/store"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	ID    string
	Merge bool
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <entity> <field=value>...",
		Short: "Insert or replace a record",
		Long: `Write a record of a registered entity kind. Values are typed by the
entity's declared fields.

Without --id a new record is inserted with a generated id. With --id the
record is created or fully replaced; add --merge to update only the given
fields of an existing record.

Examples:
  livefetch put Item timestamp=3 title="buy milk" done=false
  livefetch put Item --id 0190... done=true --merge`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (default: generated)")
	cmd.Flags().BoolVar(&opts.Merge, "merge", false, "update only the given fields of an existing record")

	return cmd
}

func runPut(opts *PutOptions, entity string, assignments []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Merge && opts.ID == "" {
		return NewExitError(ExitCommandError, "--merge requires --id")
	}

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := commandContext(cmd)
	schema, err := st.Entity(ctx, entity)
	if err != nil {
		return WrapExitError(ExitCommandError, "unknown entity (run init first)", err)
	}
	fields, err := ParseAssignments(schema, assignments)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid field", err)
	}

	var rec ir.Record
	switch {
	case opts.Merge:
		rec, err = st.Update(ctx, opts.ID, fields)
	case opts.ID != "":
		rec, err = st.Put(ctx, ir.Record{ID: opts.ID, Entity: entity, Fields: fields})
	default:
		rec, err = st.Insert(ctx, entity, fields)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "write failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(rec)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s %s (seq %d)\n", rec.Entity, rec.ID, rec.Seq)
	return nil
}

// ParseAssignments parses field=value arguments, typing each value by the
// field's declared type.
func ParseAssignments(schema ir.EntitySchema, assignments []string) (ir.IRObject, error) {
	fields := make(ir.IRObject, len(assignments))
	for _, a := range assignments {
		name, raw, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", a)
		}
		typ, declared := schema.FieldType(name)
		if !declared {
			return nil, fmt.Errorf("%s has no field %q", schema.Name, name)
		}
		value, err := parseTyped(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		fields[name] = value
	}
	return fields, nil
}

func parseTyped(typ, raw string) (ir.IRValue, error) {
	switch typ {
	case ir.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int", raw)
		}
		return ir.IRInt(n), nil
	case ir.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", raw)
		}
		return ir.IRBool(b), nil
	default:
		return ir.IRString(raw), nil
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, args[0], cmd)
		},
	}
}

func runDelete(opts *RootOptions, id string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, _, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if err := st.Delete(commandContext(cmd), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return WrapExitError(ExitFailure, "record not found", err)
		}
		return WrapExitError(ExitFailure, "delete failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]string{"deleted": id})
	}
	fmt.Fprintf(formatter.Writer, "✓ deleted %s\n", id)
	return nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
