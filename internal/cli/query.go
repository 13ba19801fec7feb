package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/livefetch/internal/config"
	"github.com/roach88/livefetch/internal/livequery"
	"github.com/roach88/livefetch/internal/queryir"
)

// QueryOptions holds flags shared by the query and watch commands.
type QueryOptions struct {
	*RootOptions
	Where []string // conditions, e.g. "done=false", "timestamp>=10"
	Sort  []string // sort keys, e.g. "timestamp:desc"
}

func (o *QueryOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.Where, "where", nil, `filter condition "field<op>value" (repeatable, ANDed)`)
	cmd.Flags().StringSliceVar(&o.Sort, "sort", nil, `sort keys "field[:asc|desc]" (comma-separated or repeated)`)
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query-name|entity>",
		Short: "Run a query once and print the results",
		Long: `Run a declared query, or every record of an entity kind, and print
the results. --where replaces the query's filter and --sort its sort keys.

Exit codes:
  0 - Query succeeded
  1 - Query failed (unknown field, store error)
  2 - Command error

Examples:
  livefetch query recent
  livefetch query Item --where done=false --sort timestamp:desc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runQuery(opts *QueryOptions, target string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, cfg, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(st)

	spec, err := opts.resolve(cfg, target)
	if err != nil {
		return err
	}
	sc, err := st.NewContext("query")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to attach store context", err)
	}
	defer sc.Close()

	holder := livequery.NewHolder[string](
		livequery.WithDiscipline(discipline(cfg)),
		livequery.WithLogger(slog.Default()))
	defer holder.Dispose()

	ctx := commandContext(cmd)
	phase := livequery.NewMonitor(holder, spec.Clone).Render(ctx, sc, livequery.SpecToken(spec))

	if err := formatter.Phase(NewPhaseView(spec.String(), phase)); err != nil {
		return err
	}
	if phase.Kind == livequery.PhaseFailed {
		return WrapExitError(ExitFailure, "query failed", phase.Err)
	}
	return nil
}

// resolve turns a query name or entity kind into a spec and applies the
// --where and --sort overrides.
func (o *QueryOptions) resolve(cfg *config.Config, target string) (queryir.QuerySpec, error) {
	spec := queryir.All(target)

	if _, err := os.Stat(cfg.Declarations); err == nil {
		decls, errs := LoadDeclarations(cfg.Declarations, LoadModeFailFast)
		if len(errs) > 0 {
			return queryir.QuerySpec{}, WrapExitError(ExitCommandError, "failed to load declarations", errs[0])
		}
		if q, ok := decls.Query(target); ok {
			spec = q.Spec
		}
	}

	if len(o.Where) > 0 {
		filter, err := queryir.ParseFilter(o.Where)
		if err != nil {
			return queryir.QuerySpec{}, WrapExitError(ExitCommandError, "invalid --where", err)
		}
		spec = spec.WithFilter(filter)
	}
	if len(o.Sort) > 0 {
		keys, err := queryir.ParseSortKeys(o.Sort)
		if err != nil {
			return queryir.QuerySpec{}, WrapExitError(ExitCommandError, "invalid --sort", err)
		}
		spec = spec.WithSortKeys(keys...)
	}
	return spec, nil
}

// discipline returns the configured discipline. cfg is already validated.
func discipline(cfg *config.Config) livequery.Discipline {
	d, _ := livequery.ParseDiscipline(cfg.Discipline)
	return d
}
