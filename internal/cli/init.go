package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/livefetch/internal/compiler"
)

// InitResult is the output of the init command.
type InitResult struct {
	Database string   `json:"database"`
	Entities []string `json:"entities"`
	Queries  []string `json:"queries"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the database and register declared entities",
		Long: `Load the CUE declarations, validate them, open (or create) the
database and register every declared entity kind.

Re-running init is safe; an entity whose fields changed is re-registered.

Example:
  livefetch init --decl ./declarations --db ./livefetch.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, cfg, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore(st)

	decls, err := loadValidDeclarations(cfg.Declarations)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", decls.FileCount, cfg.Declarations)

	ctx := commandContext(cmd)

	result := InitResult{Database: cfg.Database, Entities: []string{}, Queries: []string{}}
	for _, schema := range decls.Entities {
		if err := st.RegisterEntity(ctx, schema); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to register entity %s", schema.Name), err)
		}
		result.Entities = append(result.Entities, schema.Name)
	}
	for _, q := range decls.Queries {
		result.Queries = append(result.Queries, q.Name)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Initialized %s\n", result.Database)
	fmt.Fprintf(formatter.Writer, "  entities: %v\n", result.Entities)
	fmt.Fprintf(formatter.Writer, "  queries:  %v\n", result.Queries)
	return nil
}

// loadValidDeclarations loads declarations and rejects any that fail
// validation.
func loadValidDeclarations(dir string) (*LoadResult, error) {
	decls, errs := LoadDeclarations(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load declarations", errs[0])
	}
	if verrs := compiler.ValidateAll(decls.Entities, decls.Queries); len(verrs) > 0 {
		return nil, WrapExitError(ExitFailure,
			fmt.Sprintf("declarations invalid with %d error(s)", len(verrs)), verrs[0])
	}
	return decls, nil
}
