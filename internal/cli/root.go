package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/livefetch/internal/config"
	"github.com/roach88/livefetch/internal/livequery"
	"github.com/roach88/livefetch/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Database   string
	Discipline string
	Decl       string

	// Root is the project directory config is resolved against.
	// Defaults to the working directory.
	Root string

	// IDs overrides the store's id generator (for testing).
	IDs store.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the livefetch CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "livefetch",
		Short: "livefetch - live queries over a local record store",
		Long: `Declare entity kinds and queries, write records, and watch query
results refresh as the store changes, including commits made by other
processes sharing the same database file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Discipline != "" {
				if _, ok := livequery.ParseDiscipline(opts.Discipline); !ok {
					return fmt.Errorf("invalid discipline %q: must be eager or lazy", opts.Discipline)
				}
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default .livefetch/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Discipline, "discipline", "", "refresh discipline: eager|lazy (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Decl, "decl", "", "declarations directory (overrides config)")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig loads configuration and applies flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	root := o.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		root = wd
	}

	var loader config.Loader
	if o.ConfigFile != "" {
		loader = config.NewFileLoader(root, o.ConfigFile)
	} else {
		loader = config.NewLoader(root)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if o.Database != "" {
		cfg.Database = o.Database
	}
	if o.Discipline != "" {
		cfg.Discipline = o.Discipline
	}
	if o.Decl != "" {
		cfg.Declarations = o.Decl
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the default slog logger on w.
func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// openStore loads config, installs logging and opens the database.
func (o *RootOptions) openStore(cmd *cobra.Command) (*store.Store, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := setupLogging(cfg, cmd.ErrOrStderr())

	storeOpts := []store.Option{store.WithLogger(logger)}
	if o.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(o.IDs))
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database, storeOpts...)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
