package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/livefetch/internal/livequery"
	"github.com/roach88/livefetch/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	QueryOptions
	Count int // stop after printing this many phases (0 = until interrupted)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{QueryOptions: QueryOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch <query-name|entity>",
		Short: "Print a query's results every time they change",
		Long: `Run a query as a live query and print a new result set after every
change to its entity kind, including commits made by other processes
sharing the database file (watch.external in config).

Under the lazy discipline a change is fetched when the result is next
printed; under eager it is fetched as soon as the change is delivered.

Examples:
  livefetch watch recent
  livefetch watch Item --sort timestamp:desc --discipline lazy`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().IntVar(&opts.Count, "count", 0, "exit after printing this many results")
	return cmd
}

func runWatch(opts *WatchOptions, target string, cmd *cobra.Command) error {
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

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := st.NewContext("watch")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to attach store context", err)
	}
	defer sc.Close()

	holder := livequery.NewHolder[string](
		livequery.WithDiscipline(discipline(cfg)),
		livequery.WithLogger(slog.Default()),
		livequery.WithBaseContext(ctx))
	defer holder.Dispose()

	// The external sync starting point must precede the initial fetch, or
	// a commit landing between the two would never be delivered.
	var external *store.ExternalWatcher
	if cfg.Watch.External {
		external, err = st.WatchExternal(ctx, cfg.Watch.Debounce)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to watch database file", err)
		}
		defer external.Close()
	}

	monitor := livequery.NewMonitor(holder, spec.Clone)
	token := livequery.SpecToken(spec)

	printed := 0
	render := func(ctx context.Context) (bool, error) {
		phase := monitor.Render(ctx, sc, token)
		if err := formatter.Phase(NewPhaseView(spec.String(), phase)); err != nil {
			return false, err
		}
		printed++
		return opts.Count > 0 && printed >= opts.Count, nil
	}

	if done, err := render(ctx); err != nil || done {
		return err
	}

	// Coalesce observer signals; the render loop always reads the latest
	// phase, so one pending signal is enough.
	changed := make(chan struct{}, 1)
	cancelObserve := holder.Observe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer cancelObserve()

	g, gctx := errgroup.WithContext(ctx)

	if external != nil {
		g.Go(func() error { return external.Run(gctx) })
	}

	g.Go(func() error { return sc.Run(gctx) })

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-changed:
				done, err := render(gctx)
				if err != nil {
					return err
				}
				if done {
					return errStopWatch
				}
			}
		}
	})

	slog.Info("watching", "query", spec.String(), "discipline", holder.Discipline().String())
	err = g.Wait()
	if err == nil || errors.Is(err, errStopWatch) || errors.Is(err, context.Canceled) {
		return nil
	}
	return WrapExitError(ExitFailure, "watch failed", err)
}

// errStopWatch ends the errgroup once --count results have been printed.
var errStopWatch = errors.New("watch count reached")
