package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/remote"
	"github.com/roach88/todosync/internal/replicate"
	"github.com/roach88/todosync/internal/wire"
)

// SyncOptions holds flags for the sync command. Flags that are set override
// the config file.
type SyncOptions struct {
	*RootOptions
	Endpoint string
	Once     bool
	NoRetry  bool
	Filter   string
	Codec    string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync [endpoint]",
		Short: "Replicate local tasks with a remote peer",
		Long: `Replicate in both directions with a todosync server and print each
replication state change.

By default replication is live: after catching up it waits for new local or
remote changes, and reconnects with exponential backoff after a failure.
Use --once to stop after one catch-up pass.

Example:
  todosync sync http://localhost:5984/db
  todosync sync --once --filter 'not completed' http://localhost:5984/db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Endpoint = args[0]
			}
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "stop after one catch-up pass")
	cmd.Flags().BoolVar(&opts.NoRetry, "no-retry", false, "stop at the first failure instead of reconnecting")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "push only tasks matching this expression over id, title, completed, deleted")
	cmd.Flags().StringVar(&opts.Codec, "codec", "", "wire encoding (json|cbor)")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())

	cfg, st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	sc := cfg.Sync
	if opts.Endpoint != "" {
		sc.Endpoint = opts.Endpoint
	}
	if opts.Once {
		sc.Live = false
	}
	if opts.NoRetry {
		sc.Retry = false
	}
	if cmd.Flags().Changed("filter") {
		sc.Filter = opts.Filter
	}
	if cmd.Flags().Changed("codec") {
		sc.Codec = opts.Codec
	}
	if sc.Endpoint == "" {
		return NewExitError(ExitCommandError, "no endpoint: pass one or set sync.endpoint in the config")
	}

	codec, err := wire.ByName(sc.Codec)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid codec", err)
	}
	client, err := remote.NewClient(sc.Endpoint,
		remote.WithCodec(codec),
		remote.WithClientLogger(logger),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid endpoint", err)
	}

	out := opts.formatter(cmd)
	denied := 0
	coord, err := replicate.New(st, client, sc.Replication(),
		replicate.WithLogger(logger),
		replicate.WithObserver(func(ev replicate.Event) {
			if ev.State == replicate.StateDenied {
				denied++
			}
			if err := out.SyncEvent(ev); err != nil {
				slog.Error("failed to write sync event", "error", err)
			}
		}),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid sync settings", err)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if err := coord.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start sync", err)
	}
	<-coord.Done()

	if err := coord.Err(); err != nil {
		if errors.Is(err, replicate.ErrLocalClosed) {
			return WrapExitError(ExitCommandError, "local database unavailable", err)
		}
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	out.VerboseLog("sync finished, %d denied", denied)
	return nil
}
