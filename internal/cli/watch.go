package cli

import (
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/feed"
	"github.com/roach88/todosync/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Since string
	Live  bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print local change-feed events",
		Long: `Print one line per committed local change, in sequence order.

--since takes a sequence number or "now". Without --live the command exits
once it has caught up.

Example:
  todosync watch
  todosync watch --since 0 --live=false`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Since, "since", "now", `sequence to start after, or "now"`)
	cmd.Flags().BoolVar(&opts.Live, "live", true, "keep waiting for new changes")

	return cmd
}

func parseSince(s string) (int64, error) {
	if s == "now" {
		return feed.Now, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, NewExitError(ExitCommandError, `--since must be a non-negative sequence or "now"`)
	}
	return n, nil
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	since, err := parseSince(opts.Since)
	if err != nil {
		return err
	}

	return withStore(opts.RootOptions, cmd, func(st *store.Store) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		f := feed.New(st, feed.WithLogger(slog.Default()))
		sub, err := f.Subscribe(ctx, since, opts.Live)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to subscribe", err)
		}
		defer sub.Unsubscribe()

		out := opts.formatter(cmd)
		out.VerboseLog("watching changes after %s", opts.Since)
		for ev := range sub.Events() {
			if err := out.Change(ev); err != nil {
				return err
			}
		}

		if err := sub.Err(); err != nil {
			return WrapExitError(ExitFailure, "change feed failed", err)
		}
		return nil
	})
}
