package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/policy"
	"github.com/roach88/todosync/internal/remote"
)

// shutdownTimeout bounds how long serve waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command. Flags that are set
// override the config file.
type ServeOptions struct {
	*RootOptions
	Addr   string
	Name   string
	Policy string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local database to sync clients over HTTP",
		Long: `Serve the local database as a remote peer for 'todosync sync'.

Inbound tasks are checked against a CUE policy; a task that does not satisfy
it is denied individually and the rest of the batch is still applied. The
built-in policy requires a non-blank title of at most 500 characters on live
tasks.

Example:
  todosync --db ./server.db serve --addr 127.0.0.1:5984
  todosync serve --policy ./policy.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config, 127.0.0.1:5984)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "database name reported to clients")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "CUE policy file defining #Todo (default: built-in)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())

	cfg, st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	sc := cfg.Serve
	if opts.Addr != "" {
		sc.Addr = opts.Addr
	}
	if opts.Name != "" {
		sc.Name = opts.Name
	}
	if opts.Policy != "" {
		sc.Policy = opts.Policy
	}

	var pol *policy.Policy
	if sc.Policy != "" {
		pol, err = policy.Load(sc.Policy)
	} else {
		pol, err = policy.Default()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load policy", err)
	}

	srv := remote.NewServer(st,
		remote.WithName(sc.Name),
		remote.WithPolicy(pol),
		remote.WithServerLogger(logger),
	)
	defer srv.Close()

	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	httpSrv := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	logger.Info("serving", "addr", ln.Addr().String(), "name", sc.Name, "policy", pol.Name())
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s/db\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-serveErr:
		return WrapExitError(ExitFailure, "server error", err)
	case <-ctx.Done():
	}

	// Update streams are hijacked connections that Shutdown does not track.
	srv.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
