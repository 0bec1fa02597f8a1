package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/todosync/internal/doc"
	"github.com/roach88/todosync/internal/store"
	"github.com/roach88/todosync/internal/todo"
)

// EditOptions holds flags shared by the commands that change a task.
type EditOptions struct {
	*RootOptions

	// Rev is the revision the edit is based on. Empty means the current
	// revision, read just before the write.
	Rev string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <title>...",
		Short: "Add a task",
		Long: `Add an open task. The arguments are joined with spaces to form the title.

Example:
  todosync add buy milk
  todosync --db ./todos.db add "call the bank"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(rootOpts, cmd, func(svc *todo.Service) error {
				rec, err := svc.Create(commandContext(cmd), strings.Join(args, " "))
				if err != nil {
					return taskError("add", err)
				}
				return rootOpts.formatter(cmd).Task(rec)
			})
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	All bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List tasks, most recently changed first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(st *store.Store) error {
				var listOpts []store.ListOption
				if opts.All {
					listOpts = append(listOpts, store.IncludeDeleted())
				}
				recs, err := st.ListAll(commandContext(cmd), listOpts...)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list tasks", err)
				}
				return rootOpts.formatter(cmd).Tasks(recs)
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "include deleted tasks")

	return cmd
}

// NewToggleCommand creates the toggle command.
func NewToggleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "toggle <id>",
		Short:         "Flip a task between open and done",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEdit(opts, cmd, args[0], func(svc *todo.Service, cur doc.Record, base doc.Revision) (doc.Record, error) {
				return svc.ToggleComplete(commandContext(cmd), cur.ID, base, !cur.Completed)
			})
		},
	}

	addRevFlag(cmd, opts)

	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rename <id> [title]...",
		Short: "Change a task's title",
		Long: `Change a task's title. A blank title deletes the task.

Example:
  todosync rename 1b4e28ba-2fa1-11d2-883f-0016d3cca427 buy oat milk`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args[1:], " ")
			return withEdit(opts, cmd, args[0], func(svc *todo.Service, cur doc.Record, base doc.Revision) (doc.Record, error) {
				return svc.Rename(commandContext(cmd), cur.ID, base, title)
			})
		},
	}

	addRevFlag(cmd, opts)

	return cmd
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "rm <id>",
		Aliases:       []string{"delete"},
		Short:         "Delete a task",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEdit(opts, cmd, args[0], func(svc *todo.Service, cur doc.Record, base doc.Revision) (doc.Record, error) {
				return svc.Delete(commandContext(cmd), cur.ID, base)
			})
		},
	}

	addRevFlag(cmd, opts)

	return cmd
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts <id>",
		Short: "Show losing revisions kept from concurrent edits",
		Long: `Show the alternate revisions recorded when replication found two
concurrent edits of a task. The current revision is the deterministic winner;
alternates are kept so nothing is lost silently.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, cmd, func(st *store.Store) error {
				ctx := commandContext(cmd)
				if _, err := st.Get(ctx, args[0]); err != nil {
					return taskError("conflicts", err)
				}
				alts, err := st.Conflicts(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to read conflicts", err)
				}
				return rootOpts.formatter(cmd).Revisions(alts)
			})
		},
	}
}

func addRevFlag(cmd *cobra.Command, opts *EditOptions) {
	cmd.Flags().StringVar(&opts.Rev, "rev", "", "revision the edit is based on (default: current)")
}

func withStore(opts *RootOptions, cmd *cobra.Command, fn func(*store.Store) error) error {
	opts.logger(cmd.ErrOrStderr())

	_, st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	return fn(st)
}

func withService(opts *RootOptions, cmd *cobra.Command, fn func(*todo.Service) error) error {
	return withStore(opts, cmd, func(st *store.Store) error {
		return fn(todo.NewService(st, opts.IDs))
	})
}

// withEdit reads the task, resolves the base revision, runs edit, and prints
// the result.
func withEdit(opts *EditOptions, cmd *cobra.Command, id string, edit func(*todo.Service, doc.Record, doc.Revision) (doc.Record, error)) error {
	var base doc.Revision
	if opts.Rev != "" {
		rev, err := doc.ParseRevision(opts.Rev)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --rev", err)
		}
		base = rev
	}

	return withService(opts.RootOptions, cmd, func(svc *todo.Service) error {
		cur, err := svc.Get(commandContext(cmd), id)
		if err != nil {
			return taskError(cmd.Name(), err)
		}
		if base.IsZero() {
			base = cur.Rev
		}

		rec, err := edit(svc, cur, base)
		if err != nil {
			return taskError(cmd.Name(), err)
		}
		return opts.formatter(cmd).Task(rec)
	})
}

// taskError maps service and store errors to exit codes.
func taskError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return WrapExitError(ExitFailure, op+": task was changed, refresh and retry", err)
	case errors.Is(err, store.ErrNotFound):
		return WrapExitError(ExitCommandError, op+": no such task", err)
	case errors.Is(err, todo.ErrDeleted):
		return WrapExitError(ExitCommandError, op+": task is deleted", err)
	case errors.Is(err, todo.ErrEmptyTitle):
		return WrapExitError(ExitCommandError, op+": title is empty", err)
	default:
		return WrapExitError(ExitFailure, op+" failed", err)
	}
}
