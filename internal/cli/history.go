package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/parloop/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Kernel   string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded generations",
		Long: `List the generations recorded with gen --db, oldest first.

Example:
  parloop history --db parloop.db
  parloop history --db parloop.db --kernel axpy --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Kernel, "kernel", "", "only list this kernel")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer st.Close()

	gens, err := st.ListGenerations(cmd.Context(), opts.Kernel)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeDatabase, err)
	}

	if opts.Format == "json" {
		return formatter.Success(gens)
	}
	w := cmd.OutOrStdout()
	if len(gens) == 0 {
		fmt.Fprintln(w, "No generations recorded.")
		return nil
	}
	for _, g := range gens {
		fmt.Fprintf(w, "%4d  %s  %s -> @%s  threads=%d schedule=%s hash=%s",
			g.Seq, g.ID, g.Kernel, g.Function, g.NumThreads, g.Schedule, shortHash(g.ModuleHash))
		if len(g.Workers) > 0 {
			fmt.Fprintf(w, "  workers=%s", strings.Join(g.Workers, ","))
		}
		if len(g.Diagnostics) > 0 {
			fmt.Fprintf(w, "  warnings=%d", len(g.Diagnostics))
		}
		fmt.Fprintln(w)
	}
	return nil
}
