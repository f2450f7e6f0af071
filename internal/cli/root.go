package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/parloop/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional YAML options file
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the parloop CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "parloop",
		Short: "parloop - parallel loop generator",
		Long:  "Lower CUE loop kernels into GNU OpenMP work-sharing loops and run them on a simulated runtime.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "generation options file (YAML)")

	cmd.AddCommand(NewGenCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// logger returns a text logger on the command's stderr, at debug level
// with --verbose and warn level otherwise.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// options loads the --config file over the defaults, then applies a
// --threads override when the command has one set.
func (o *RootOptions) options(cmd *cobra.Command) (config.Options, error) {
	opts := config.Default()
	if o.Config != "" {
		var err error
		if opts, err = config.Load(o.Config); err != nil {
			return config.Options{}, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if f := cmd.Flags().Lookup("threads"); f != nil && f.Changed {
		threads, err := cmd.Flags().GetInt32("threads")
		if err != nil {
			return config.Options{}, WrapExitError(ExitCommandError, "invalid --threads", err)
		}
		opts.NumThreads = threads
	}
	if err := opts.Validate(); err != nil {
		return config.Options{}, WrapExitError(ExitCommandError, "invalid options", err)
	}
	return opts, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}
