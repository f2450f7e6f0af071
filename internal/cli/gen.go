package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/parloop/internal/diag"
	"github.com/roach88/parloop/internal/ir"
	"github.com/roach88/parloop/internal/kernel"
	"github.com/roach88/parloop/internal/store"
)

// GenOptions holds flags for the gen command.
type GenOptions struct {
	*RootOptions
	Output   string   // write the module here instead of stdout
	Database string   // record generations here
	Kernels  []string // restrict to these kernels
	Threads  int32

	// IDs generates history IDs. Defaults to UUIDv7.
	IDs store.IDGenerator
}

// KernelSummary describes one generated kernel in JSON output.
type KernelSummary struct {
	Kernel       string   `json:"kernel"`
	Function     string   `json:"function"`
	Workers      []string `json:"workers"`
	Diagnostics  []string `json:"diagnostics"`
	CFGHash      string   `json:"cfg_hash"` // control-flow shape of the host
	GenerationID string   `json:"generation_id,omitempty"`
}

// GenResult is the JSON payload of the gen command.
type GenResult struct {
	Module     string          `json:"module"`
	ModuleHash string          `json:"module_hash"`
	Kernels    []KernelSummary `json:"kernels"`
	IR         string          `json:"ir,omitempty"`
	Output     string          `json:"output,omitempty"`
}

// NewGenCommand creates the gen command.
func NewGenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "gen <kernel.cue|dir>",
		Short: "Generate the parallel loop module of CUE kernels",
		Long: `Compile CUE kernels and lower each into a host function whose loop runs
on the GNU OpenMP runtime, then print the module as LLVM textual IR.

Unsupported schedule or chunk-size options produce one warning per loop on
stderr; generation continues with the runtime defaults.

Examples:
  parloop gen kernels/axpy.cue
  parloop gen kernels/ -o kernels.ll --db parloop.db
  parloop gen kernels/ --kernel ramp --threads 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record generations in this SQLite database")
	cmd.Flags().StringSliceVar(&opts.Kernels, "kernel", nil, "only generate these kernels")
	cmd.Flags().Int32Var(&opts.Threads, "threads", 0, "thread count passed to the runtime (0: runtime decides)")

	return cmd
}

func runGen(opts *GenOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	genOpts, err := opts.options(cmd)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err)
	}
	specs, code, err := loadKernels(path, opts.Kernels)
	if err != nil {
		return formatter.fail(ExitCommandError, code, err)
	}
	formatter.VerboseLog("Loaded %d kernel(s) from %s", len(specs), path)

	out, err := kernel.Build(moduleName(path), specs, kernel.BuildOptions{
		Config:      genOpts,
		Logger:      logger,
		Diagnostics: diag.NewWriterSink(cmd.ErrOrStderr(), nil),
	})
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGenerate, err)
	}

	result := GenResult{
		Module:     out.Module.Name,
		ModuleHash: ir.ModuleHash(out.Module),
		Output:     opts.Output,
	}
	for _, l := range out.Kernels {
		cfgHash, err := ir.SummaryHash(l.Host)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGenerate, err)
		}
		result.Kernels = append(result.Kernels, KernelSummary{
			Kernel:      l.Spec.Name,
			Function:    l.Host.Name(),
			Workers:     l.Workers,
			Diagnostics: l.Diagnostics,
			CFGHash:     cfgHash,
		})
	}

	if opts.Database != "" {
		ids := opts.IDs
		if ids == nil {
			ids = store.UUIDv7Generator{}
		}
		if err := recordGenerations(cmd, opts.Database, out, ids, result.Kernels); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeDatabase, err)
		}
	}

	text := out.Module.String()
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0644); err != nil {
			return formatter.fail(ExitCommandError, ErrCodeWriteFailed, fmt.Errorf("writing output file: %w", err))
		}
		logger.Info("module written", "path", opts.Output, "bytes", len(text))
	}

	if opts.Format == "json" {
		if opts.Output == "" {
			result.IR = text
		}
		return formatter.Success(result)
	}
	if opts.Output == "" {
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}
	return formatter.Success(genSummary(result))
}

// recordGenerations stores one generation per kernel and fills in the IDs.
func recordGenerations(cmd *cobra.Command, path string, out *kernel.Output, ids store.IDGenerator, kernels []KernelSummary) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	for i, l := range out.Kernels {
		g, err := st.RecordGeneration(cmd.Context(), out.Generation(l, ids.Generate(), 0))
		if err != nil {
			return err
		}
		kernels[i].GenerationID = g.ID
	}
	return nil
}

// moduleName derives a module name from the kernel path.
func moduleName(path string) string {
	base := filepath.Base(filepath.Clean(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func genSummary(r GenResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "wrote %s (%d kernel(s), hash %s)", r.Output, len(r.Kernels), shortHash(r.ModuleHash))
	for _, k := range r.Kernels {
		fmt.Fprintf(&sb, "\n  %s -> @%s [%s]", k.Kernel, k.Function, strings.Join(k.Workers, ", "))
		if k.GenerationID != "" {
			fmt.Fprintf(&sb, " id=%s", k.GenerationID)
		}
	}
	return sb.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
