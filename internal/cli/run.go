package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/parloop/internal/diag"
	"github.com/roach88/parloop/internal/gompsim"
	"github.com/roach88/parloop/internal/kernel"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Kernels []string
	Threads int32
	Team    int   // goroutines when the generated code requests zero
	Chunk   int64 // iterations per chunk
}

// ArrayChecksum summarizes one output array.
type ArrayChecksum struct {
	Array string `json:"array"`
	Sum   int64  `json:"sum"`
	Match bool   `json:"match"`
}

// KernelRun is the outcome of one kernel execution.
type KernelRun struct {
	Kernel     string          `json:"kernel"`
	Iterations int64           `json:"iterations"`
	Arrays     []ArrayChecksum `json:"arrays"`
	Pass       bool            `json:"pass"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <kernel.cue|dir>",
		Short: "Generate kernels and execute them on a goroutine team",
		Long: `Generate each kernel's parallel loop, execute it on a simulated OpenMP
runtime backed by a team of goroutines, and compare every output array with a
sequential evaluation of the kernel.

Exit codes:
  0 - All kernels matched
  1 - A parallel result differs from the sequential one
  2 - Command error (invalid paths, bad kernels, etc.)

Examples:
  parloop run kernels/
  parloop run kernels/ --team 8 --chunk 16
  parloop run kernels/axpy.cue --threads 2 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKernels(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Kernels, "kernel", nil, "only run these kernels")
	cmd.Flags().Int32Var(&opts.Threads, "threads", 0, "thread count passed to the runtime (0: runtime decides)")
	cmd.Flags().IntVar(&opts.Team, "team", 0, "team size when the runtime decides (0: GOMAXPROCS)")
	cmd.Flags().Int64Var(&opts.Chunk, "chunk", 0, "iterations handed out per chunk (0: one)")

	return cmd
}

func runKernels(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	if opts.Team < 0 || opts.Chunk < 0 {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("--team and --chunk must be non-negative"))
	}
	genOpts, err := opts.options(cmd)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, err)
	}
	specs, code, err := loadKernels(path, opts.Kernels)
	if err != nil {
		return formatter.fail(ExitCommandError, code, err)
	}

	out, err := kernel.Build(moduleName(path), specs, kernel.BuildOptions{
		Config:      genOpts,
		Logger:      logger,
		Diagnostics: diag.NewWriterSink(cmd.ErrOrStderr(), nil),
	})
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGenerate, err)
	}

	var runs []KernelRun
	failed := 0
	for _, l := range out.Kernels {
		got, err := kernel.Execute(cmd.Context(), out.Module, gompsim.NewTeam(opts.Team, opts.Chunk), l.Spec, l.Host)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeGeneric, err)
		}
		run := compareArrays(l.Spec, got)
		if !run.Pass {
			failed++
		}
		logger.Debug("kernel executed", "kernel", l.Spec.Name, "pass", run.Pass)
		runs = append(runs, run)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: runs}
		if failed > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeMismatch, Message: fmt.Sprintf("%d kernel(s) differ from sequential evaluation", failed)}
		}
		if err := formatter.encode(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range runs {
			mark := "✓"
			if !r.Pass {
				mark = "✗"
			}
			parts := make([]string, len(r.Arrays))
			for i, a := range r.Arrays {
				parts[i] = fmt.Sprintf("%s=%d", a.Array, a.Sum)
				if !a.Match {
					parts[i] += " (mismatch)"
				}
			}
			fmt.Fprintf(w, "%s %s: %d iterations, %s\n", mark, r.Kernel, r.Iterations, strings.Join(parts, " "))
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d kernel(s) differ from sequential evaluation", failed))
	}
	return nil
}

// compareArrays checksums the parallel output and compares it with the
// sequential reference, array by array in declaration order.
func compareArrays(spec *kernel.Spec, got map[string][]int64) KernelRun {
	want := spec.Reference()
	run := KernelRun{Kernel: spec.Name, Iterations: spec.Iterations(), Pass: true}
	for _, a := range spec.Arrays {
		var sum int64
		for _, v := range got[a.Name] {
			sum += v
		}
		match := slices.Equal(got[a.Name], want[a.Name])
		if !match {
			run.Pass = false
		}
		run.Arrays = append(run.Arrays, ArrayChecksum{Array: a.Name, Sum: sum, Match: match})
	}
	return run
}
