package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/roach88/parloop/internal/kernel"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeLoadFailed  = "E004" // CUE load or compile failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeGenerate    = "E008" // Kernel failed validation or lowering
	ErrCodeDatabase    = "E009" // History store error
	ErrCodeMismatch    = "E010" // Parallel result differs from sequential
)

// loadKernels compiles the kernels at path, optionally keeping only the
// named ones. Errors carry the CLI error code to report.
func loadKernels(path string, names []string) ([]*kernel.Spec, string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, ErrCodeNotFound, fmt.Errorf("kernel path not found: %s", path)
	}
	specs, err := kernel.Load(path)
	if err != nil {
		return nil, ErrCodeLoadFailed, err
	}
	if len(names) == 0 {
		return specs, "", nil
	}

	var picked []*kernel.Spec
	for _, name := range names {
		i := slices.IndexFunc(specs, func(s *kernel.Spec) bool { return s.Name == name })
		if i < 0 {
			return nil, ErrCodeNotFound, fmt.Errorf("kernel %q not found in %s", name, path)
		}
		picked = append(picked, specs[i])
	}
	return picked, "", nil
}
