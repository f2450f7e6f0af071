package kernel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
)

// Load compiles every kernel in a CUE file, or in all the CUE files of a
// directory. Compile errors of individual kernels are collected and joined;
// the kernels that compiled are still returned.
//
// Kernel compilation shares one CUE context and is not safe for concurrent
// use.
func Load(path string) ([]*Spec, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load kernels: %w", err)
	}

	var value cue.Value
	if info.IsDir() {
		value, err = loadDir(path)
	} else {
		value, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return compileAll(value)
}

func loadFile(path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("load kernels: %w", err)
	}
	v := Context().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// loadDir unifies every .cue file in dir, in name order. Kernel files need
// no package clause; files that carry one are unified the same way.
func loadDir(dir string) (cue.Value, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return cue.Value{}, fmt.Errorf("load kernels: %w", err)
	}
	if len(files) == 0 {
		return cue.Value{}, fmt.Errorf("load kernels: no CUE files found in %s", dir)
	}

	var v cue.Value
	for i, f := range files {
		fv, err := loadFile(f)
		if err != nil {
			return cue.Value{}, err
		}
		if i == 0 {
			v = fv
			continue
		}
		v = v.Unify(fv)
	}
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// compileAll compiles the fields of the top-level kernel struct, sorted by
// label so that module layout does not depend on file order.
func compileAll(v cue.Value) ([]*Spec, error) {
	kernels := v.LookupPath(cue.ParsePath("kernel"))
	if !kernels.Exists() {
		return nil, &CompileError{Field: "kernel", Message: "no kernels found", Pos: v.Pos()}
	}
	iter, err := kernels.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []*Spec
	var errs []error
	for iter.Next() {
		spec, err := Compile(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("kernel %s: %w", iter.Selector(), err))
			continue
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	if len(specs) == 0 && len(errs) == 0 {
		errs = append(errs, &CompileError{Field: "kernel", Message: "no kernels found", Pos: kernels.Pos()})
	}
	return specs, errors.Join(errs...)
}
