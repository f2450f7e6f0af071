package kernel

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
)

// kernelSchema returns the #Kernel definition, compiled once. Values to be
// checked against it must come from the same context.
func kernelSchema() (*cue.Context, cue.Value) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaDef = schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue")).
			LookupPath(cue.ParsePath("#Kernel"))
	})
	return schemaCtx, schemaDef
}

// Context returns the CUE context kernel values must be built in.
func Context() *cue.Context {
	ctx, _ := kernelSchema()
	return ctx
}

// Compile parses a CUE kernel value into a Spec. The value must come from
// Context().
//
// The value should be the kernel struct itself, e.g.:
//
//	v := kernel.Context().CompileString(`kernel: saxpy: { ... }`)
//	spec, err := kernel.Compile(v.LookupPath(cue.ParsePath("kernel.saxpy")))
func Compile(v cue.Value) (*Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &Spec{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	if err := checkFields(v, kernelFields); err != nil {
		return nil, err
	}
	_, schema := kernelSchema()
	v = v.Unify(schema)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var err error
	if spec.Function, err = v.LookupPath(cue.ParsePath("function")).String(); err != nil {
		return nil, formatCUEError(err)
	}
	for _, f := range []struct {
		name string
		dst  *int64
	}{
		{"lb", &spec.LB},
		{"ub", &spec.UB},
		{"stride", &spec.Stride},
	} {
		if *f.dst, err = v.LookupPath(cue.ParsePath(f.name)).Int64(); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if spec.Trace, err = v.LookupPath(cue.ParsePath("trace")).Bool(); err != nil {
		return nil, formatCUEError(err)
	}

	if spec.Arrays, err = parseArrays(v); err != nil {
		return nil, err
	}
	if spec.Body, err = parseBody(v); err != nil {
		return nil, err
	}
	if len(spec.Body) == 0 {
		return nil, &CompileError{
			Field:   "body",
			Message: "at least one operation is required",
			Pos:     v.Pos(),
		}
	}
	return spec, nil
}

var (
	kernelFields = []string{"function", "lb", "ub", "stride", "arrays", "body", "trace"}
	opFields     = []string{"op", "dst", "src", "rhs", "factor", "offset"}
)

// checkFields rejects fields outside allowed, with the field's position.
func checkFields(v cue.Value, allowed []string) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().String()
		if !slices.Contains(allowed, label) {
			return &CompileError{
				Field:   label,
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

// parseArrays extracts the array declarations in source order.
func parseArrays(v cue.Value) ([]Array, error) {
	var arrays []Array
	iter, err := v.LookupPath(cue.ParsePath("arrays")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		length, err := iter.Value().Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arrays = append(arrays, Array{Name: iter.Selector().Unquoted(), Length: length})
	}
	return arrays, nil
}

// parseBody extracts the body operations. The factor defaults to 1.
func parseBody(v cue.Value) ([]Op, error) {
	var ops []Op
	list, err := v.LookupPath(cue.ParsePath("body")).List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for list.Next() {
		elem := list.Value()
		if err := checkFields(elem, opFields); err != nil {
			return nil, err
		}
		op := Op{Factor: 1}
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"op", &op.Op},
			{"dst", &op.Dst},
			{"src", &op.Src},
			{"rhs", &op.Rhs},
		} {
			if *f.dst, err = optionalString(elem, f.name); err != nil {
				return nil, err
			}
		}
		for _, f := range []struct {
			name string
			dst  *int64
		}{
			{"factor", &op.Factor},
			{"offset", &op.Offset},
		} {
			fv := elem.LookupPath(cue.ParsePath(f.name))
			if !fv.Exists() {
				continue
			}
			if *f.dst, err = fv.Int64(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
