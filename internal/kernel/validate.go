package kernel

import (
	"fmt"
	"regexp"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidFunctionName = "E201" // function is not a valid symbol
	ErrNonPositiveStride   = "E202" // stride must be positive
	ErrEmptyRange          = "E203" // lb > ub
	ErrInvalidArray        = "E204" // bad or duplicate array declaration
	ErrUnknownOp           = "E205" // op is not fill, add or scale
	ErrUndefinedArray      = "E206" // op references an undeclared array
	ErrArrayTooShort       = "E207" // an iteration indexes past an array
	ErrMissingOperand      = "E208" // op lacks src or rhs
	ErrEmptyBody           = "E209" // no operations
	ErrNegativeBound       = "E210" // lb < 0 indexes before an array
)

// ValidationError represents a kernel validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var symbolPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a compiled kernel. Returns all errors found (does not
// fail-fast).
func Validate(spec *Spec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if !symbolPattern.MatchString(spec.Function) {
		add("function", ErrInvalidFunctionName, "invalid function name %q", spec.Function)
	}
	if spec.Stride <= 0 {
		add("stride", ErrNonPositiveStride, "stride %d must be positive", spec.Stride)
	}
	if spec.LB > spec.UB {
		add("ub", ErrEmptyRange, "range [%d, %d] is empty", spec.LB, spec.UB)
	}
	if spec.LB < 0 {
		add("lb", ErrNegativeBound, "lower bound %d is negative", spec.LB)
	}

	declared := make(map[string]Array, len(spec.Arrays))
	for i, a := range spec.Arrays {
		field := fmt.Sprintf("arrays[%d]", i)
		if !symbolPattern.MatchString(a.Name) {
			add(field, ErrInvalidArray, "invalid array name %q", a.Name)
		}
		if _, dup := declared[a.Name]; dup {
			add(field, ErrInvalidArray, "duplicate array name %q", a.Name)
		}
		if a.Length <= 0 {
			add(field, ErrInvalidArray, "array %q has non-positive length %d", a.Name, a.Length)
		}
		declared[a.Name] = a
	}

	if len(spec.Body) == 0 {
		add("body", ErrEmptyBody, "at least one operation is required")
	}
	// Largest index touched: the last iteration not past ub.
	last := spec.UB
	if spec.Stride > 0 && spec.LB <= spec.UB {
		last = spec.LB + (spec.UB-spec.LB)/spec.Stride*spec.Stride
	}
	for i, o := range spec.Body {
		field := fmt.Sprintf("body[%d]", i)
		switch o.Op {
		case OpFill:
		case OpAdd:
			if o.Src == "" || o.Rhs == "" {
				add(field, ErrMissingOperand, "add needs src and rhs")
			}
		case OpScale:
			if o.Src == "" {
				add(field, ErrMissingOperand, "scale needs src")
			}
		default:
			add(field+".op", ErrUnknownOp, "unknown operation %q", o.Op)
			continue
		}
		for _, name := range o.operands() {
			if name == "" {
				continue
			}
			a, ok := declared[name]
			if !ok {
				add(field, ErrUndefinedArray, "undefined array %q", name)
				continue
			}
			if a.Length > 0 && last >= a.Length {
				add(field, ErrArrayTooShort, "index %d is out of bounds for %q of length %d", last, name, a.Length)
			}
		}
	}
	return errs
}
