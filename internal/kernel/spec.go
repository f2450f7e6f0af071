// Package kernel describes simple element-wise array kernels in CUE and lowers
// them to parallel loops.
//
// A kernel file holds one or more kernels under the top-level kernel field:
//
//	kernel: saxpy: {
//		function: "saxpy"
//		lb:       0
//		ub:       99         // inclusive
//		stride:   1
//		arrays: {x: 100, y: 100}
//		body: [
//			{op: "fill", dst: "x", factor: 2},
//			{op: "scale", dst: "y", src: "x", factor: 3, offset: 1},
//		]
//	}
//
// Every body operation runs once per iteration i, in order:
//
//	fill   dst[i] = factor*i + offset
//	add    dst[i] = src[i] + rhs[i]
//	scale  dst[i] = factor*src[i] + offset
package kernel

// Op names.
const (
	OpFill  = "fill"
	OpAdd   = "add"
	OpScale = "scale"
)

// Spec is a compiled kernel.
type Spec struct {
	// Name is the kernel's label in the CUE file.
	Name string `json:"name"`
	// Function is the host function symbol.
	Function string `json:"function"`
	// LB and UB bound the iteration space; both are inclusive.
	LB     int64 `json:"lb"`
	UB     int64 `json:"ub"`
	Stride int64 `json:"stride"`
	// Arrays lists the i64 arrays in declaration order; they become the
	// host function's parameters.
	Arrays []Array `json:"arrays"`
	Body   []Op    `json:"body"`
	// Trace calls the iteration trace hook with every induction variable.
	Trace bool `json:"trace,omitempty"`
}

// Array is an i64 array parameter.
type Array struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
}

// Op is one element-wise operation of the loop body.
type Op struct {
	Op     string `json:"op"`
	Dst    string `json:"dst"`
	Src    string `json:"src,omitempty"`
	Rhs    string `json:"rhs,omitempty"`
	Factor int64  `json:"factor"`
	Offset int64  `json:"offset"`
}

// Array returns the array with the given name.
func (s *Spec) Array(name string) (Array, bool) {
	for _, a := range s.Arrays {
		if a.Name == name {
			return a, true
		}
	}
	return Array{}, false
}

// Iterations returns the number of loop iterations.
func (s *Spec) Iterations() int64 {
	if s.Stride <= 0 || s.LB > s.UB {
		return 0
	}
	return (s.UB-s.LB)/s.Stride + 1
}

// operands returns the arrays op reads and writes.
func (o Op) operands() []string {
	switch o.Op {
	case OpAdd:
		return []string{o.Dst, o.Src, o.Rhs}
	case OpScale:
		return []string{o.Dst, o.Src}
	}
	return []string{o.Dst}
}

// Evaluate runs the kernel sequentially over arrays, which must hold every
// declared array with its declared length.
func (s *Spec) Evaluate(arrays map[string][]int64) {
	if s.Stride <= 0 {
		return
	}
	for i := s.LB; i <= s.UB; i += s.Stride {
		for _, o := range s.Body {
			dst := arrays[o.Dst]
			switch o.Op {
			case OpFill:
				dst[i] = o.Factor*i + o.Offset
			case OpAdd:
				dst[i] = arrays[o.Src][i] + arrays[o.Rhs][i]
			case OpScale:
				dst[i] = o.Factor*arrays[o.Src][i] + o.Offset
			}
		}
	}
}
