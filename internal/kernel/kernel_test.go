package kernel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parloop/internal/config"
	"github.com/roach88/parloop/internal/diag"
	"github.com/roach88/parloop/internal/gompsim"
	"github.com/roach88/parloop/internal/interp"
	"github.com/roach88/parloop/internal/ir"
	"github.com/roach88/parloop/internal/parallel"
)

func compileString(t *testing.T, src, path string) (*Spec, error) {
	t.Helper()
	v := Context().CompileString(src)
	require.NoError(t, v.Err())
	return Compile(v.LookupPath(cue.ParsePath(path)))
}

func TestCompileKernelBasic(t *testing.T) {
	spec, err := compileString(t, `
		kernel: saxpy: {
			function: "saxpy"
			lb: 0
			ub: 99
			stride: 2
			arrays: {x: 100, y: 100}
			body: [
				{op: "fill", dst: "x", factor: 2},
				{op: "scale", dst: "y", src: "x", factor: 3, offset: 1},
			]
			trace: true
		}
	`, "kernel.saxpy")
	require.NoError(t, err)

	assert.Equal(t, &Spec{
		Name:     "saxpy",
		Function: "saxpy",
		LB:       0,
		UB:       99,
		Stride:   2,
		Arrays:   []Array{{Name: "x", Length: 100}, {Name: "y", Length: 100}},
		Body: []Op{
			{Op: OpFill, Dst: "x", Factor: 2},
			{Op: OpScale, Dst: "y", Src: "x", Factor: 3, Offset: 1},
		},
		Trace: true,
	}, spec)
}

func TestCompileDefaults(t *testing.T) {
	spec, err := compileString(t, `
		kernel: k: {
			function: "k"
			lb: 0
			ub: 9
			arrays: a: 10
			body: [{op: "fill", dst: "a"}]
		}
	`, "kernel.k")
	require.NoError(t, err)

	assert.Equal(t, int64(1), spec.Stride)
	assert.False(t, spec.Trace)
	assert.Equal(t, int64(1), spec.Body[0].Factor)
	assert.Equal(t, int64(0), spec.Body[0].Offset)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown op",
			src:  `kernel: k: {function: "k", lb: 0, ub: 9, arrays: a: 10, body: [{op: "copy", dst: "a"}]}`,
		},
		{
			name: "unknown field",
			src:  `kernel: k: {function: "k", lb: 0, ub: 9, arrays: a: 10, body: [{op: "fill", dst: "a"}], chunk: 4}`,
		},
		{
			name: "missing bound",
			src:  `kernel: k: {function: "k", lb: 0, arrays: a: 10, body: [{op: "fill", dst: "a"}]}`,
		},
		{
			name: "float bound",
			src:  `kernel: k: {function: "k", lb: 0, ub: 9.5, arrays: a: 10, body: [{op: "fill", dst: "a"}]}`,
		},
		{
			name: "bad function name",
			src:  `kernel: k: {function: "not a symbol", lb: 0, ub: 9, arrays: a: 10, body: [{op: "fill", dst: "a"}]}`,
		},
		{
			name: "empty body",
			src:  `kernel: k: {function: "k", lb: 0, ub: 9, arrays: a: 10, body: []}`,
			want: "body: at least one operation is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileString(t, tt.src, "kernel.k")
			require.Error(t, err)
			var compileErr *CompileError
			require.ErrorAs(t, err, &compileErr)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Spec {
		return &Spec{
			Name:     "k",
			Function: "k",
			LB:       0,
			UB:       9,
			Stride:   1,
			Arrays:   []Array{{Name: "a", Length: 10}, {Name: "b", Length: 10}},
			Body:     []Op{{Op: OpAdd, Dst: "a", Src: "a", Rhs: "b", Factor: 1}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Spec)
		codes  []string
	}{
		{"valid", func(*Spec) {}, nil},
		{"bad function", func(s *Spec) { s.Function = "9k" }, []string{ErrInvalidFunctionName}},
		{"zero stride", func(s *Spec) { s.Stride = 0 }, []string{ErrNonPositiveStride}},
		{"empty range", func(s *Spec) { s.LB = 5; s.UB = 4 }, []string{ErrEmptyRange}},
		{"negative lb", func(s *Spec) { s.LB = -1 }, []string{ErrNegativeBound}},
		{"duplicate array", func(s *Spec) { s.Arrays[1].Name = "a" }, []string{ErrInvalidArray, ErrUndefinedArray}},
		{"zero length", func(s *Spec) { s.Arrays[1].Length = 0 }, []string{ErrInvalidArray}},
		{"unknown op", func(s *Spec) { s.Body[0].Op = "copy" }, []string{ErrUnknownOp}},
		{"missing rhs", func(s *Spec) { s.Body[0].Rhs = "" }, []string{ErrMissingOperand}},
		{"undefined array", func(s *Spec) { s.Body[0].Dst = "c" }, []string{ErrUndefinedArray}},
		{"too short", func(s *Spec) { s.Arrays[1].Length = 9 }, []string{ErrArrayTooShort}},
		{"last stride overruns", func(s *Spec) { s.Stride = 5; s.UB = 11 }, []string{ErrArrayTooShort, ErrArrayTooShort, ErrArrayTooShort}},
		{"stride fits", func(s *Spec) { s.Stride = 4; s.UB = 11 }, nil},
		{"empty body", func(s *Spec) { s.Body = nil }, []string{ErrEmptyBody}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid()
			tt.mutate(spec)
			var codes []string
			for _, e := range Validate(spec) {
				codes = append(codes, e.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestEvaluate(t *testing.T) {
	spec := &Spec{
		LB: 1, UB: 5, Stride: 2,
		Arrays: []Array{{Name: "a", Length: 6}, {Name: "b", Length: 6}},
		Body: []Op{
			{Op: OpFill, Dst: "a", Factor: 1},
			{Op: OpScale, Dst: "b", Src: "a", Factor: -2, Offset: 1},
		},
	}
	arrays := map[string][]int64{"a": make([]int64, 6), "b": make([]int64, 6)}
	spec.Evaluate(arrays)
	assert.Equal(t, []int64{0, 1, 0, 3, 0, 5}, arrays["a"])
	assert.Equal(t, []int64{0, -1, 0, -5, 0, -9}, arrays["b"])
	assert.Equal(t, int64(3), spec.Iterations())
}

func TestLoadFile(t *testing.T) {
	specs, err := Load("testdata/axpy.cue")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "axpy", specs[0].Function)
	assert.Equal(t, []string{"x", "y", "z"}, []string{specs[0].Arrays[0].Name, specs[0].Arrays[1].Name, specs[0].Arrays[2].Name})
}

func TestLoadDir(t *testing.T) {
	specs, err := Load("testdata/kernels")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "ramp", specs[0].Name)
	assert.True(t, specs[0].Trace)
	assert.Equal(t, "sum", specs[1].Name)
	assert.Equal(t, "vsum", specs[1].Function)
	assert.Equal(t, int64(2), specs[1].Stride)
}

func TestLoadDirWithoutPackageClause(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"ramp.cue": `kernel: ramp: {
	function: "ramp"
	lb:       0
	ub:       9
	arrays: a: 10
	body: [{op: "fill", dst: "a", offset: 10}]
}
`,
		"copy.cue": `kernel: copy: {
	function: "copy"
	lb:       0
	ub:       3
	arrays: {src: 4, dst: 4}
	body: [{op: "scale", dst: "dst", src: "src"}]
}
`,
	}
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
	}

	specs, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "copy", specs[0].Name)
	assert.Equal(t, "ramp", specs[1].Name)
	assert.Equal(t, int64(9), specs[1].UB)
}

func TestLoadDirConflict(t *testing.T) {
	dir := t.TempDir()
	k := "kernel: k: {function: \"k\", lb: 0, ub: %s, arrays: a: 8, body: []}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte(fmt.Sprintf(k, "3")), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte(fmt.Sprintf(k, "4")), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("testdata/nope.cue")
	assert.Error(t, err)
}

func TestLowerGolden(t *testing.T) {
	specs, err := Load("testdata/axpy.cue")
	require.NoError(t, err)

	m := ir.NewModule("kernels")
	host, err := Lower(specs[0], parallel.NewGenerator(m))
	require.NoError(t, err)
	assert.Equal(t, "axpy", host.Name())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "axpy", []byte(m.String()))
}

func execute(t *testing.T, m *ir.Module, rt gompsim.Runtime, spec *Spec, host *ir.Function) map[string][]int64 {
	t.Helper()
	out, err := Execute(context.Background(), m, rt, spec, host)
	require.NoError(t, err)
	return out
}

// flakyTrace is a team whose trace hook fails while fail is set.
type flakyTrace struct {
	*gompsim.Team
	fail bool
}

func (f *flakyTrace) Install(m *interp.Machine) {
	f.Team.Install(m)
	if f.fail {
		m.Bind(gompsim.TraceName, func(*interp.Thread, []int64) (int64, error) {
			return 0, assert.AnError
		})
	}
}

func TestExecuteFailureReleasesRuntime(t *testing.T) {
	specs, err := Load("testdata/kernels")
	require.NoError(t, err)
	ramp := specs[0]
	require.True(t, ramp.Trace)

	m := ir.NewModule("kernels")
	host, err := Lower(ramp, parallel.NewGenerator(m))
	require.NoError(t, err)

	rt := &flakyTrace{Team: gompsim.NewTeam(2, 1), fail: true}
	_, err = Execute(context.Background(), m, rt, ramp, host)
	require.ErrorIs(t, err, assert.AnError)

	rt.fail = false
	got := execute(t, m, rt, ramp, host)
	assert.Equal(t, ramp.Reference(), got)
	assert.Equal(t, 1, rt.Regions())
}

func TestLowerMatchesEvaluate(t *testing.T) {
	specs, err := Load("testdata/kernels")
	require.NoError(t, err)

	m := ir.NewModule("kernels")
	gen := parallel.NewGenerator(m)
	hosts := make([]*ir.Function, len(specs))
	for i, spec := range specs {
		hosts[i], err = Lower(spec, gen)
		require.NoError(t, err)
	}

	for i, spec := range specs {
		t.Run(spec.Name, func(t *testing.T) {
			got := execute(t, m, gompsim.NewTeam(4, 3), spec, hosts[i])
			assert.Equal(t, spec.Reference(), got)
		})
	}
}

func TestLowerTrace(t *testing.T) {
	specs, err := Load("testdata/kernels")
	require.NoError(t, err)
	ramp := specs[0]

	m := ir.NewModule("trace")
	host, err := Lower(ramp, parallel.NewGenerator(m))
	require.NoError(t, err)

	rt := gompsim.NewScripted(gompsim.Chunk{LB: 0, UB: 60}, gompsim.Chunk{LB: 60, UB: 100})
	got := execute(t, m, rt, ramp, host)

	ivs := rt.Iterations()
	require.Len(t, ivs, 100)
	for i, iv := range ivs {
		assert.Equal(t, int64(i), iv)
	}
	assert.Equal(t, int64(10), got["a"][0])
	assert.Equal(t, int64(109), got["a"][99])
}

func TestLowerRejectsInvalid(t *testing.T) {
	m := ir.NewModule("invalid")
	spec := &Spec{
		Name: "k", Function: "k", LB: 0, UB: 9, Stride: 1,
		Arrays: []Array{{Name: "a", Length: 5}},
		Body:   []Op{{Op: OpFill, Dst: "a", Factor: 1}},
	}
	_, err := Lower(spec, parallel.NewGenerator(m))
	require.ErrorIs(t, err, ErrInvalid)

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrArrayTooShort, verr.Code)
	assert.Empty(t, m.Functions())
}

func TestLowerNameClash(t *testing.T) {
	specs, err := Load("testdata/axpy.cue")
	require.NoError(t, err)

	m := ir.NewModule("clash")
	gen := parallel.NewGenerator(m)
	_, err = Lower(specs[0], gen)
	require.NoError(t, err)
	_, err = Lower(specs[0], gen)
	assert.Error(t, err)
}

func TestLowerFailureRemovesFunctions(t *testing.T) {
	specs, err := Load("testdata/kernels")
	require.NoError(t, err)
	ramp := specs[0]
	require.True(t, ramp.Trace)

	m := ir.NewModule("conflict")
	_, err = m.NewFunction(gompsim.TraceName, ir.FuncType(ir.I32), ir.ExternalLinkage)
	require.NoError(t, err)
	gen := parallel.NewGenerator(m)

	_, err = Lower(ramp, gen)
	require.Error(t, err)
	assert.Nil(t, m.Function(ramp.Function))
	assert.Nil(t, m.Function(ramp.Function+parallel.WorkerSuffix))

	// The same generator still lowers kernels that do not need the hook.
	sum := specs[1]
	host, err := Lower(sum, gen)
	require.NoError(t, err)
	assert.Same(t, host, m.Function(sum.Function))
}

func TestBuild(t *testing.T) {
	specs, err := Load("testdata/kernels")
	require.NoError(t, err)

	out, err := Build("kernels", specs, BuildOptions{Config: config.Default()})
	require.NoError(t, err)
	require.Len(t, out.Kernels, 2)

	ramp, err := out.Kernel("ramp")
	require.NoError(t, err)
	assert.Equal(t, "ramp", ramp.Host.Name())
	assert.Equal(t, []string{"ramp_parloop_subfn"}, ramp.Workers)
	assert.Empty(t, ramp.Diagnostics)

	sum, err := out.Kernel("sum")
	require.NoError(t, err)
	assert.Equal(t, []string{"vsum_parloop_subfn"}, sum.Workers)

	_, err = out.Kernel("missing")
	assert.Error(t, err)

	got := execute(t, out.Module, gompsim.NewTeam(2, 5), sum.Spec, sum.Host)
	assert.Equal(t, sum.Spec.Reference(), got)
}

func TestBuildDiagnosticsPerKernel(t *testing.T) {
	specs, err := Load("testdata/kernels")
	require.NoError(t, err)

	opts := config.Default()
	opts.Schedule = config.ScheduleDynamic
	opts.NumThreads = 3
	sink := &diag.Recorder{}
	out, err := Build("kernels", specs, BuildOptions{Config: opts, Diagnostics: sink})
	require.NoError(t, err)

	for _, l := range out.Kernels {
		require.Len(t, l.Diagnostics, 1, l.Spec.Name)
		assert.Contains(t, l.Diagnostics[0], `ignoring "dynamic"`)
	}
	assert.Equal(t, 2, sink.Len())

	g := out.Generation(out.Kernels[1], "id-1", 0)
	assert.Equal(t, "sum", g.Kernel)
	assert.Equal(t, "vsum", g.Function)
	assert.Equal(t, int32(3), g.NumThreads)
	assert.Equal(t, "dynamic", g.Schedule)
	assert.Equal(t, ir.ModuleHash(out.Module), g.ModuleHash)
	assert.Equal(t, out.Kernels[1].Diagnostics, g.Diagnostics)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	opts := config.Default()
	opts.NumThreads = -1
	_, err := Build("bad", nil, BuildOptions{Config: opts})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuildStopsAtInvalidKernel(t *testing.T) {
	bad := &Spec{
		Name: "bad", Function: "bad", LB: 0, UB: 9, Stride: 1,
		Arrays: []Array{{Name: "a", Length: 2}},
		Body:   []Op{{Op: OpFill, Dst: "a", Factor: 1}},
	}
	_, err := Build("bad", []*Spec{bad}, BuildOptions{Config: config.Default()})
	assert.ErrorIs(t, err, ErrInvalid)
}
