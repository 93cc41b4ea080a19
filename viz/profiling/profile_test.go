package profiling_test

import (
	"bytes"
	"testing"

	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/Emyrk/pstatviz/viz/profiling"
	"github.com/Emyrk/pstatviz/viz/pstats"
	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/require"
)

func expandTestdata(t *testing.T) *callgraph.Node {
	t.Helper()
	recs, err := pstats.ReadFile("../pstats/testdata/profile.json")
	require.NoError(t, err)
	idx, err := callgraph.NewIndex(recs)
	require.NoError(t, err)
	g, err := callgraph.BuildGraph(idx)
	require.NoError(t, err)
	root, err := g.Expand(g.Roots()[0], callgraph.ExpandOptions{})
	require.NoError(t, err)
	return root
}

func TestConvert(t *testing.T) {
	root := expandTestdata(t)

	converter := profiling.New()
	p := converter.Convert(root)
	require.NoError(t, p.CheckValid())

	// One function per distinct id, one sample per tree node.
	require.Len(t, p.Function, 5)
	require.Len(t, p.Sample, root.Size())

	// Recursive attribution can only add time, never drop it.
	var total int64
	for _, s := range p.Sample {
		total += s.Value[0]
	}
	require.GreaterOrEqual(t, total, int64(1e9)-int64(len(p.Sample)))

	for _, sample := range p.Sample {
		leaf := profiling.FindFunction(p, sample.Location[0].ID)
		require.NotNil(t, leaf)
		root := profiling.FindFunction(p, sample.Location[len(sample.Location)-1].ID)
		require.Equal(t, "<module>", root.Name)
	}

	data, err := converter.Encode()
	require.NoError(t, err)
	parsed, err := profile.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, parsed.Sample, len(p.Sample))
}

// consistentTree is A -> B -> {C, A}, where the second A is a cut point.
func consistentTree() *callgraph.Node {
	return &callgraph.Node{Function: fnID("A"), Calls: 1, Time: 3, SelfTime: 1, Children: []*callgraph.Node{
		{Function: fnID("B"), Calls: 1, Time: 2, SelfTime: 0.5, Children: []*callgraph.Node{
			{Function: fnID("A"), Calls: 1, Time: 1, SelfTime: 1, Cut: true},
			{Function: fnID("C"), Calls: 1, Time: 0.5, SelfTime: 0.5},
		}},
	}}
}

func TestConvertConservesTime(t *testing.T) {
	p := profiling.New().Convert(consistentTree())
	require.Len(t, p.Sample, 4)

	var total int64
	for _, s := range p.Sample {
		total += s.Value[0]
	}
	require.Equal(t, int64(3e9), total)
	require.Equal(t, int64(3e9), p.DurationNanos)
}

func TestExclusiveTime(t *testing.T) {
	n := &callgraph.Node{Time: 3, Children: []*callgraph.Node{{Time: 1}, {Time: 0.5}}}
	require.InDelta(t, 1.5, profiling.ExclusiveTime(n), 1e-9)

	over := &callgraph.Node{Time: 1, Children: []*callgraph.Node{{Time: 2}}}
	require.Zero(t, profiling.ExclusiveTime(over))

	cut := &callgraph.Node{Time: 2, Cut: true}
	require.InDelta(t, 2.0, profiling.ExclusiveTime(cut), 1e-9)
}

func fnID(name string) pstats.FunctionID {
	return pstats.FunctionID{File: "demo.go", Line: 1, Name: name}
}

// stackProfile builds a cpu profile from leaf-first stacks of names.
func stackProfile(stacks [][]string, values []int64) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "samples", Unit: "count"},
			{Type: "cpu", Unit: "nanoseconds"},
		},
	}
	locs := make(map[string]*profile.Location)
	for i, stack := range stacks {
		s := &profile.Sample{Value: []int64{1, values[i]}}
		for _, name := range stack {
			loc, ok := locs[name]
			if !ok {
				fn := &profile.Function{ID: uint64(len(locs) + 1), Name: name, SystemName: name, Filename: "demo.go", StartLine: 1}
				loc = &profile.Location{ID: fn.ID, Line: []profile.Line{{Function: fn, Line: 1}}}
				locs[name] = loc
				p.Function = append(p.Function, fn)
				p.Location = append(p.Location, loc)
			}
			s.Location = append(s.Location, loc)
		}
		p.Sample = append(p.Sample, s)
	}
	return p
}

func TestFromPprof(t *testing.T) {
	p := stackProfile([][]string{
		{"work", "main"},
		{"work", "main"},
		{"helper", "work", "main"},
		{"main"},
	}, []int64{1e9, 1e9, 2e9, 5e8})

	recs, err := profiling.FromPprof(p, "")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	byName := make(map[string]pstats.Record)
	for _, r := range recs {
		byName[r.Function.Name] = r
	}
	require.Equal(t, "main", recs[0].Function.Name)

	main := byName["main"]
	require.InDelta(t, 4.5, main.CumulativeTime, 1e-9)
	require.InDelta(t, 0.5, main.SelfTime, 1e-9)
	require.Empty(t, main.Callers)

	work := byName["work"]
	require.InDelta(t, 4.0, work.CumulativeTime, 1e-9)
	require.InDelta(t, 2.0, work.SelfTime, 1e-9)
	require.Equal(t, int64(3), work.TotalCalls)
	require.Len(t, work.Callers, 1)
	require.Equal(t, fnID("main"), work.Callers[0].Caller)
	require.InDelta(t, 4.0, work.Callers[0].CumulativeTime, 1e-9)

	v, err := callgraph.Visualize(recs, callgraph.Options{})
	require.NoError(t, err)
	require.Equal(t, "demo.go:1(main)", v.Root)
}

func TestFromPprofRecursion(t *testing.T) {
	p := stackProfile([][]string{
		{"fib", "fib", "fib", "main"},
		{"fib", "main"},
	}, []int64{3e9, 1e9})

	recs, err := profiling.FromPprof(p, "cpu")
	require.NoError(t, err)

	var fib pstats.Record
	for _, r := range recs {
		if r.Function.Name == "fib" {
			fib = r
		}
	}
	require.Equal(t, int64(4), fib.TotalCalls)
	require.Equal(t, int64(2), fib.PrimitiveCalls)
	// Counted once per sample, not once per frame.
	require.InDelta(t, 4.0, fib.CumulativeTime, 1e-9)
	require.InDelta(t, 4.0, fib.SelfTime, 1e-9)

	idx, err := callgraph.NewIndex(recs)
	require.NoError(t, err)
	g, err := callgraph.BuildGraph(idx)
	require.NoError(t, err)

	self, ok := g.Edge(fnID("fib"), fnID("fib"))
	require.True(t, ok)
	require.Equal(t, int64(2), self.Calls)
	require.InDelta(t, 3.0, self.CumulativeTime, 1e-9)

	root, err := g.Expand(fnID("main"), callgraph.ExpandOptions{})
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	require.True(t, root.Children[0].Children[0].Cut)
}

func TestFromPprofErrors(t *testing.T) {
	p := stackProfile([][]string{{"main"}}, []int64{1})

	_, err := profiling.FromPprof(p, "alloc_space")
	require.Error(t, err)

	_, err = profiling.FromPprof(&profile.Profile{}, "")
	require.Error(t, err)

	p.Sample[0].Value[1] = -1
	_, err = profiling.FromPprof(p, "")
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	converter := profiling.New()
	converter.Convert(consistentTree())
	data, err := converter.Encode()
	require.NoError(t, err)

	recs, err := profiling.Read(bytes.NewReader(data), "")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	v, err := callgraph.Visualize(recs, callgraph.Options{})
	require.NoError(t, err)
	// The recursive call back into A leaves no entry point, A is offered
	// first as the most expensive candidate.
	require.Equal(t, "demo.go:1(A)", v.Root)
	require.Len(t, v.Roots, 3)
	require.InDelta(t, 3.0, v.Tree.Time, 1e-9)
}
