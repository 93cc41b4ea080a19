package callgraph_test

import (
	"testing"

	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/Emyrk/pstatviz/viz/pstats"
	"github.com/stretchr/testify/require"
)

func fn(name string) pstats.FunctionID {
	return pstats.FunctionID{File: "test.py", Line: 1, Name: name}
}

// call is one caller attribution: from calls to, calls times, spending time.
type call struct {
	from, to string
	calls    int64
	time     float64
}

// records builds a consistent profile. Every function spends one second of
// self time, cumulative time is self time plus the time of its outgoing
// calls.
func records(funcs []string, calls ...call) []pstats.Record {
	const self = 1.0

	out := make([]pstats.Record, 0, len(funcs))
	for _, name := range funcs {
		r := pstats.Record{
			Function:       fn(name),
			SelfTime:       self,
			CumulativeTime: self,
		}
		for _, c := range calls {
			if c.from == name {
				r.CumulativeTime += c.time
			}
			if c.to == name {
				r.TotalCalls += c.calls
				r.Callers = append(r.Callers, pstats.CallerStats{
					Caller:         fn(c.from),
					PrimitiveCalls: c.calls,
					Calls:          c.calls,
					CumulativeTime: c.time,
				})
			}
		}
		if r.TotalCalls == 0 {
			r.TotalCalls = 1
		}
		r.PrimitiveCalls = r.TotalCalls
		out = append(out, r)
	}
	return out
}

func graph(t *testing.T, recs []pstats.Record) *callgraph.Graph {
	t.Helper()
	idx, err := callgraph.NewIndex(recs)
	require.NoError(t, err)
	g, err := callgraph.BuildGraph(idx)
	require.NoError(t, err)
	return g
}

func testdataGraph(t *testing.T) *callgraph.Graph {
	t.Helper()
	recs, err := pstats.ReadFile("../pstats/testdata/profile.json")
	require.NoError(t, err)
	return graph(t, recs)
}

func names(ids []pstats.FunctionID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Name)
	}
	return out
}

func childNames(n *callgraph.Node) []string {
	out := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		out = append(out, c.Function.Name)
	}
	return out
}
