package callgraph_test

import (
	"testing"

	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/Emyrk/pstatviz/viz/pstats"
	"github.com/stretchr/testify/require"
)

func rowNames(rows []callgraph.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Function.Name)
	}
	return out
}

func TestTableOneRowPerFunction(t *testing.T) {
	g := testdataGraph(t)
	idx := g.Index()

	for _, key := range callgraph.SortKeys() {
		rows, err := idx.Table(callgraph.SortKey(key))
		require.NoError(t, err)
		require.Len(t, rows, idx.Len())
		// Changing the key only permutes the rows.
		require.ElementsMatch(t, names(idx.Functions()), rowNames(rows))
	}
}

func TestTableSortKeys(t *testing.T) {
	g := testdataGraph(t)
	idx := g.Index()

	testCases := []struct {
		Key  callgraph.SortKey
		Want []string
	}{
		{Key: "", Want: []string{"<module>", "run", "fib", "helper", "<built-in method builtins.len>"}},
		{Key: callgraph.SortCumulative, Want: []string{"<module>", "run", "fib", "helper", "<built-in method builtins.len>"}},
		{Key: callgraph.SortSelf, Want: []string{"fib", "helper", "run", "<built-in method builtins.len>", "<module>"}},
		{Key: callgraph.SortCalls, Want: []string{"fib", "<built-in method builtins.len>", "helper", "<module>", "run"}},
		{Key: callgraph.SortName, Want: []string{"fib", "<module>", "run", "helper", "<built-in method builtins.len>"}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(string(testCase.Key), func(t *testing.T) {
			rows, err := idx.Table(testCase.Key)
			require.NoError(t, err)
			require.Equal(t, testCase.Want, rowNames(rows))
		})
	}
}

func TestTableStable(t *testing.T) {
	// Every function has the same stats, so insertion order must survive.
	recs := records([]string{"d", "b", "c", "a"})
	idx, err := callgraph.NewIndex(recs)
	require.NoError(t, err)

	for _, key := range []callgraph.SortKey{callgraph.SortCumulative, callgraph.SortSelf, callgraph.SortCalls} {
		for i := 0; i < 10; i++ {
			rows, err := idx.Table(key)
			require.NoError(t, err)
			require.Equal(t, []string{"d", "b", "c", "a"}, rowNames(rows))
		}
	}
}

func TestTableUnknownKey(t *testing.T) {
	idx, err := callgraph.NewIndex(records([]string{"a"}))
	require.NoError(t, err)
	_, err = idx.Table("tottime")
	require.ErrorIs(t, err, callgraph.ErrUnknownSortKey)
}

func TestRowPerCall(t *testing.T) {
	r := callgraph.Row{
		Function:       pstats.FunctionID{Name: "fib"},
		SelfTime:       0.6,
		CumulativeTime: 0.9,
		TotalCalls:     15,
		PrimitiveCalls: 3,
	}
	require.InDelta(t, 0.04, r.SelfPerCall(), 1e-9)
	require.InDelta(t, 0.3, r.CumulativePerCall(), 1e-9)
	require.Zero(t, callgraph.Row{}.SelfPerCall())
	require.Zero(t, callgraph.Row{}.CumulativePerCall())
}

func TestParseSortKey(t *testing.T) {
	key, err := callgraph.ParseSortKey("")
	require.NoError(t, err)
	require.Equal(t, callgraph.SortCumulative, key)

	key, err = callgraph.ParseSortKey("self")
	require.NoError(t, err)
	require.Equal(t, callgraph.SortSelf, key)

	_, err = callgraph.ParseSortKey("tottime")
	require.ErrorIs(t, err, callgraph.ErrUnknownSortKey)
}
