package callgraph

import (
	"fmt"
	"sort"

	"github.com/Emyrk/pstatviz/viz/pstats"
)

// Edge is the aggregated call relationship between a caller and a callee.
// CumulativeTime is the share of the callee's cumulative time spent on calls
// made by this caller.
type Edge struct {
	Caller         pstats.FunctionID
	Callee         pstats.FunctionID
	Calls          int64
	PrimitiveCalls int64
	SelfTime       float64
	CumulativeTime float64
}

type edgeKey struct {
	caller pstats.FunctionID
	callee pstats.FunctionID
}

// Graph is the directed call graph of a profile. Functions are referenced by
// id, their statistics live in the Index. The graph may contain cycles.
type Graph struct {
	index *Index
	out   map[pstats.FunctionID][]Edge
	in    map[pstats.FunctionID][]Edge
	roots []pstats.FunctionID
}

// BuildGraph creates one edge per caller attribution in the index, merging
// attributions that share the same caller and callee.
func BuildGraph(idx *Index) (*Graph, error) {
	edges := make(map[edgeKey]*Edge)
	// Edge creation order, so merged edges do not depend on map iteration.
	keys := make([]edgeKey, 0)

	for _, callee := range idx.order {
		for _, attr := range idx.callers[callee] {
			if _, ok := idx.stats[attr.Caller]; !ok {
				return nil, fmt.Errorf("%s called by %s: %w", callee, attr.Caller, ErrDanglingCallerReference)
			}

			key := edgeKey{caller: attr.Caller, callee: callee}
			e, ok := edges[key]
			if !ok {
				e = &Edge{Caller: attr.Caller, Callee: callee}
				edges[key] = e
				keys = append(keys, key)
			}
			e.Calls += attr.Calls
			e.PrimitiveCalls += attr.PrimitiveCalls
			e.SelfTime += attr.SelfTime
			e.CumulativeTime += attr.CumulativeTime
		}
	}

	g := &Graph{
		index: idx,
		out:   make(map[pstats.FunctionID][]Edge),
		in:    make(map[pstats.FunctionID][]Edge),
	}
	for _, key := range keys {
		e := *edges[key]
		g.out[e.Caller] = append(g.out[e.Caller], e)
		g.in[e.Callee] = append(g.in[e.Callee], e)
	}

	for _, list := range g.out {
		sortEdges(list, func(e Edge) pstats.FunctionID { return e.Callee })
	}
	for _, list := range g.in {
		sortEdges(list, func(e Edge) pstats.FunctionID { return e.Caller })
	}

	g.roots = g.findRoots()
	return g, nil
}

// sortEdges orders by cumulative time descending, then by the string form of
// the other end of the edge.
func sortEdges(edges []Edge, other func(Edge) pstats.FunctionID) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].CumulativeTime != edges[j].CumulativeTime {
			return edges[i].CumulativeTime > edges[j].CumulativeTime
		}
		return other(edges[i]).String() < other(edges[j]).String()
	})
}

func (g *Graph) findRoots() []pstats.FunctionID {
	roots := make([]pstats.FunctionID, 0)
	for _, id := range g.index.order {
		if len(g.in[id]) == 0 {
			roots = append(roots, id)
		}
	}
	// Pure mutual recursion has no entry point. Offer everything and let the
	// caller pick.
	if len(roots) == 0 {
		roots = g.index.Functions()
	}

	sort.SliceStable(roots, func(i, j int) bool {
		si, sj := g.index.stats[roots[i]], g.index.stats[roots[j]]
		if si.CumulativeTime != sj.CumulativeTime {
			return si.CumulativeTime > sj.CumulativeTime
		}
		return roots[i].String() < roots[j].String()
	})
	return roots
}

func (g *Graph) Index() *Index {
	return g.index
}

// Roots returns the root candidates: functions nobody calls. When every
// function has a caller, all functions are returned. The order is by
// cumulative time descending, ties broken by display form.
func (g *Graph) Roots() []pstats.FunctionID {
	return append([]pstats.FunctionID(nil), g.roots...)
}

// Callees returns the outgoing edges of a function, most expensive first.
func (g *Graph) Callees(id pstats.FunctionID) []Edge {
	return append([]Edge(nil), g.out[id]...)
}

// Callers returns the incoming edges of a function, most expensive first.
func (g *Graph) Callers(id pstats.FunctionID) []Edge {
	return append([]Edge(nil), g.in[id]...)
}

// Edge returns the aggregated edge between two functions, if any.
func (g *Graph) Edge(caller, callee pstats.FunctionID) (Edge, bool) {
	for _, e := range g.out[caller] {
		if e.Callee == callee {
			return e, true
		}
	}
	return Edge{}, false
}

// EdgeCount is the number of distinct caller/callee pairs.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, list := range g.out {
		count += len(list)
	}
	return count
}
