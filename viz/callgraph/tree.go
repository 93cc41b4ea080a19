package callgraph

import (
	"fmt"

	"github.com/Emyrk/pstatviz/viz/pstats"
)

// Node is one call path in the expanded call tree. Calls and times are those
// of the edge from the parent, so a function reached through several callers
// has its time split across several nodes. The root node carries the
// function's own totals.
type Node struct {
	Function pstats.FunctionID
	Calls    int64
	SelfTime float64
	Time     float64
	// Cut marks a function that already appears on the path from the root.
	// Expansion stops here and the node has no children.
	Cut      bool
	Children []*Node
}

// Size is the number of nodes in the subtree, this node included.
func (n *Node) Size() int {
	size := 1
	for _, c := range n.Children {
		size += c.Size()
	}
	return size
}

// Walk visits every node depth first. path holds the ancestors of n, root
// first, and must not be retained.
func (n *Node) Walk(fn func(n *Node, path []*Node)) {
	n.walk(fn, nil)
}

func (n *Node) walk(fn func(n *Node, path []*Node), path []*Node) {
	fn(n, path)
	path = append(path, n)
	for _, c := range n.Children {
		c.walk(fn, path)
	}
}

type ExpandOptions struct {
	// MaxNodes aborts expansion with ErrTreeTooLarge once more nodes than
	// this would be emitted. Zero means no limit.
	MaxNodes int
}

type expander struct {
	graph    *Graph
	maxNodes int
	count    int
	// onPath holds the functions between the root and the node being
	// expanded. Siblings do not see each other.
	onPath map[pstats.FunctionID]bool
}

// Expand materializes the call tree rooted at root. Recursion is cut the
// first time a function repeats on a path, so expansion terminates for any
// graph.
func (g *Graph) Expand(root pstats.FunctionID, opts ExpandOptions) (*Node, error) {
	stats, ok := g.index.Stats(root)
	if !ok {
		return nil, fmt.Errorf("root %s: %w", root, ErrUnknownFunction)
	}
	if opts.MaxNodes < 0 {
		return nil, fmt.Errorf("max nodes must not be negative, got %d", opts.MaxNodes)
	}

	e := &expander{
		graph:    g,
		maxNodes: opts.MaxNodes,
		onPath:   make(map[pstats.FunctionID]bool),
	}

	node, err := e.emit(&Node{
		Function: root,
		Calls:    stats.TotalCalls,
		SelfTime: stats.SelfTime,
		Time:     stats.CumulativeTime,
	})
	if err != nil {
		return nil, err
	}

	err = e.expand(node)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (e *expander) emit(n *Node) (*Node, error) {
	e.count++
	if e.maxNodes > 0 && e.count > e.maxNodes {
		return nil, fmt.Errorf("more than %d nodes: %w", e.maxNodes, ErrTreeTooLarge)
	}
	return n, nil
}

func (e *expander) expand(n *Node) error {
	e.onPath[n.Function] = true
	defer delete(e.onPath, n.Function)

	callees := e.graph.out[n.Function]
	if len(callees) == 0 {
		return nil
	}

	n.Children = make([]*Node, 0, len(callees))
	for _, edge := range callees {
		child, err := e.emit(&Node{
			Function: edge.Callee,
			Calls:    edge.Calls,
			SelfTime: edge.SelfTime,
			Time:     edge.CumulativeTime,
			Cut:      e.onPath[edge.Callee],
		})
		if err != nil {
			return err
		}
		n.Children = append(n.Children, child)

		if child.Cut {
			continue
		}
		err = e.expand(child)
		if err != nil {
			return err
		}
	}
	return nil
}
