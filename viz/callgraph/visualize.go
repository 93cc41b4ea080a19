package callgraph

import (
	"fmt"

	"github.com/Emyrk/pstatviz/viz/pstats"
)

type Options struct {
	// Root is the display form of the function to root the tree at. Empty
	// picks the first root candidate.
	Root     string
	Sort     SortKey
	MaxNodes int
}

// Visualize turns raw profile records into a call tree and a stats table.
func Visualize(records []pstats.Record, opts Options) (*Visualization, error) {
	idx, g, root, err := prepare(records, opts.Root)
	if err != nil {
		return nil, err
	}

	tree, err := g.Expand(root, ExpandOptions{MaxNodes: opts.MaxNodes})
	if err != nil {
		return nil, fmt.Errorf("expand call tree: %w", err)
	}

	rows, err := idx.Table(opts.Sort)
	if err != nil {
		return nil, fmt.Errorf("project table: %w", err)
	}

	return Serialize(tree, rows, g.Roots())
}

// BuildTree is Visualize without the table, for consumers that only need the
// call tree. Options.Sort is ignored.
func BuildTree(records []pstats.Record, opts Options) (*Node, error) {
	_, g, root, err := prepare(records, opts.Root)
	if err != nil {
		return nil, err
	}

	tree, err := g.Expand(root, ExpandOptions{MaxNodes: opts.MaxNodes})
	if err != nil {
		return nil, fmt.Errorf("expand call tree: %w", err)
	}
	return tree, nil
}

func prepare(records []pstats.Record, rootName string) (*Index, *Graph, pstats.FunctionID, error) {
	var root pstats.FunctionID

	idx, err := NewIndex(records)
	if err != nil {
		return nil, nil, root, fmt.Errorf("index profile: %w", err)
	}
	if idx.Len() == 0 {
		return nil, nil, root, ErrEmptyProfile
	}

	g, err := BuildGraph(idx)
	if err != nil {
		return nil, nil, root, fmt.Errorf("build call graph: %w", err)
	}

	root = g.Roots()[0]
	if rootName != "" {
		root, err = idx.Lookup(rootName)
		if err != nil {
			return nil, nil, root, fmt.Errorf("select root: %w", err)
		}
	}
	return idx, g, root, nil
}
