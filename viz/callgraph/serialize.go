package callgraph

import (
	"fmt"

	"github.com/Emyrk/pstatviz/viz/pstats"
)

// Visualization is the exchange format handed to the presentation layer: the
// call tree for an icicle or sunburst chart plus the flat stats table.
type Visualization struct {
	Root       string     `json:"root"`
	Roots      []string   `json:"roots"`
	TotalCalls int64      `json:"total_calls"`
	TotalTime  float64    `json:"total_time"`
	Tree       *TreeNode  `json:"tree"`
	Table      []TableRow `json:"table"`
}

type TreeNode struct {
	Name     string      `json:"name"`
	File     string      `json:"file"`
	Line     int         `json:"line"`
	Function string      `json:"function"`
	Calls    int64       `json:"calls"`
	Time     float64     `json:"time"`
	SelfTime float64     `json:"self_time"`
	Cut      bool        `json:"cut,omitempty"`
	Children []*TreeNode `json:"children,omitempty"`
}

type TableRow struct {
	Name              string  `json:"name"`
	File              string  `json:"file"`
	Line              int     `json:"line"`
	Function          string  `json:"function"`
	Calls             string  `json:"calls"`
	TotalCalls        int64   `json:"total_calls"`
	PrimitiveCalls    int64   `json:"primitive_calls"`
	SelfTime          float64 `json:"self_time"`
	SelfPerCall       float64 `json:"self_per_call"`
	CumulativeTime    float64 `json:"cumulative_time"`
	CumulativePerCall float64 `json:"cumulative_per_call"`
}

// Serialize combines a call tree and a stats table into a Visualization. It
// does not modify its inputs and only fails if they break the tree or table
// invariants.
func Serialize(root *Node, rows []Row, roots []pstats.FunctionID) (*Visualization, error) {
	if root == nil {
		return nil, fmt.Errorf("nil tree: %w", ErrInvariantViolation)
	}
	err := checkTree(root)
	if err != nil {
		return nil, err
	}
	err = checkRows(rows)
	if err != nil {
		return nil, err
	}

	v := &Visualization{
		Root:  root.Function.String(),
		Roots: make([]string, 0, len(roots)),
		Tree:  treeNode(root),
		Table: make([]TableRow, 0, len(rows)),
	}
	for _, id := range roots {
		v.Roots = append(v.Roots, id.String())
	}
	for _, r := range rows {
		v.TotalCalls += r.TotalCalls
		v.TotalTime += r.SelfTime
		v.Table = append(v.Table, tableRow(r))
	}
	return v, nil
}

func treeNode(n *Node) *TreeNode {
	tn := &TreeNode{
		Name:     n.Function.String(),
		File:     n.Function.File,
		Line:     n.Function.Line,
		Function: n.Function.Name,
		Calls:    n.Calls,
		Time:     n.Time,
		SelfTime: n.SelfTime,
		Cut:      n.Cut,
	}
	if len(n.Children) > 0 {
		tn.Children = make([]*TreeNode, 0, len(n.Children))
		for _, c := range n.Children {
			tn.Children = append(tn.Children, treeNode(c))
		}
	}
	return tn
}

func tableRow(r Row) TableRow {
	// Recursive functions show as total/primitive, like the profiler does.
	calls := fmt.Sprintf("%d", r.TotalCalls)
	if r.TotalCalls != r.PrimitiveCalls {
		calls = fmt.Sprintf("%d/%d", r.TotalCalls, r.PrimitiveCalls)
	}
	return TableRow{
		Name:              r.Function.String(),
		File:              r.Function.File,
		Line:              r.Function.Line,
		Function:          r.Function.Name,
		Calls:             calls,
		TotalCalls:        r.TotalCalls,
		PrimitiveCalls:    r.PrimitiveCalls,
		SelfTime:          r.SelfTime,
		SelfPerCall:       r.SelfPerCall(),
		CumulativeTime:    r.CumulativeTime,
		CumulativePerCall: r.CumulativePerCall(),
	}
}

func checkTree(root *Node) error {
	var err error
	root.Walk(func(n *Node, path []*Node) {
		if err != nil {
			return
		}
		onPath := false
		for _, ancestor := range path {
			if ancestor.Function == n.Function {
				onPath = true
				break
			}
		}

		switch {
		case n.Calls < 0 || n.Time < 0 || n.SelfTime < 0:
			err = fmt.Errorf("node %s has negative values: %w", n.Function, ErrInvariantViolation)
		case n.Cut && len(n.Children) > 0:
			err = fmt.Errorf("cut node %s has children: %w", n.Function, ErrInvariantViolation)
		case n.Cut && !onPath:
			err = fmt.Errorf("cut node %s does not repeat an ancestor: %w", n.Function, ErrInvariantViolation)
		case !n.Cut && onPath:
			err = fmt.Errorf("node %s repeats an ancestor: %w", n.Function, ErrInvariantViolation)
		}
	})
	return err
}

func checkRows(rows []Row) error {
	seen := make(map[pstats.FunctionID]bool, len(rows))
	for _, r := range rows {
		switch {
		case seen[r.Function]:
			return fmt.Errorf("duplicate row %s: %w", r.Function, ErrInvariantViolation)
		case r.SelfTime < 0 || r.TotalCalls < 0 || r.PrimitiveCalls < 0:
			return fmt.Errorf("row %s has negative values: %w", r.Function, ErrInvariantViolation)
		case r.CumulativeTime < r.SelfTime:
			return fmt.Errorf("row %s cumulative time below self time: %w", r.Function, ErrInvariantViolation)
		case r.TotalCalls < r.PrimitiveCalls:
			return fmt.Errorf("row %s total calls below primitive calls: %w", r.Function, ErrInvariantViolation)
		}
		seen[r.Function] = true
	}
	return nil
}
