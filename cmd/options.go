package cmd

import (
	"fmt"

	"github.com/Emyrk/pstatviz/viz"
	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/coder/serpent"
)

// cliTreeOptions are the call tree flags shared by every command that reads
// a single profile.
type cliTreeOptions struct {
	Root     string
	MaxNodes int64
}

func (o *cliTreeOptions) Attach(cmd *serpent.Command) {
	cmd.Options = append(cmd.Options,
		serpent.Option{
			Name:        "root",
			Description: "Function to root the call tree at, in file:line(name) form. Defaults to the most expensive top level function.",
			Flag:        "root",
			Value:       serpent.StringOf(&o.Root),
		},
		serpent.Option{
			Name:        "max-nodes",
			Description: "Fail instead of building a call tree with more nodes than this. 0 is unlimited.",
			Flag:        "max-nodes",
			Env:         "PSTATVIZ_MAX_NODES",
			Default:     "0",
			Value:       serpent.Int64Of(&o.MaxNodes),
		},
	)
}

func (o *cliTreeOptions) Options() callgraph.Options {
	return callgraph.Options{
		Root:     o.Root,
		MaxNodes: int(o.MaxNodes),
	}
}

// Tree loads a profile and expands its call tree.
func (o *cliTreeOptions) Tree(path string) (*callgraph.Node, error) {
	records, err := viz.LoadProfile(path)
	if err != nil {
		return nil, err
	}
	tree, err := callgraph.BuildTree(records, o.Options())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}
