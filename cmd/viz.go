package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/Emyrk/pstatviz/viz"
	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/coder/serpent"
)

func (r *Root) vizCmd() *serpent.Command {
	var (
		cliOpts = new(cliTreeOptions)
		sortKey string
		pretty  bool
	)
	cmd := &serpent.Command{
		Use:        "viz <profile>",
		Short:      "Print the call tree and stats table of a profile as JSON.",
		Middleware: serpent.RequireNArgs(1),
		Options: serpent.OptionSet{
			serpent.Option{
				Name:        "sort",
				Description: "Stats table order.",
				Flag:        "sort",
				Default:     string(callgraph.SortCumulative),
				Value:       serpent.EnumOf(&sortKey, callgraph.SortKeys()...),
			},
			serpent.Option{
				Name:        "pretty",
				Description: "Pretty print JSON.",
				Required:    false,
				Flag:        "pretty",
				Value:       serpent.BoolOf(&pretty),
			},
		},
		Handler: func(i *serpent.Invocation) error {
			logger := r.Logger(i)
			path := i.Args[0]

			records, err := viz.LoadProfile(path)
			if err != nil {
				return err
			}

			opts := cliOpts.Options()
			opts.Sort = callgraph.SortKey(sortKey)
			v, err := callgraph.Visualize(records, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			logger.Debug().
				Str("profile", path).
				Str("root", v.Root).
				Int("functions", len(v.Table)).
				Msg("visualized profile")

			enc := json.NewEncoder(i.Stdout)
			if pretty {
				enc.SetIndent("", "\t")
			}
			return enc.Encode(v)
		},
	}

	cliOpts.Attach(cmd)
	return cmd
}
