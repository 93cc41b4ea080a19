package cmd

import (
	"fmt"
	"os"

	"github.com/Emyrk/pstatviz/viz/profiling"

	"github.com/coder/serpent"
)

func (r *Root) pprofCmd() *serpent.Command {
	var (
		cliOpts = new(cliTreeOptions)
		output  string
	)
	cmd := &serpent.Command{
		Use:        "pprof <profile>",
		Short:      "Convert the call tree of a profile to pprof protobuf.",
		Middleware: serpent.RequireNArgs(1),
		Options: serpent.OptionSet{
			serpent.Option{
				Name:          "output",
				Description:   "File to write to. Defaults to stdout.",
				Flag:          "output",
				FlagShorthand: "o",
				Value:         serpent.StringOf(&output),
			},
		},
		Handler: func(i *serpent.Invocation) error {
			logger := r.Logger(i)

			tree, err := cliOpts.Tree(i.Args[0])
			if err != nil {
				return err
			}

			converter := profiling.New()
			pb := converter.Convert(tree)
			data, err := converter.Encode()
			if err != nil {
				return fmt.Errorf("encode pprof: %w", err)
			}

			logger.Debug().
				Int("samples", len(pb.Sample)).
				Int("bytes", len(data)).
				Msg("converted profile")

			if output == "" {
				_, err = i.Stdout.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cliOpts.Attach(cmd)
	return cmd
}
