package cmd

import (
	"bytes"
	"fmt"
	"runtime/pprof"

	"github.com/Emyrk/pstatviz/cmd/workdemo"

	"github.com/coder/serpent"
)

func (r *Root) pprofDemo() *serpent.Command {
	var depth int64
	return &serpent.Command{
		Use:   "pprofdemo",
		Short: "Profile a recursive demo workload and write the pprof profile to stdout.",
		Options: serpent.OptionSet{
			serpent.Option{
				Name:        "depth",
				Description: "Recursion depth of the workload.",
				Flag:        "depth",
				Default:     "4",
				Value:       serpent.Int64Of(&depth),
			},
		},
		Handler: func(i *serpent.Invocation) error {
			logger := r.Logger(i)

			var buf bytes.Buffer
			err := pprof.StartCPUProfile(&buf)
			if err != nil {
				return fmt.Errorf("start cpu profile: %w", err)
			}

			// Do some work
			result := workdemo.Root(int(depth))

			// Stop profile
			pprof.StopCPUProfile()
			logger.Debug().Int("result", result).Int("bytes", buf.Len()).Msg("profiled workload")

			// Write the profile to output
			_, err = buf.WriteTo(i.Stdout)
			return err
		},
	}
}
