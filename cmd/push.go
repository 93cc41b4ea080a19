package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Emyrk/pstatviz/viz/profiling"

	"github.com/coder/serpent"
)

func (r *Root) pushCmd() *serpent.Command {
	var (
		cliOpts = new(cliTreeOptions)
		pusher  profiling.PusherOptions
		name    string
	)
	cmd := &serpent.Command{
		Use:        "push <profile>",
		Short:      "Upload the call tree of a profile to Pyroscope.",
		Middleware: serpent.RequireNArgs(1),
		Options: serpent.OptionSet{
			serpent.Option{
				Name:        "address",
				Description: "Pyroscope server address.",
				Required:    true,
				Flag:        "address",
				Env:         "PSTATVIZ_PYROSCOPE_ADDRESS",
				Value:       serpent.StringOf(&pusher.Address),
			},
			serpent.Option{
				Name:        "auth-token",
				Description: "Pyroscope auth token.",
				Flag:        "auth-token",
				Env:         "PSTATVIZ_PYROSCOPE_AUTH_TOKEN",
				Value:       serpent.StringOf(&pusher.AuthToken),
			},
			serpent.Option{
				Name:        "tenant-id",
				Description: "Pyroscope tenant.",
				Flag:        "tenant-id",
				Env:         "PSTATVIZ_PYROSCOPE_TENANT_ID",
				Value:       serpent.StringOf(&pusher.TenantID),
			},
			serpent.Option{
				Name:        "timeout",
				Description: "Upload timeout.",
				Flag:        "timeout",
				Default:     "20s",
				Value:       serpent.DurationOf(&pusher.Timeout),
			},
			serpent.Option{
				Name:        "name",
				Description: "Application name in Pyroscope. Defaults to the profile file name.",
				Flag:        "name",
				Value:       serpent.StringOf(&name),
			},
		},
		Handler: func(i *serpent.Invocation) error {
			logger := r.Logger(i)
			path := i.Args[0]

			tree, err := cliOpts.Tree(path)
			if err != nil {
				return err
			}

			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			pb := profiling.New().Convert(tree)
			pb.TimeNanos = time.Now().Add(-time.Duration(pb.DurationNanos)).UnixNano()

			p, err := profiling.NewPusher(pusher, logger.With().Str("service", "pyroscope").Logger())
			if err != nil {
				return fmt.Errorf("new pusher: %w", err)
			}
			defer p.Stop()

			err = p.Push(name, pb)
			if err != nil {
				return fmt.Errorf("push %s: %w", name, err)
			}

			logger.Info().
				Str("name", name).
				Str("address", pusher.Address).
				Int("samples", len(pb.Sample)).
				Msg("pushed profile")
			return nil
		},
	}

	cliOpts.Attach(cmd)
	return cmd
}
