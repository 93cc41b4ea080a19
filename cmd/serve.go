package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/Emyrk/pstatviz/viz"
	"gopkg.in/yaml.v3"

	"github.com/coder/serpent"
)

type ServeConfig struct {
	Server ServeFileOptions `yaml:"server"`
}

// ServeFileOptions mirrors viz.ServerOptions. MaxNodes is a pointer since 0
// means unlimited and must not read as unset.
type ServeFileOptions struct {
	Name               string `yaml:"name"`
	Address            string `yaml:"address"`
	ProfileDir         string `yaml:"profile_dir"`
	MaxNodes           *int   `yaml:"max_nodes"`
	DefaultSort        string `yaml:"default_sort"`
	MetricsMaxRows     int    `yaml:"metrics_max_rows"`
	MetricsMaxProfiles int    `yaml:"metrics_max_profiles"`
}

func (r *Root) serveCmd() *serpent.Command {
	var (
		configPath string
		flags      viz.ServerOptions
		maxNodes   int64
	)
	return &serpent.Command{
		Use:   "serve",
		Short: "Serve the profiles in a directory over HTTP.",
		Options: serpent.OptionSet{
			serpent.Option{
				Name:          "config",
				Description:   "YAML config file to use. Values in the file win over flags.",
				Required:      false,
				Flag:          "config",
				FlagShorthand: "c",
				Env:           "PSTATVIZ_CONFIG",
				Value:         serpent.StringOf(&configPath),
			},
			serpent.Option{
				Name:        "address",
				Description: "Address to listen on.",
				Flag:        "address",
				Env:         "PSTATVIZ_ADDRESS",
				YAML:        "address",
				Default:     ":8080",
				Value:       serpent.StringOf(&flags.Address),
				Group:       GroupServer,
			},
			serpent.Option{
				Name:        "dir",
				Description: "Directory holding the profiles to serve.",
				Flag:        "dir",
				Env:         "PSTATVIZ_DIR",
				YAML:        "profile_dir",
				Default:     ".",
				Value:       serpent.StringOf(&flags.ProfileDir),
				Group:       GroupServer,
			},
			serpent.Option{
				Name:        "max-nodes",
				Description: "Largest call tree served. 0 is unlimited.",
				Flag:        "max-nodes",
				Env:         "PSTATVIZ_MAX_NODES",
				YAML:        "max_nodes",
				Default:     "100000",
				Value:       serpent.Int64Of(&maxNodes),
				Group:       GroupServer,
			},
		},
		Handler: func(i *serpent.Invocation) error {
			logger := r.Logger(i)
			ctx := i.Context()

			flags.MaxNodes = int(maxNodes)
			opts, err := serveOptions(configPath, flags)
			if err != nil {
				logger.Error().Err(err).Str("config", configPath).Msg("load config")
				return err
			}

			srv, err := viz.NewServer(opts, logger.With().Str("service", "server").Logger())
			if err != nil {
				logger.Error().Err(err).Msg("new server")
				return fmt.Errorf("new server: %w", err)
			}

			return srv.ListenAndServe(ctx)
		},
	}
}

// serveOptions merges the config file over the flag values. Fields the file
// leaves unset keep their flag value.
func serveOptions(configPath string, flags viz.ServerOptions) (viz.ServerOptions, error) {
	if configPath == "" {
		return flags, nil
	}

	yamlData, err := os.ReadFile(configPath)
	if err != nil {
		return flags, fmt.Errorf("read config: %w", err)
	}

	var config ServeConfig
	err = yaml.Unmarshal(yamlData, &config)
	if err != nil {
		return flags, fmt.Errorf("unmarshal config: %w", err)
	}

	file := config.Server
	opts := viz.ServerOptions{
		Name:               file.Name,
		Address:            file.Address,
		ProfileDir:         file.ProfileDir,
		MaxNodes:           flags.MaxNodes,
		DefaultSort:        file.DefaultSort,
		MetricsMaxRows:     file.MetricsMaxRows,
		MetricsMaxProfiles: file.MetricsMaxProfiles,
	}
	if file.MaxNodes != nil {
		opts.MaxNodes = *file.MaxNodes
	}
	if opts.Address == "" {
		opts.Address = flags.Address
	}
	if opts.ProfileDir == "" {
		opts.ProfileDir = flags.ProfileDir
	}
	if opts.Name == "" {
		opts.Name = flags.Name
	}
	if opts.DefaultSort == "" {
		opts.DefaultSort = flags.DefaultSort
	}
	if opts.MetricsMaxRows == 0 {
		opts.MetricsMaxRows = flags.MetricsMaxRows
	}
	if opts.MetricsMaxProfiles == 0 {
		opts.MetricsMaxProfiles = flags.MetricsMaxProfiles
	}
	if opts.MaxNodes < 0 {
		return opts, errors.New("max_nodes must not be negative")
	}
	return opts, nil
}
