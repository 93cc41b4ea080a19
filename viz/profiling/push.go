package profiling

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/pprof/profile"
	"github.com/grafana/pyroscope-go/upstream"
	"github.com/grafana/pyroscope-go/upstream/remote"
	"github.com/rs/zerolog"
)

var _ remote.Logger = (*zerologWrapper)(nil)

type zerologWrapper struct {
	logger zerolog.Logger
}

func (z zerologWrapper) Infof(f string, args ...interface{})  { z.logger.Info().Msgf(f, args...) }
func (z zerologWrapper) Debugf(f string, args ...interface{}) { z.logger.Debug().Msgf(f, args...) }
func (z zerologWrapper) Errorf(f string, args ...interface{}) { z.logger.Error().Msgf(f, args...) }

type PusherOptions struct {
	Address   string        `yaml:"address"`
	AuthToken string        `yaml:"auth_token"`
	TenantID  string        `yaml:"tenant_id"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PyroscopePusher uploads converted profiles to a Pyroscope server.
type PyroscopePusher struct {
	Address string
	Remote  *remote.Remote
	Logger  zerolog.Logger
}

func NewPusher(opts PusherOptions, logger zerolog.Logger) (*PyroscopePusher, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("missing pyroscope address")
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 20
	}

	rmt, err := remote.NewRemote(remote.Config{
		AuthToken: opts.AuthToken,
		TenantID:  opts.TenantID,
		Threads:   1,
		Address:   opts.Address,
		Timeout:   opts.Timeout,
		Logger:    &zerologWrapper{logger: logger},
	})
	if err != nil {
		return nil, fmt.Errorf("new remote: %w", err)
	}

	go rmt.Start()
	return &PyroscopePusher{
		Address: opts.Address,
		Remote:  rmt,
		Logger:  logger,
	}, nil
}

// Stop flushes queued uploads.
func (p *PyroscopePusher) Stop() {
	p.Remote.Stop()
}

func (p *PyroscopePusher) Push(name string, pb *profile.Profile) error {
	var buf bytes.Buffer
	err := pb.Write(&buf)
	if err != nil {
		return fmt.Errorf("write proto: %w", err)
	}

	start := time.Unix(0, pb.TimeNanos)
	end := start.Add(time.Duration(pb.DurationNanos))

	p.Logger.Debug().
		Str("name", name).
		Int("samples", len(pb.Sample)).
		Int("bytes", buf.Len()).
		Msg("upload profile")

	p.Remote.Upload(&upstream.UploadJob{
		Name:            name,
		StartTime:       start,
		EndTime:         end,
		Units:           "cpu",
		AggregationType: "sum",
		Format:          upstream.FormatPprof,
		Profile:         buf.Bytes(),
		SampleTypeConfig: map[string]*upstream.SampleType{
			"cpu": {
				Units:       "nanoseconds",
				Aggregation: "sum",
				DisplayName: "cpu",
				// Deterministic profile, every call is present.
				Sampled:    false,
				Cumulative: false,
			},
			"calls": {
				Units:       "count",
				Aggregation: "sum",
				DisplayName: "Calls",
				Sampled:     false,
				Cumulative:  false,
			},
		},
	})

	return nil
}
