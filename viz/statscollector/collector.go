package statscollector

import (
	"sync"
	"time"

	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var _ prometheus.Collector = (*Collector)(nil)

// Collector exposes the flat stats table of recently viewed profiles as
// prometheus gauges.
type Collector struct {
	logger zerolog.Logger
	// maxRows bounds label cardinality per profile. Zero keeps every row.
	maxRows int
	// maxProfiles bounds how many profiles are exported at once. Zero keeps
	// every profile.
	maxProfiles int

	selfDesc  *prometheus.Desc
	cumDesc   *prometheus.Desc
	callsDesc *prometheus.Desc

	lastUpdated prometheus.Gauge

	mu       sync.RWMutex
	profiles map[string][]callgraph.TableRow
	// recent holds profile names, least recently set first.
	recent []string
}

// New
// labels are the label constants on all metrics.
func New(logger zerolog.Logger, namespace string, labels prometheus.Labels, maxRows, maxProfiles int) *Collector {
	varLabels := []string{"profile", "function"}
	return &Collector{
		logger:      logger,
		maxRows:     maxRows,
		maxProfiles: maxProfiles,
		selfDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "function", "self_seconds"),
			"Time spent in the function's own code.",
			varLabels, labels,
		),
		cumDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "function", "cumulative_seconds"),
			"Time spent in the function and everything it called.",
			varLabels, labels,
		),
		callsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "function", "calls"),
			"Total number of calls, recursive calls included.",
			varLabels, labels,
		),
		lastUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "collector",
			Name:        "last_updated_unix_s",
			Help:        "Timestamp in unix seconds of the last profile update.",
			ConstLabels: labels,
		}),
		profiles: make(map[string][]callgraph.TableRow),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.selfDesc
	descs <- c.cumDesc
	descs <- c.callsDesc
	c.lastUpdated.Describe(descs)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, rows := range c.profiles {
		for _, row := range rows {
			c.constMetric(ch, c.selfDesc, row.SelfTime, name, row.Name)
			c.constMetric(ch, c.cumDesc, row.CumulativeTime, name, row.Name)
			c.constMetric(ch, c.callsDesc, float64(row.TotalCalls), name, row.Name)
		}
	}

	ch <- c.lastUpdated
}

func (c *Collector) constMetric(ch chan<- prometheus.Metric, desc *prometheus.Desc, value float64, labelValues ...string) {
	pm, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, value, labelValues...)
	if err != nil {
		c.logger.Warn().
			Strs("labels", labelValues).
			Err(err).
			Msg("failed to create metric")
		return
	}
	ch <- pm
}

// SetProfile replaces the rows exported for a profile. Rows are expected in
// table order, only the first maxRows are kept. Once more than maxProfiles
// profiles are exported, the least recently set one is dropped. It returns
// how many rows are exported.
func (c *Collector) SetProfile(name string, rows []callgraph.TableRow) int {
	if c.maxRows > 0 && len(rows) > c.maxRows {
		rows = rows[:c.maxRows]
	}
	kept := append([]callgraph.TableRow(nil), rows...)

	c.mu.Lock()
	c.profiles[name] = kept
	c.remove(name)
	c.recent = append(c.recent, name)
	var evicted []string
	for c.maxProfiles > 0 && len(c.recent) > c.maxProfiles {
		evicted = append(evicted, c.recent[0])
		delete(c.profiles, c.recent[0])
		c.recent = c.recent[1:]
	}
	c.mu.Unlock()

	if len(evicted) > 0 {
		c.logger.Debug().Strs("profiles", evicted).Msg("stopped exporting profiles")
	}
	c.lastUpdated.Set(float64(time.Now().Unix()))
	return len(kept)
}

// Forget stops exporting a profile.
func (c *Collector) Forget(name string) {
	c.mu.Lock()
	delete(c.profiles, name)
	c.remove(name)
	c.mu.Unlock()
}

// Profiles lists the exported profiles, least recently set first.
func (c *Collector) Profiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.recent...)
}

// remove drops name from the recency list. c.mu must be held.
func (c *Collector) remove(name string) {
	for i, n := range c.recent {
		if n == name {
			c.recent = append(c.recent[:i], c.recent[i+1:]...)
			return
		}
	}
}
