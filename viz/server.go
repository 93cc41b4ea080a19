package viz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Emyrk/pstatviz/viz/callgraph"
	"github.com/Emyrk/pstatviz/viz/listing"
	"github.com/Emyrk/pstatviz/viz/statscollector"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var _ prometheus.Collector = (*Server)(nil)

var errForbidden = errors.New("path outside of profile directory")

type ServerOptions struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	ProfileDir  string `yaml:"profile_dir"`
	MaxNodes    int    `yaml:"max_nodes"`
	DefaultSort string `yaml:"default_sort"`
	// MetricsMaxRows bounds how many functions per profile are exported as
	// metrics.
	MetricsMaxRows int `yaml:"metrics_max_rows"`
	// MetricsMaxProfiles bounds how many profiles are exported as metrics at
	// once. The least recently viewed profile is dropped first.
	MetricsMaxProfiles int `yaml:"metrics_max_profiles"`
}

// Server serves call trees, stats tables and directory listings for the
// profiles under a single directory.
type Server struct {
	Name    string
	Address string

	root        string
	maxNodes    int
	defaultSort callgraph.SortKey
	load        listing.Loader

	logger    zerolog.Logger
	reg       *prometheus.Registry
	collector *statscollector.Collector
	requests  *prometheus.CounterVec
}

func NewServer(opts ServerOptions, logger zerolog.Logger) (*Server, error) {
	if opts.ProfileDir == "" {
		opts.ProfileDir = "."
	}
	root, err := filepath.Abs(opts.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("abs profile dir: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat profile dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profile dir %q is not a directory", root)
	}

	if opts.Address == "" {
		opts.Address = ":8080"
	}
	if opts.Name == "" {
		opts.Name = "pstatviz"
	}
	if opts.MaxNodes < 0 {
		return nil, fmt.Errorf("max nodes must not be negative")
	}
	if opts.MetricsMaxRows == 0 {
		opts.MetricsMaxRows = 50
	}
	if opts.MetricsMaxProfiles == 0 {
		opts.MetricsMaxProfiles = 20
	}

	sortKey, err := callgraph.ParseSortKey(opts.DefaultSort)
	if err != nil {
		return nil, fmt.Errorf("default sort: %w", err)
	}

	constLabels := prometheus.Labels{"server": opts.Name}
	s := &Server{
		Name:        opts.Name,
		Address:     opts.Address,
		root:        root,
		maxNodes:    opts.MaxNodes,
		defaultSort: sortKey,
		load:        LoadProfile,
		logger: logger.With().
			Str("server", opts.Name).
			Str("profile_dir", root).
			Logger(),
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "pstatviz",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Requests served, by kind and status code.",
			ConstLabels: constLabels,
		}, []string{"kind", "code"}),
	}
	s.collector = statscollector.New(s.logger.With().Str("service", "collector").Logger(), "pstatviz", constLabels, opts.MetricsMaxRows, opts.MetricsMaxProfiles)

	s.reg.MustRegister(s.collector)
	s.reg.MustRegister(s.requests)
	return s, nil
}

func (s *Server) Describe(descs chan<- *prometheus.Desc) {
	s.reg.Describe(descs)
}

func (s *Server) Collect(metrics chan<- prometheus.Metric) {
	s.reg.Collect(metrics)
}

// Handler routes the profile views and the metrics endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /snakeviz/{path...}", s.serveProfile)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{
		Registry: s.reg,
	}))
	return mux
}

// ListenAndServe blocks until ctx is canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second * 10,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("address", s.Address).Msg("serving profiles")
	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) serveProfile(rw http.ResponseWriter, r *http.Request) {
	logger := s.logger.With().
		Str("request_id", uuid.NewString()).
		Str("path", r.URL.Path).
		Logger()

	full, rel, err := s.resolve(r.PathValue("path"))
	if err != nil {
		s.writeError(rw, logger, "unknown", err)
		return
	}

	info, err := os.Stat(full)
	if err != nil {
		s.collector.Forget(rel)
		s.writeError(rw, logger, "unknown", err)
		return
	}

	if info.IsDir() {
		s.serveListing(rw, logger, full, rel)
		return
	}
	s.serveVisualization(rw, r, logger, full, rel)
}

func (s *Server) serveListing(rw http.ResponseWriter, logger zerolog.Logger, full, rel string) {
	lister := listing.Lister{
		Load:   s.load,
		Href:   s.href,
		Logger: logger,
	}
	entries, err := lister.List(full)
	if err != nil {
		s.writeError(rw, logger, "listing", err)
		return
	}
	// No way up from the profile directory itself.
	if rel == "." {
		entries = entries[1:]
	}

	s.writeJSON(rw, logger, "listing", http.StatusOK, map[string]any{
		"dir_name": rel,
		"entries":  entries,
	})
}

func (s *Server) serveVisualization(rw http.ResponseWriter, r *http.Request, logger zerolog.Logger, full, rel string) {
	opts := callgraph.Options{
		Root:     r.URL.Query().Get("root"),
		Sort:     s.defaultSort,
		MaxNodes: s.maxNodes,
	}
	if sortKey := r.URL.Query().Get("sort"); sortKey != "" {
		opts.Sort = callgraph.SortKey(sortKey)
	}
	if maxNodes := r.URL.Query().Get("max_nodes"); maxNodes != "" {
		n, err := strconv.Atoi(maxNodes)
		if err != nil || n < 0 {
			s.writeJSON(rw, logger, "profile", http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid max_nodes %q", maxNodes),
			})
			return
		}
		// Requests may tighten the configured limit, never lift it.
		if s.maxNodes == 0 || (n > 0 && n < s.maxNodes) {
			opts.MaxNodes = n
		}
	}

	records, err := s.load(full)
	if err != nil {
		s.collector.Forget(rel)
		s.writeError(rw, logger, "profile", err)
		return
	}

	v, err := callgraph.Visualize(records, opts)
	if err != nil {
		// Only a broken profile loses its metrics, not a bad query on a good one.
		if statusCode(err) == http.StatusUnprocessableEntity {
			s.collector.Forget(rel)
		}
		s.writeError(rw, logger, "profile", err)
		return
	}

	exported := s.collector.SetProfile(rel, v.Table)
	logger.Info().
		Str("root", v.Root).
		Int("functions", len(v.Table)).
		Int("exported_rows", exported).
		Msg("rendered profile")

	s.writeJSON(rw, logger, "profile", http.StatusOK, map[string]any{
		"profile_name":  rel,
		"visualization": v,
	})
}

// resolve maps a request path onto the profile directory. Both the absolute
// path and the path relative to the profile directory are returned.
func (s *Server) resolve(p string) (string, string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(p))

	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%q: %w", p, errForbidden)
	}
	return full, rel, nil
}

func (s *Server) href(full string) string {
	rel, err := filepath.Rel(s.root, full)
	if err != nil {
		return ""
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return path.Join("/snakeviz", strings.Join(segments, "/"))
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, callgraph.ErrUnknownFunction), errors.Is(err, callgraph.ErrUnknownSortKey):
		return http.StatusBadRequest
	case errors.Is(err, callgraph.ErrTreeTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, callgraph.ErrMalformedRecord),
		errors.Is(err, callgraph.ErrDanglingCallerReference),
		errors.Is(err, callgraph.ErrEmptyProfile),
		errors.Is(err, ErrUnreadableProfile):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(rw http.ResponseWriter, logger zerolog.Logger, kind string, err error) {
	code := statusCode(err)
	event := logger.Warn()
	if code >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Int("code", code).Msg("request failed")

	s.writeJSON(rw, logger, kind, code, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(rw http.ResponseWriter, logger zerolog.Logger, kind string, code int, body any) {
	s.requests.WithLabelValues(kind, strconv.Itoa(code)).Inc()

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	err := json.NewEncoder(rw).Encode(body)
	if err != nil {
		logger.Error().Err(err).Msg("write response")
	}
}
