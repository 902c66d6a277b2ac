package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"converge/internal/controller"
	"converge/internal/dispatch"
	"converge/internal/metrics"
	"converge/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// StatusReport is the body served on /statusz.
type StatusReport struct {
	Running     bool                             `json:"running"`
	Controllers []ControllerReport               `json:"controllers"`
	Summary     metrics.ReconcilerMetricsSummary `json:"summary"`
}

// ControllerReport lists the dispatch state of one controller's primaries.
type ControllerReport struct {
	Name      string            `json:"name"`
	Resources []dispatch.Status `json:"resources"`
}

// newMetricsHandler serves the controller-runtime registry, which also holds
// the engine's collectors.
func newMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
	return mux
}

// newHealthHandler serves /healthz, /readyz and /statusz for mgr.
func newHealthHandler(mgr *controller.Manager) http.Handler {
	mux := http.NewServeMux()
	live := &healthz.Handler{Checks: map[string]healthz.Checker{
		"ping":    healthz.Ping,
		"sources": mgr.Check,
	}}
	ready := &healthz.Handler{Checks: map[string]healthz.Checker{
		"controllers": mgr.Ready,
	}}
	mux.Handle("/healthz", http.StripPrefix("/healthz", live))
	mux.Handle("/healthz/", http.StripPrefix("/healthz", live))
	mux.Handle("/readyz", http.StripPrefix("/readyz", ready))
	mux.Handle("/readyz/", http.StripPrefix("/readyz", ready))
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(buildStatusReport(mgr)); err != nil {
			logging.Error("HTTP", err, "Failed to encode status report")
		}
	})
	return mux
}

func buildStatusReport(mgr *controller.Manager) StatusReport {
	statuses := mgr.Statuses()
	report := StatusReport{
		Running:     mgr.Running(),
		Controllers: make([]ControllerReport, 0, len(statuses)),
		Summary:     mgr.Summary(),
	}
	for _, name := range mgr.Controllers() {
		resources := statuses[name]
		sort.Slice(resources, func(i, j int) bool {
			return resources[i].ID.String() < resources[j].ID.String()
		})
		if resources == nil {
			resources = []dispatch.Status{}
		}
		report.Controllers = append(report.Controllers, ControllerReport{Name: name, Resources: resources})
	}
	return report
}

// httpServer is one listener and the handler served on it.
type httpServer struct {
	name   string
	server *http.Server
	ln     net.Listener
}

func listen(name, addr string, handler http.Handler) (*httpServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for %s on %s: %w", name, addr, err)
	}
	return &httpServer{
		name:   name,
		server: &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		ln:     ln,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *httpServer) Addr() string {
	return s.ln.Addr().String()
}

// serve runs until the server is shut down.
func (s *httpServer) serve() {
	logging.Info("HTTP", "Serving %s on %s", s.name, s.Addr())
	if err := s.server.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Error("HTTP", err, "%s server stopped", s.name)
	}
}

func (s *httpServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logging.Warn("HTTP", "Failed to shut down %s server: %v", s.name, err)
	}
}
