package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/cloud-pocket-etl/internal/chart"
	"github.com/couchcryptid/cloud-pocket-etl/internal/model"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReportSource returns the report of the last completed run, or nil.
type ReportSource interface {
	LastReport() *model.Report
}

// Server exposes health, readiness, metrics, and last-run report endpoints.
type Server struct {
	httpServer *http.Server
	reports    ReportSource
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, /report,
// and /charts/{name} routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, reports ReportSource, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		reports: reports,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /report", s.handleReport)
	mux.HandleFunc("GET /charts/{name}", s.handleChart)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type reportResponse struct {
	RunID             string             `json:"run_id,omitempty"`
	MSE               float64            `json:"mse"`
	Hyperparameters   map[string]string  `json:"hyperparameters"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Charts            []string           `json:"charts"`
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	r := s.reports.LastReport()
	if r == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed run"})
		return
	}
	resp := reportResponse{
		RunID:             r.RunID,
		MSE:               r.MSE,
		Hyperparameters:   map[string]string{},
		FeatureImportance: map[string]float64{},
		Charts:            []string{r.FeatureImportance.Name, r.Correlation.Name},
	}
	for _, p := range r.Hyperparameters.Params() {
		resp.Hyperparameters[p.Key] = p.Value
	}
	for i, label := range r.FeatureImportance.Labels {
		resp.FeatureImportance[label] = r.FeatureImportance.Values[i]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChart(w http.ResponseWriter, req *http.Request) {
	r := s.reports.LastReport()
	if r == nil {
		http.NotFound(w, req)
		return
	}
	var c *chart.Chart
	switch req.PathValue("name") {
	case r.FeatureImportance.Name:
		c = r.FeatureImportance
	case r.Correlation.Name:
		c = r.Correlation
	default:
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(c.PNG); err != nil {
		s.logger.Warn("write chart response failed", "chart", c.Name, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
