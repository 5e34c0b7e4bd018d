// Package api serves a read-only JSON view of the governance database and
// the Prometheus metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/assetgov/internal/metrics"
	"github.com/roach88/assetgov/internal/model"
	"github.com/roach88/assetgov/internal/registry"
	"github.com/roach88/assetgov/internal/report"
	"github.com/roach88/assetgov/internal/store"
)

// DefaultLimit caps history endpoints when no limit is given.
const DefaultLimit = 50

// Server holds the services behind the HTTP API.
type Server struct {
	store    *store.Store
	registry *registry.Registry
	reporter *report.Reporter
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// New creates a Server. rec may be nil, in which case /metrics is empty.
func New(st *store.Store, reg *registry.Registry, rep *report.Reporter, rec *metrics.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: st, registry: reg, reporter: rep, metrics: rec, logger: logger}
}

// Router returns the API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/assets", s.listAssets)
		r.Route("/assets/{key}", func(r chi.Router) {
			r.Get("/", s.getAsset)
			r.Get("/executions", s.listExecutions)
			r.Get("/lineage", s.getLineage)
			r.Get("/health", s.getHealth)
		})
		r.Get("/alerts", s.listAlerts)
		r.Route("/report", func(r chi.Router) {
			r.Get("/inventory", s.reportInventory)
			r.Get("/health", s.reportHealth)
			r.Get("/ownership", s.reportOwnership)
			r.Get("/alerts", s.reportAlerts)
		})
	})
	return r
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully within timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http api shutdown: %w", err)
	}
	s.logger.Info("http api stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	assets, err := s.registry.GetAll(r.Context(), all)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeItems(w, assets)
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	rec, found, err := s.registry.Get(r.Context(), key)
	if errors.Is(err, model.ErrInvalidAssetKey) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Sprintf("asset %q not found", key))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	execs, err := s.store.Executions(r.Context(), chi.URLParam(r, "key"), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeItems(w, execs)
}

type lineageResponse struct {
	AssetKey   string              `json:"asset_key"`
	Upstream   []model.AssetRecord `json:"upstream"`
	Downstream []model.AssetRecord `json:"downstream"`
	Edges      []model.LineageEdge `json:"edges"`
}

func (s *Server) getLineage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	resp := lineageResponse{AssetKey: key}
	var err error
	if resp.Upstream, err = s.store.Upstream(ctx, key); err != nil {
		s.internalError(w, r, err)
		return
	}
	if resp.Downstream, err = s.store.Downstream(ctx, key); err != nil {
		s.internalError(w, r, err)
		return
	}
	if resp.Edges, err = s.store.Edges(ctx, key); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Summary *model.HealthSummary `json:"summary"`
	Checks  []model.CheckResult  `json:"checks"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "key")

	var resp healthResponse
	sum, err := s.store.HealthSummary(ctx, key)
	switch {
	case err == nil:
		resp.Summary = &sum
	case !errors.Is(err, store.ErrNotFound):
		s.internalError(w, r, err)
		return
	}
	if resp.Checks, err = s.store.HealthChecks(ctx, key, DefaultLimit); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ActiveAlerts(r.Context(), r.URL.Query().Get("asset"))
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeItems(w, alerts)
}

func (s *Server) reportInventory(w http.ResponseWriter, r *http.Request) {
	writeItems(w, s.reporter.Inventory(r.Context()))
}

func (s *Server) reportHealth(w http.ResponseWriter, r *http.Request) {
	writeItems(w, s.reporter.Health(r.Context()))
}

func (s *Server) reportOwnership(w http.ResponseWriter, r *http.Request) {
	writeItems(w, s.reporter.Ownership(r.Context()))
}

func (s *Server) reportAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reporter.Alerts(r.Context()))
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("api request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
		return 0, false
	}
	return n, true
}

func writeItems[T any](w http.ResponseWriter, items []T) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"size":  len(items),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
