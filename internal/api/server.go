package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plantwatch/internal/alerts"
	"plantwatch/internal/config"
	"plantwatch/internal/engine"
	"plantwatch/internal/metrics"
	"plantwatch/internal/model"
)

type MonitorControl interface {
	Reset()
	State() engine.ThresholdState
}

type HistoryReader interface {
	Since(ts time.Time) []model.Sample
	Snapshot() []model.Sample
	Len() int
}

type Exporter interface {
	Export() (string, error)
}

type Deps struct {
	Status   *metrics.Store
	Alerts   *alerts.Store
	History  HistoryReader
	Monitor  MonitorControl
	Exporter Exporter
	Gatherer prometheus.Gatherer
}

type Server struct {
	deps    Deps
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status         string                          `json:"status"`
	Time           string                          `json:"time"`
	Version        string                          `json:"version"`
	ThresholdState engine.ThresholdState           `json:"threshold_state"`
	HistoryLen     int                             `json:"history_len"`
	Sources        map[string]metrics.SourceStatus `json:"sources"`
	AlertCounts    map[model.AlertKind]uint64      `json:"alert_counts"`
}

// Start serves the API until ctx is cancelled. It returns nil when the API is disabled.
func Start(ctx context.Context, cfg config.APIConfig, deps Deps, logger *slog.Logger, version string) *http.Server {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", cfg.Addr)
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(deps, logger, version),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func NewHandler(deps Deps, logger *slog.Logger, version string) http.Handler {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	server := &Server{deps: deps, logger: logger, version: version}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/history", server.handleHistory)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/export", server.handleExport)
	mux.HandleFunc("/admin/reset", server.handleReset)
	mux.HandleFunc("/admin/clear", server.handleClear)
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := statusResponse{
		Status:         "ok",
		Time:           time.Now().UTC().Format(time.RFC3339Nano),
		Version:        s.version,
		ThresholdState: engine.StateNormal,
	}
	if s.deps.Monitor != nil {
		resp.ThresholdState = s.deps.Monitor.State()
	}
	if s.deps.History != nil {
		resp.HistoryLen = s.deps.History.Len()
	}
	if s.deps.Status != nil {
		resp.Sources = s.deps.Status.GetAll()
	}
	if s.deps.Alerts != nil {
		resp.AlertCounts = s.deps.Alerts.Counts()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.History == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	var list []model.Sample
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.deps.History.Since(ts)
	} else {
		list = s.deps.History.Snapshot()
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < len(list) {
			list = list[len(list)-n:]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"samples": list,
		"count":   len(list),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Alerts == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	sinceStr := r.URL.Query().Get("since")
	var list []model.Alert
	if sinceStr != "" {
		if ts, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			list = s.deps.Alerts.Since(ts)
		} else {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	} else {
		list = s.deps.Alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Exporter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	path, err := s.deps.Exporter.Export()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "path": path})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Monitor == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	s.deps.Monitor.Reset()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "pending"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		if s.deps.Status != nil {
			s.deps.Status.Clear()
		}
		if s.deps.Alerts != nil {
			s.deps.Alerts.Clear()
		}
	case "alerts":
		if s.deps.Alerts != nil {
			s.deps.Alerts.Clear()
		}
	case "status":
		if s.deps.Status != nil {
			s.deps.Status.Clear()
		}
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
