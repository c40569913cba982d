// Package httpapi exposes the coordinator's HTTP surface: health,
// prometheus metrics, JSON snapshots of the graph registry and execution
// ledger, and flow start/stop control.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/gateway"
	"github.com/atelier-run/atelier/pkg/ledger"
)

// ChannelStatus reports the transport state for the health payload. The
// Down state must be visibly distinct from "no nodes running".
type ChannelStatus interface {
	String() string
}

// FlowControl drives flow runs. The daemon passes an implementation that
// serializes calls through its dispatch loop.
type FlowControl interface {
	Start(ws domain.WorkspaceKey, flowNodeID string) error
	Stop(ws domain.WorkspaceKey, flowNodeID string) error
}

// Server wires the HTTP routes.
type Server struct {
	gw      *gateway.Gateway
	led     *ledger.Ledger
	flows   FlowControl
	channel func() ChannelStatus
	logger  *slog.Logger
}

// NewHandler builds the chi router.
func NewHandler(gw *gateway.Gateway, led *ledger.Ledger, flows FlowControl, channelState func() ChannelStatus, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	s := &Server{gw: gw, led: led, flows: flows, channel: channelState, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/v1/snapshot", s.snapshot)
	r.Get("/v1/executions", s.executions)
	r.Post("/v1/workspaces/{category}/{tab}/flows/{node}/start", s.flowStart)
	r.Post("/v1/workspaces/{category}/{tab}/flows/{node}/stop", s.flowStop)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"channel": s.channel().String(),
	})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gw.ExportAll())
}

func (s *Server) executions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.led.Records())
}

func (s *Server) flowStart(w http.ResponseWriter, r *http.Request) {
	s.driveFlow(w, r, s.flows.Start)
}

func (s *Server) flowStop(w http.ResponseWriter, r *http.Request) {
	s.driveFlow(w, r, s.flows.Stop)
}

func (s *Server) driveFlow(w http.ResponseWriter, r *http.Request, op func(domain.WorkspaceKey, string) error) {
	ws := domain.WorkspaceKey{
		Category: chi.URLParam(r, "category"),
		Tab:      chi.URLParam(r, "tab"),
	}
	nodeID := chi.URLParam(r, "node")

	if err := op(ws, nodeID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		s.writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "node": nodeID})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "err", err)
	}
}
