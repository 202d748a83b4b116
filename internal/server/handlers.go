package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dgnsrekt/overlay-relay/internal/config"
	"github.com/dgnsrekt/overlay-relay/internal/relay"
	"github.com/dgnsrekt/overlay-relay/internal/transport/sse"
	"github.com/dgnsrekt/overlay-relay/internal/ws"
)

// maxPublishBody bounds an ingest request body.
const maxPublishBody = 64 * 1024

// Server holds the HTTP handlers for the relay.
type Server struct {
	core    *relay.Core
	hub     *ws.Hub
	reload  *ReloadManager
	limiter *ingestLimiter
	config  config.RelayConfig
	logger  *zap.Logger
}

// NewServer wires the HTTP surface to the relay core. reload may be nil
// when the tenant source cannot be reloaded.
func NewServer(core *relay.Core, hub *ws.Hub, reload *ReloadManager, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		core:    core,
		hub:     hub,
		reload:  reload,
		limiter: newIngestLimiter(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst),
		config:  cfg.Relay,
		logger:  logger,
	}
}

type publishRequest struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Tenant string          `json:"tenant,omitempty"`
}

type publishResponse struct {
	Accepted bool         `json:"accepted"`
	Report   relay.Report `json:"report"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandlePublish handles POST /api/events
func (s *Server) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	evtType, err := relay.ParseEventType(req.Type)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if !s.limiter.Allow(req.Tenant) {
		s.logger.Debug("publish rate limited", zap.String("tenant", req.Tenant))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}
	report := s.core.Publish(relay.Event{Type: evtType, Data: data}, req.Tenant)

	writeJSON(w, http.StatusAccepted, publishResponse{Accepted: true, Report: report})
}

// HandleSSE handles GET /events (generic join)
func (s *Server) HandleSSE(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, relay.JoinRequest{})
}

// HandleSSEByCode handles GET /events/code/{code}
func (s *Server) HandleSSEByCode(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, relay.JoinRequest{Code: chi.URLParam(r, "code")})
}

// HandleSSEByTenant handles GET /events/tenant/{tenant}
func (s *Server) HandleSSEByTenant(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, relay.JoinRequest{Tenant: chi.URLParam(r, "tenant")})
}

// serveSSE joins and then streams until the client goes away. A rejected
// join still gets its error frame before the response ends.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, req relay.JoinRequest) {
	sub := sse.NewSubscriber(s.config.SSEBufferSize, s.logger)

	session, err := s.core.Join(r.Context(), sub, req)
	if err != nil {
		s.logger.Debug("sse join failed",
			zap.String("subscriberID", sub.ID()),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		sub.Close()
	} else {
		defer session.Close()
		s.logger.Info("sse client connected",
			zap.String("subscriberID", sub.ID()),
			zap.String("tenant", session.Tenant()),
			zap.String("remote_addr", r.RemoteAddr),
		)
	}

	if err := sub.Serve(r.Context(), w, s.config.PingPeriod); err != nil {
		s.logger.Debug("sse stream ended", zap.String("subscriberID", sub.ID()), zap.Error(err))
	}
}

// HandleWS handles GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWS(w, r)
}

// HandleState handles GET /api/tenants/{tenant}/state
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.StateSnapshot(chi.URLParam(r, "tenant")))
}

// HandleLogs handles GET /api/tenants/{tenant}/logs?limit=N
func (s *Server) HandleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.core.Logs(chi.URLParam(r, "tenant"), limit))
}

// HandleDeleteTenant handles DELETE /api/tenants/{tenant}
func (s *Server) HandleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	s.core.DeleteTenant(tenant)
	s.limiter.Forget(tenant)
	w.WriteHeader(http.StatusNoContent)
}

// HandleReload handles POST /api/tenants/reload
func (s *Server) HandleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "tenant source does not support reload"})
		return
	}

	result, err := s.reload.Reload(r.Context())
	if errors.Is(err, ErrReloadInProgress) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.logger.Error("tenant reload failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type healthResponse struct {
	Status    string      `json:"status"`
	Relay     relay.Stats `json:"relay"`
	Sockets   int         `json:"sockets"`
	Reloading bool        `json:"reloading"`
	Time      time.Time   `json:"time"`
}

// HandleHealth handles GET /health
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Relay:   s.core.Stats(),
		Sockets: s.hub.Count(),
		Time:    time.Now().UTC(),
	}
	if s.reload != nil {
		resp.Reloading = s.reload.IsReloading()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
