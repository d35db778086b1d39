// Package gateway exposes the coordinator's HTTP and WebSocket surface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/overseer-dev/overseer/internal/coordinator"
	"github.com/overseer-dev/overseer/internal/gateway/ws"
)

// Server is the coordinator gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	coord      *coordinator.Coordinator
	host       string
	port       int
}

// NewServer creates a new gateway server around a coordinator.
func NewServer(coord *coordinator.Coordinator, host string, port int) *Server {
	hub := ws.NewHub(coord.Bus())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{
		hub:   hub,
		coord: coord,
		host:  host,
		port:  port,
	}

	r.Get("/health", s.handleHealth)
	r.Post("/task", s.handleSubmitTask)
	r.Get("/status", s.handleStatus)
	r.Get("/approvals", s.handleApprovals)
	r.Post("/approve/{request_id}", s.handleApprove)
	r.Post("/reject/{request_id}", s.handleReject)
	r.Post("/approve-all", s.handleApproveAll)
	r.Post("/reject-all", s.handleRejectAll)
	r.Get("/history", s.handleHistory)
	r.Post("/emergency-stop", s.handleEmergencyStop)
	r.Post("/reset-emergency", s.handleResetEmergency)
	r.Get("/ws/execute/{plan_id}", s.handleExecuteWS)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}

	return s
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("coordinator gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task string `json:"task"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Task == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "body must be {\"task\": \"...\"}",
		})
		return
	}

	planID, err := s.coord.Submit(body.Task)
	switch {
	case errors.Is(err, coordinator.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, coordinator.ErrStopped):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "plan_id": planID})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.coord.Model.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":           snap.Running,
		"security_mode":     snap.SecurityMode,
		"current_plan_id":   snap.CurrentPlanID,
		"pending_approvals": snap.PendingApprovals,
		"emergency_stopped": snap.EmergencyStopped,
	})
}

// approvalParamKeys are the action params surfaced inline on the wire.
var approvalParamKeys = []string{"x", "y", "text", "keys"}

func (s *Server) handleApprovals(w http.ResponseWriter, r *http.Request) {
	pending := s.coord.Queue.Pending()

	out := make([]map[string]any, 0, len(pending))
	for _, req := range pending {
		action := map[string]any{
			"action_type": req.Action.Type,
			"description": req.Action.Description,
			"risk_level":  string(req.Risk),
		}
		for _, key := range approvalParamKeys {
			if v, ok := req.Action.Params[key]; ok {
				action[key] = v
			}
		}
		entry := map[string]any{
			"id":      req.ID,
			"plan_id": req.TaskID,
			"action":  action,
		}
		if req.ExpiresAt != nil {
			entry["expires_at"] = req.ExpiresAt.Format(time.RFC3339Nano)
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{"pending": out})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, chi.URLParam(r, "request_id"), s.coord.Queue.Approve)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, chi.URLParam(r, "request_id"), s.coord.Queue.Reject)
}

func (s *Server) resolve(w http.ResponseWriter, requestID string, fn func(string) error) {
	err := fn(requestID)
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "approval request not found or already resolved")
	case err != nil:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{})
	}
}

func (s *Server) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"resolved": s.coord.Queue.ApproveAll()})
}

func (s *Server) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"resolved": s.coord.Queue.RejectAll()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	recs, err := s.coord.History().Recent(r.Context(), limit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		entry := map[string]any{
			"plan_id":     rec.TaskID,
			"action_type": rec.ActionType,
			"status":      string(rec.Status),
			"timestamp":   rec.Timestamp.Format(time.RFC3339Nano),
		}
		if rec.Description != "" {
			entry["description"] = rec.Description
		}
		if rec.Duration > 0 {
			entry["duration"] = rec.Duration.Seconds()
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.coord.EmergencyStop()
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleResetEmergency(w http.ResponseWriter, r *http.Request) {
	s.coord.ResetEmergency()
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleExecuteWS(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan_id")
	if planID == "" {
		writeDetail(w, http.StatusBadRequest, "plan_id required")
		return
	}
	s.hub.ServeWS(w, r, planID)
}
