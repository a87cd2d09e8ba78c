// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mferraretto/chatshopee22/internal/decide"
	"github.com/mferraretto/chatshopee22/internal/engine"
	"github.com/mferraretto/chatshopee22/internal/types"
)

// Controller is the slice of the engine the HTTP surface exposes.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	RunOnce(ctx context.Context) error
	Status() engine.Status
	Snapshot(ctx context.Context) types.Snapshot
	TakeControl()
	ReleaseControl()
	Skip() error
	CloseModal(ctx context.Context) error
	SubmitTwoFactorCode(ctx context.Context, code string) error
	SendManualReply(ctx context.Context, text string) error
}

// RuleEditor is the mutable rule table behind /api/rules.
type RuleEditor interface {
	List() ([]decide.Rule, error)
	Replace(rules []decide.Rule) error
	Add(rule decide.Rule) error
	Remove(id string) error
	SetActive(id string, active bool) error
}

// Server is the local control surface: engine lifecycle, operator takeover,
// the observational snapshot, and rule editing. It binds to loopback and
// carries no auth of its own.
type Server struct {
	eng   Controller
	rules RuleEditor
	log   *slog.Logger
	mux   *http.ServeMux
}

func New(eng Controller, rules RuleEditor, log *slog.Logger) *Server {
	s := &Server{eng: eng, rules: rules, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("POST /api/start", s.handleStart)
	s.mux.HandleFunc("POST /api/stop", s.handleStop)
	s.mux.HandleFunc("POST /api/run-once", s.handleRunOnce)
	s.mux.HandleFunc("POST /api/control/take", s.handleTake)
	s.mux.HandleFunc("POST /api/control/release", s.handleRelease)
	s.mux.HandleFunc("POST /api/reply", s.handleReply)
	s.mux.HandleFunc("POST /api/skip", s.handleSkip)
	s.mux.HandleFunc("POST /api/close-modal", s.handleCloseModal)
	s.mux.HandleFunc("POST /api/2fa", s.handleTwoFactor)
	s.mux.HandleFunc("GET /api/rules", s.handleRulesList)
	s.mux.HandleFunc("POST /api/rules", s.handleRulesAdd)
	s.mux.HandleFunc("PUT /api/rules", s.handleRulesReplace)
	s.mux.HandleFunc("DELETE /api/rules/", s.handleRulesRemove)
	s.mux.HandleFunc("POST /api/rules/", s.handleRulesActive)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.eng.Status())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.eng.Snapshot(r.Context()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// The engine outlives the request, so it must not inherit its context.
	if err := s.eng.Start(context.Background()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.eng.Stop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.RunOnce(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "completed"})
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	s.eng.TakeControl()
	writeJSON(w, map[string]string{"status": "paused"})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.eng.ReleaseControl()
	writeJSON(w, map[string]string{"status": "resumed"})
}

type replyRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err := s.eng.SendManualReply(r.Context(), req.Text); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "sent"})
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Skip(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "skipped"})
}

func (s *Server) handleCloseModal(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.CloseModal(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "closed"})
}

type twoFactorRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req twoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if err := s.eng.SubmitTwoFactorCode(r.Context(), req.Code); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "verified"})
}

func (s *Server) handleRulesList(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.List()
	if err != nil {
		s.log.Error("list rules failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, rules)
}

func (s *Server) handleRulesAdd(w http.ResponseWriter, r *http.Request) {
	var rule decide.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if rule.ID == "" {
		writeError(w, http.StatusBadRequest, "rule id is required")
		return
	}
	if err := s.rules.Add(rule); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "added", "id": rule.ID})
}

func (s *Server) handleRulesReplace(w http.ResponseWriter, r *http.Request) {
	var rules []decide.Rule
	if err := json.NewDecoder(r.Body).Decode(&rules); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.rules.Replace(rules); err != nil {
		s.log.Error("replace rules failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, map[string]any{"status": "replaced", "count": len(rules)})
}

func (s *Server) handleRulesRemove(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.rules.Remove(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "removed", "id": id})
}

type activeRequest struct {
	Active bool `json:"active"`
}

// handleRulesActive toggles a rule: POST /api/rules/{id}/active.
func (s *Server) handleRulesActive(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "active" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req activeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.rules.SetActive(parts[0], req.Active); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]any{"status": "updated", "id": parts[0], "active": req.Active})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
