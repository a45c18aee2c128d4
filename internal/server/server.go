// Package server exposes the guarded chat pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/promptcraft-lab/promptops/internal/chat"
	"github.com/promptcraft-lab/promptops/internal/console"
	"github.com/promptcraft-lab/promptops/internal/guardrails"
	"github.com/promptcraft-lab/promptops/internal/provider"
	"github.com/promptcraft-lab/promptops/internal/redact"
)

// Server wraps the HTTP components of the PromptOps API.
type Server struct {
	mux    *http.ServeMux
	svc    *chat.Service
	store  *chat.Store
	engine *guardrails.Engine
	models provider.ModelLister

	srv *http.Server
}

// New creates a server with all routes registered. models may be nil when
// the provider cannot enumerate models.
func New(svc *chat.Service, store *chat.Store, engine *guardrails.Engine, models provider.ModelLister) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		svc:    svc,
		store:  store,
		engine: engine,
		models: models,
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/v1/chat", s.handleChat)
	s.mux.HandleFunc("/v1/chats", s.handleChats)
	s.mux.HandleFunc("/v1/chats/", s.handleChatByID)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/v1/policy/status", s.handlePolicyStatus)

	s.mux.Handle("/console/", console.Handler())
	s.mux.Handle("/console", http.RedirectHandler("/console/", http.StatusMovedPermanently))

	return s
}

// Handler returns the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.mux}
	log.Printf("promptops api listening on %s", addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

type chatRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	ChatID          string     `json:"chat_id"`
	Reply           string     `json:"reply"`
	Action          string     `json:"action"`
	LatencyMS       float64    `json:"latency_ms"`
	IsInScope       bool       `json:"is_in_scope"`
	IsAttack        bool       `json:"is_attack"`
	RiskScore       float64    `json:"risk_score"`
	BlockedCategory string     `json:"blocked_category,omitempty"`
	MatchedTopics   []string   `json:"matched_topics"`
	Stats           chat.Stats `json:"stats"`
}

// handleChat runs one guarded turn. Blocked and service-error turns are
// still HTTP 200: the refusal text is the reply and the action field
// carries the outcome.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody chatRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(reqBody.Message)
	if text == "" {
		writeError(w, http.StatusBadRequest, "message is empty", "invalid_request_error")
		return
	}

	sess := s.store.GetOrCreate(reqBody.ChatID)
	res := s.svc.ProcessTurn(r.Context(), sess, text)

	writeJSON(w, chatResponse{
		ChatID:          sess.ID,
		Reply:           res.Reply,
		Action:          res.Action,
		LatencyMS:       res.LatencyMS,
		IsInScope:       res.Scope.IsInScope,
		IsAttack:        res.Risk.IsAttack,
		RiskScore:       res.Risk.RiskScore,
		BlockedCategory: res.Scope.BlockedCategory,
		MatchedTopics:   res.Scope.MatchedTopics,
		Stats:           sess.StatsSnapshot(),
	})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions := s.store.List(r.URL.Query().Get("q"))
		out := make([]chat.SessionSummary, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, sess.Snapshot())
		}
		writeJSON(w, out)
	case http.MethodPost:
		sess := s.store.Create()
		writeJSON(w, sess.Snapshot())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/chats/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "unknown chat id", "invalid_request_error")
		return
	}
	sess, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown chat id", "invalid_request_error")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, sess)
	case http.MethodDelete:
		sess.Clear()
		writeJSON(w, sess.Snapshot())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.models == nil {
		writeError(w, http.StatusServiceUnavailable, "model listing unavailable", "provider_error")
		return
	}
	models, err := s.models.ListModels(r.Context())
	if err != nil {
		redact.Logf("list models error: %v", err)
		writeError(w, http.StatusBadGateway, "Upstream provider error", "provider_error")
		return
	}
	writeJSON(w, map[string][]string{"models": models})
}

type policyStatus struct {
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// handlePolicyStatus reports whether a guardrails policy is loaded. The
// service still answers with refusals when it is not, so this stays 200.
func (s *Server) handlePolicyStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := policyStatus{Ready: true}
	if err := s.engine.EnsureReady(); err != nil {
		status = policyStatus{Ready: false, Detail: err.Error()}
	}
	writeJSON(w, status)
}

// --- Helpers ---

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, message, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: message, Type: typ}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
