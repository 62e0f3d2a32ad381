// Package mockapi serves a minimal OpenAI-style chat-completion API with
// injectable latency and failures, for tests and local demos.
package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// CompletionsPath is the chat-completion route.
const CompletionsPath = "/v1/chat/completions"

// TokenPath is the OAuth2 client credentials route.
const TokenPath = "/oauth/token"

// Options controls the mock's behaviour. The zero value answers every request
// immediately with 200.
type Options struct {
	Latency    time.Duration // applied before every completion response
	FailEvery  int           // every Nth completion request fails; 0 disables
	FailStatus int           // status for injected failures, default 500
	APIKey     string        // when set, completions require "Bearer <APIKey>"

	// ClientID and ClientSecret enable the token endpoint. Tokens it issues
	// are accepted in place of APIKey.
	ClientID     string
	ClientSecret string
	TokenTTL     time.Duration // default one hour
}

// Server is the mock API.
type Server struct {
	opts Options

	requests      atomic.Int64
	failures      atomic.Int64
	unauthorized  atomic.Int64
	missingIDs    atomic.Int64
	tokenRequests atomic.Int64
}

// New creates a mock server.
func New(opts Options) *Server {
	if opts.FailStatus == 0 {
		opts.FailStatus = http.StatusInternalServerError
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	return &Server{opts: opts}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(CompletionsPath, s.handleCompletion)
	mux.HandleFunc(TokenPath, s.handleToken)
	return mux
}

// Requests counts completion requests received.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Failures counts injected failures.
func (s *Server) Failures() int64 { return s.failures.Load() }

// Unauthorized counts completion requests rejected for bad credentials.
func (s *Server) Unauthorized() int64 { return s.unauthorized.Load() }

// MissingRequestIDs counts completion requests without an X-Request-Id.
func (s *Server) MissingRequestIDs() int64 { return s.missingIDs.Load() }

// TokenRequests counts token endpoint calls.
func (s *Server) TokenRequests() int64 { return s.tokenRequests.Load() }

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	n := s.requests.Add(1)
	if r.Header.Get("X-Request-Id") == "" {
		s.missingIDs.Add(1)
	}
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "invalid_request_error", "method not allowed")
		return
	}
	if !s.authorized(r) {
		s.unauthorized.Add(1)
		respondError(w, http.StatusUnauthorized, "invalid_api_key", "Incorrect API key provided")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request_error", "could not parse request body")
		return
	}
	if req.Model == "" || len(req.Messages) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request_error", "model and messages are required")
		return
	}

	if s.opts.Latency > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.opts.Latency):
		}
	}

	if s.opts.FailEvery > 0 && n%int64(s.opts.FailEvery) == 0 {
		s.failures.Add(1)
		respondError(w, s.opts.FailStatus, errorType(s.opts.FailStatus), http.StatusText(s.opts.FailStatus))
		return
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	respondJSON(w, http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock-%d", n),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": "mock reply"},
			"finish_reason": "stop",
		}},
		"usage": map[string]int{
			"prompt_tokens":     len(strings.Fields(prompt)),
			"completion_tokens": 2,
			"total_tokens":      len(strings.Fields(prompt)) + 2,
		},
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.APIKey == "" && s.opts.ClientID == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	if s.opts.APIKey != "" && got == "Bearer "+s.opts.APIKey {
		return true
	}
	return s.opts.ClientID != "" && strings.HasPrefix(got, "Bearer mock-token-")
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if s.opts.ClientID == "" {
		respondJSON(w, http.StatusNotFound, map[string]any{"error": "token endpoint disabled"})
		return
	}
	id, secret, ok := r.BasicAuth()
	if !ok || id != s.opts.ClientID || secret != s.opts.ClientSecret || r.FormValue("grant_type") != "client_credentials" {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client", "error_description": "client authentication failed"})
		return
	}
	n := s.tokenRequests.Add(1)
	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": fmt.Sprintf("mock-token-%d", n),
		"token_type":   "bearer",
		"expires_in":   int(s.opts.TokenTTL / time.Second),
	})
}

func errorType(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return "rate_limit_exceeded"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "invalid_api_key"
	case status >= 500:
		return "server_error"
	}
	return "invalid_request_error"
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, map[string]any{
		"error": map[string]string{"type": kind, "message": message},
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
