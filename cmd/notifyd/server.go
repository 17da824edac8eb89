package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/auth"
	"github.com/rickgao/notifystream/internal/connection"
)

// sessionControl is the part of *connection.Manager the control surface uses.
type sessionControl interface {
	Authenticate(ctx context.Context) error
	Logout()
	Authenticated() bool
	SessionID() string
	Status() connection.ConnectionStatus
	Channels() []connection.Snapshot
}

type reconnectControl interface {
	MaybeReconnect(ctx context.Context) bool
	ForceReconnect(ctx context.Context) error
}

type sessionStore interface {
	HasCredential() bool
	SetTokens(mode auth.Mode, access, refresh string) error
	SetSoundEnabled(enabled bool) error
	SoundEnabled() bool
	Clear() error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// server exposes status and recovery controls over HTTP.
type server struct {
	appCtx      context.Context // outlives requests; sessions are bound to it
	manager     sessionControl
	reconnector reconnectControl
	store       sessionStore
	db          pinger // nil when the archive is disabled
	idp         bool   // an identity provider is wired into the token supplier
	stats       map[string]func() any
	logger      *zap.Logger
}

type loginRequest struct {
	Mode         string `json:"mode"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type soundRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /debug/channels", s.handleChannels)
	mux.HandleFunc("GET /debug/router", s.handleStat("router"))
	mux.HandleFunc("GET /debug/stats", s.handleAllStats)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /reconnect", s.handleReconnect)
	mux.HandleFunc("POST /reconnect/force", s.handleForceReconnect)
	mux.HandleFunc("GET /preferences/sound", s.handleGetSound)
	mux.HandleFunc("PUT /preferences/sound", s.handlePutSound)

	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	status := s.manager.Status()
	health.Components["connection"] = status
	if s.manager.Authenticated() && !status.Connected && !status.Connecting && !status.Initializing {
		health.Status = "degraded"
	}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}
	}

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Authenticated bool   `json:"authenticated"`
		SessionID     string `json:"session_id,omitempty"`
		connection.ConnectionStatus
	}{
		Authenticated:    s.manager.Authenticated(),
		SessionID:        s.manager.SessionID(),
		ConnectionStatus: s.manager.Status(),
	})
}

func (s *server) handleChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": s.manager.SessionID(),
		"channels":   s.manager.Channels(),
	})
}

func (s *server) handleStat(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn, ok := s.stats[name]
		if !ok {
			writeError(w, http.StatusNotFound, name+" is not running")
			return
		}
		writeJSON(w, http.StatusOK, fn())
	}
}

func (s *server) handleAllStats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]any, len(s.stats))
	for name, fn := range s.stats {
		out[name] = fn()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	mode, err := auth.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mode == auth.ModeIdentityProvider && !s.idp {
		writeError(w, http.StatusBadRequest, "identity provider mode is not configured")
		return
	}
	if mode == auth.ModeLocal && req.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "access_token is required for local mode")
		return
	}

	if err := s.store.SetTokens(mode, req.AccessToken, req.RefreshToken); err != nil {
		s.logger.Error("failed to save session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "save session: "+err.Error())
		return
	}
	if err := s.manager.Authenticate(s.appCtx); err != nil {
		writeError(w, http.StatusInternalServerError, "authenticate: "+err.Error())
		return
	}

	s.logger.Info("session started", zap.String("mode", mode.String()), zap.String("session_id", s.manager.SessionID()))
	writeJSON(w, http.StatusOK, map[string]string{"session_id": s.manager.SessionID()})
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.manager.Logout()
	if err := s.store.Clear(); err != nil {
		s.logger.Error("failed to clear session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "clear session: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	reconnected := s.reconnector.MaybeReconnect(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"reconnected": reconnected})
}

func (s *server) handleForceReconnect(w http.ResponseWriter, r *http.Request) {
	err := s.reconnector.ForceReconnect(r.Context())
	switch {
	case errors.Is(err, connection.ErrNotAuthenticated):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"reconnected": true})
	}
}

func (s *server) handleGetSound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, soundRequest{Enabled: s.store.SoundEnabled()})
}

func (s *server) handlePutSound(w http.ResponseWriter, r *http.Request) {
	var req soundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.store.SetSoundEnabled(req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
