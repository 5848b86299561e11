// ABOUTME: HTTP server core: routes, session cookies, account handlers
// ABOUTME: Ceremony state and identity both ride the cortado_session cookie

package web

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cortadohq/cortado/internal/auth"
	"github.com/cortadohq/cortado/internal/metrics"
	"github.com/cortadohq/cortado/internal/passkey"
	"github.com/cortadohq/cortado/internal/session"
	"github.com/cortadohq/cortado/internal/store"
)

const (
	// SessionCookieName is the name of the browser session cookie
	SessionCookieName = "cortado_session"

	// SessionDuration is how long sessions last
	SessionDuration = 7 * 24 * time.Hour // 7 days

	// DefaultTokenTTL is the service-token lifetime when config does not set one
	DefaultTokenTTL = time.Hour
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const sessionContextKey contextKey = "web_session"

// Config holds web server configuration
type Config struct {
	// BaseURL is the external URL the browser reaches the server on.
	// An https base URL turns on the Secure cookie flag.
	BaseURL string

	// TokenSecret signs service tokens. Empty disables POST /api/session/token.
	TokenSecret string

	// TokenTTL is the service-token lifetime. Zero means DefaultTokenTTL.
	TokenTTL time.Duration

	// SessionTTL is the browser session lifetime. Zero means SessionDuration.
	SessionTTL time.Duration

	// MetricsEnabled mounts GET /metrics when true.
	MetricsEnabled bool
}

// Server handles the cortado API routes and the demo page
type Server struct {
	store    store.Store
	sessions session.Store
	engine   *passkey.Engine
	verifier *auth.JWTVerifier
	config   Config
	logger   *slog.Logger
	secure   bool
}

// New creates a new web server. A nil logger falls back to slog.Default.
func New(st store.Store, sessions session.Store, engine *passkey.Engine, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = SessionDuration
	}

	s := &Server{
		store:    st,
		sessions: sessions,
		engine:   engine,
		config:   cfg,
		logger:   logger.With("component", "web"),
		secure:   strings.HasPrefix(cfg.BaseURL, "https://"),
	}
	if cfg.TokenSecret != "" {
		s.verifier = auth.NewJWTVerifier([]byte(cfg.TokenSecret))
	}
	return s
}

// Handler returns the full route tree with request metrics attached
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return WithMetrics(mux)
}

// RegisterRoutes registers all routes on the given mux
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Passkey ceremonies
	mux.HandleFunc("POST /api/register/begin", s.handleRegisterBegin)
	mux.HandleFunc("POST /api/register/finish", s.handleRegisterFinish)
	mux.HandleFunc("POST /api/login/begin", s.handleLoginBegin)
	mux.HandleFunc("POST /api/login/finish", s.handleLoginFinish)

	// Session
	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("POST /api/session/token", s.requireSession(s.handleMintToken))

	// Credential management
	mux.HandleFunc("POST /api/credentials/begin", s.requireSession(s.handleAddCredentialBegin))
	mux.HandleFunc("POST /api/credentials/finish", s.requireSession(s.handleAddCredentialFinish))
	mux.HandleFunc("GET /api/credentials", s.requireSession(s.handleCredentialsList))
	mux.HandleFunc("DELETE /api/credentials/{id}", s.requireSession(s.handleCredentialDelete))

	// Account
	mux.HandleFunc("DELETE /api/users/me", s.requireSession(s.handleDeleteAccount))

	// Roastery directory
	mux.HandleFunc("GET /api/roasteries", s.handleRoasteriesList)
	mux.HandleFunc("POST /api/roasteries", s.requireSession(s.handleRoasteryCreate))
	mux.HandleFunc("GET /api/roasteries/{id}", s.handleRoasteryGet)
	mux.HandleFunc("PUT /api/roasteries/{id}", s.requireSession(s.handleRoasteryUpdate))
	mux.HandleFunc("DELETE /api/roasteries/{id}", s.requireSession(s.handleRoasteryDelete))

	// Health
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	if s.config.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Demo page
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		s.logger.Error("failed to mount demo page", "error", err)
	} else {
		mux.Handle("GET /", http.FileServerFS(static))
	}

	s.logger.Info("routes registered")
}

// requireSession wraps a handler to require an authenticated session
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := s.sessionFromRequest(r)
		if rec == nil || !rec.Authenticated() {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, rec)
		next(w, r.WithContext(ctx))
	}
}

// sessionFromContext retrieves the session record placed by requireSession
func sessionFromContext(r *http.Request) *session.Record {
	rec, _ := r.Context().Value(sessionContextKey).(*session.Record)
	return rec
}

// sessionFromRequest resolves the request cookie to a live session record.
// Unknown tokens and store failures both read as "no session".
func (s *Server) sessionFromRequest(r *http.Request) *session.Record {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}

	rec, err := s.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			s.logger.Error("session lookup failed", "error", err)
		}
		return nil
	}
	return rec
}

// ensureSession returns the request's session, minting a fresh record and
// cookie when none exists. Ceremony begin handlers call this so the challenge
// has a session to live on before the user is known.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (*session.Record, error) {
	if rec := s.sessionFromRequest(r); rec != nil {
		return rec, nil
	}

	token, err := session.NewToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &session.Record{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}
	if err := s.sessions.Put(r.Context(), rec); err != nil {
		return nil, err
	}

	s.setSessionCookie(w, rec)
	return rec, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, rec *session.Record) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    rec.Token,
		Path:     "/",
		Expires:  rec.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleGetSession reports whether the caller holds an authenticated session.
// Never an error: an anonymous caller gets {authenticated: false}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec := s.sessionFromRequest(r)
	if rec == nil || !rec.Authenticated() {
		s.writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}

	user, err := s.store.GetUser(r.Context(), rec.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// User row deleted out from under the session
			s.writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
			return
		}
		s.internalError(w, "failed to load session user", err)
		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          toUserResponse(user),
	})
}

// handleLogout destroys the whole session record and expires the cookie
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		rec := s.sessionFromRequest(r)
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil {
			s.logger.Warn("failed to delete session", "error", err)
		}
		if rec != nil && rec.Authenticated() {
			metrics.DecrementActiveSessions()
		}
	}

	s.clearSessionCookie(w)
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleDeleteAccount removes the caller's user row; the FK cascade takes
// the credentials with it, and the session is destroyed.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	rec := sessionFromContext(r)

	if err := s.store.DeleteUser(r.Context(), rec.UserID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.internalError(w, "failed to delete user", err)
		return
	}

	if err := s.sessions.Delete(r.Context(), rec.Token); err != nil {
		s.logger.Warn("failed to delete session", "error", err)
	}
	metrics.DecrementActiveSessions()

	s.clearSessionCookie(w)
	s.logger.Info("account deleted", "user_id", rec.UserID)
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleMintToken issues a short-lived service token for the session user
func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.writeError(w, http.StatusServiceUnavailable, "unavailable", "service tokens are not configured")
		return
	}

	rec := sessionFromContext(r)
	user, err := s.store.GetUser(r.Context(), rec.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		s.internalError(w, "failed to load user", err)
		return
	}

	expiresAt := time.Now().Add(s.config.TokenTTL)
	token, err := s.verifier.Generate(auth.Identity{UserID: user.ID, Username: user.Username}, s.config.TokenTTL)
	if err != nil {
		s.internalError(w, "failed to mint service token", err)
		return
	}

	s.writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// handleCredentialsList returns the caller's registered credentials
func (s *Server) handleCredentialsList(w http.ResponseWriter, r *http.Request) {
	rec := sessionFromContext(r)

	creds, err := s.store.GetCredentialsByUser(r.Context(), rec.UserID)
	if err != nil {
		s.internalError(w, "failed to list credentials", err)
		return
	}

	out := make([]*credentialResponse, 0, len(creds))
	for _, cred := range creds {
		out = append(out, toCredentialResponse(cred))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleCredentialDelete removes one of the caller's credentials by row id.
// Another user's row id reads as unknown.
func (s *Server) handleCredentialDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec := sessionFromContext(r)

	creds, err := s.store.GetCredentialsByUser(r.Context(), rec.UserID)
	if err != nil {
		s.internalError(w, "failed to list credentials", err)
		return
	}

	owned := false
	for _, cred := range creds {
		if cred.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		s.writeError(w, http.StatusNotFound, "not_found", "unknown credential")
		return
	}

	if err := s.store.DeleteCredential(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "not_found", "unknown credential")
			return
		}
		s.internalError(w, "failed to delete credential", err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleHealth is a liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness based on a store ping
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
