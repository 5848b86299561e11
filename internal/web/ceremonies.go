// ABOUTME: HTTP handlers for the passkey registration, login, and
// ABOUTME: add-credential ceremonies; thin wrappers over the engine

package web

import (
	"encoding/json"
	"net/http"

	"github.com/cortadohq/cortado/internal/metrics"
)

type registerBeginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type loginBeginRequest struct {
	Username string `json:"username"`
}

// handleRegisterBegin starts a registration ceremony. The response body is
// the credential creation options for navigator.credentials.create.
func (s *Server) handleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	var req registerBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}

	rec, err := s.ensureSession(w, r)
	if err != nil {
		s.internalError(w, "failed to create session", err)
		return
	}

	options, err := s.engine.BeginRegistration(r.Context(), rec, req.Username, req.Email)
	if err != nil {
		s.ceremonyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, options)
}

// handleRegisterFinish verifies the attestation response and creates the
// user. Success binds the session to the new account.
func (s *Server) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	rec := s.sessionFromRequest(r)
	if rec == nil {
		s.writeError(w, http.StatusBadRequest, "state", "no registration ceremony in progress")
		return
	}

	user, err := s.engine.FinishRegistration(r.Context(), rec, r.Body)
	if err != nil {
		s.ceremonyError(w, err)
		return
	}

	metrics.IncrementActiveSessions()
	s.writeJSON(w, http.StatusOK, verifiedResponse{Verified: true, User: toUserResponse(user)})
}

// handleLoginBegin starts a login ceremony. An empty username requests the
// discoverable flow with no allow-list.
func (s *Server) handleLoginBegin(w http.ResponseWriter, r *http.Request) {
	var req loginBeginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}

	rec, err := s.ensureSession(w, r)
	if err != nil {
		s.internalError(w, "failed to create session", err)
		return
	}

	options, err := s.engine.BeginLogin(r.Context(), rec, req.Username)
	if err != nil {
		s.ceremonyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, options)
}

// handleLoginFinish verifies the assertion response and binds the session
// to the credential's owner.
func (s *Server) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	rec := s.sessionFromRequest(r)
	if rec == nil {
		s.writeError(w, http.StatusBadRequest, "state", "no login ceremony in progress")
		return
	}

	user, err := s.engine.FinishLogin(r.Context(), rec, r.Body)
	if err != nil {
		s.ceremonyError(w, err)
		return
	}

	metrics.IncrementActiveSessions()
	s.writeJSON(w, http.StatusOK, verifiedResponse{Verified: true, User: toUserResponse(user)})
}

// handleAddCredentialBegin starts registration of an additional passkey for
// the authenticated user. Options exclude already-registered credentials.
func (s *Server) handleAddCredentialBegin(w http.ResponseWriter, r *http.Request) {
	rec := sessionFromContext(r)

	options, err := s.engine.BeginAddCredential(r.Context(), rec)
	if err != nil {
		s.ceremonyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, options)
}

// handleAddCredentialFinish verifies the attestation response and stores the
// additional credential. The session identity is untouched.
func (s *Server) handleAddCredentialFinish(w http.ResponseWriter, r *http.Request) {
	rec := sessionFromContext(r)

	cred, err := s.engine.FinishAddCredential(r.Context(), rec, r.Body)
	if err != nil {
		s.ceremonyError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, verifiedResponse{Verified: true, Credential: toCredentialResponse(cred)})
}
