// ABOUTME: JSON response helpers and the API error envelope
// ABOUTME: Maps ceremony error kinds onto HTTP status codes

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cortadohq/cortado/internal/passkey"
	"github.com/cortadohq/cortado/internal/store"
)

// errorResponse is the envelope every non-2xx API response uses.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// verifiedResponse is what both ceremony finish endpoints return.
type verifiedResponse struct {
	Verified   bool                `json:"verified"`
	User       *userResponse       `json:"user,omitempty"`
	Credential *credentialResponse `json:"credential,omitempty"`
}

type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *userResponse `json:"user,omitempty"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// credentialResponse carries the listable credential fields. Key material
// never leaves the store.
type credentialResponse struct {
	ID         string    `json:"id"`
	Transports []string  `json:"transports,omitempty"`
	SignCount  uint32    `json:"sign_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type roasteryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	City        string    `json:"city,omitempty"`
	Website     string    `json:"website,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUserResponse(user *store.User) *userResponse {
	return &userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}

func toCredentialResponse(cred *store.Credential) *credentialResponse {
	resp := &credentialResponse{
		ID:        cred.ID,
		SignCount: cred.SignCount,
		CreatedAt: cred.CreatedAt,
	}
	if cred.Transports != "" {
		_ = json.Unmarshal([]byte(cred.Transports), &resp.Transports)
	}
	return resp
}

func toRoasteryResponse(roastery *store.Roastery) roasteryResponse {
	return roasteryResponse{
		ID:          roastery.ID,
		Name:        roastery.Name,
		City:        roastery.City,
		Website:     roastery.Website,
		Description: roastery.Description,
		CreatedBy:   roastery.CreatedBy,
		CreatedAt:   roastery.CreatedAt,
		UpdatedAt:   roastery.UpdatedAt,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

// ceremonyError translates an engine error into the API envelope. Anything
// that is not a passkey taxonomy error becomes a generic 500.
func (s *Server) ceremonyError(w http.ResponseWriter, err error) {
	var pkErr *passkey.Error
	if errors.As(err, &pkErr) {
		s.writeError(w, statusForKind(pkErr.Kind), string(pkErr.Kind), pkErr.Message)
		return
	}
	s.logger.Error("ceremony failed unexpectedly", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

func statusForKind(kind passkey.Kind) int {
	switch kind {
	case passkey.KindValidation, passkey.KindState, passkey.KindVerification:
		return http.StatusBadRequest
	case passkey.KindConflict:
		return http.StatusConflict
	case passkey.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
