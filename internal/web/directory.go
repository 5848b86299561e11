// ABOUTME: HTTP handlers for the roastery directory
// ABOUTME: Public reads, session-authenticated writes

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortadohq/cortado/internal/store"
)

type roasteryRequest struct {
	Name        string `json:"name"`
	City        string `json:"city"`
	Website     string `json:"website"`
	Description string `json:"description"`
}

// validate trims the fields in place and returns a message for the first
// constraint violated, or "" when the request is acceptable.
func (r *roasteryRequest) validate() string {
	r.Name = strings.TrimSpace(r.Name)
	r.City = strings.TrimSpace(r.City)
	r.Website = strings.TrimSpace(r.Website)
	r.Description = strings.TrimSpace(r.Description)

	switch {
	case r.Name == "":
		return "name is required"
	case len(r.Name) > 120:
		return "name must be at most 120 characters"
	case len(r.City) > 120:
		return "city must be at most 120 characters"
	case len(r.Website) > 300:
		return "website must be at most 300 characters"
	case r.Website != "" && !strings.HasPrefix(r.Website, "http://") && !strings.HasPrefix(r.Website, "https://"):
		return "website must start with http:// or https://"
	case len(r.Description) > 2000:
		return "description must be at most 2000 characters"
	}
	return ""
}

// handleRoasteriesList returns all roasteries ordered by name
func (s *Server) handleRoasteriesList(w http.ResponseWriter, r *http.Request) {
	roasteries, err := s.store.ListRoasteries(r.Context())
	if err != nil {
		s.internalError(w, "failed to list roasteries", err)
		return
	}

	out := make([]roasteryResponse, 0, len(roasteries))
	for _, roastery := range roasteries {
		out = append(out, toRoasteryResponse(roastery))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleRoasteryGet returns one roastery by id
func (s *Server) handleRoasteryGet(w http.ResponseWriter, r *http.Request) {
	roastery, err := s.store.GetRoastery(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "not_found", "unknown roastery")
			return
		}
		s.internalError(w, "failed to load roastery", err)
		return
	}

	s.writeJSON(w, http.StatusOK, toRoasteryResponse(roastery))
}

// handleRoasteryCreate adds a directory entry owned by the session user
func (s *Server) handleRoasteryCreate(w http.ResponseWriter, r *http.Request) {
	var req roasteryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.writeError(w, http.StatusBadRequest, "validation", msg)
		return
	}

	rec := sessionFromContext(r)
	now := time.Now()
	roastery := &store.Roastery{
		ID:          uuid.NewString(),
		Name:        req.Name,
		City:        req.City,
		Website:     req.Website,
		Description: req.Description,
		CreatedBy:   rec.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateRoastery(r.Context(), roastery); err != nil {
		if errors.Is(err, store.ErrRoasteryExists) {
			s.writeError(w, http.StatusConflict, "conflict", "roastery name already exists")
			return
		}
		s.internalError(w, "failed to create roastery", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toRoasteryResponse(roastery))
}

// handleRoasteryUpdate rewrites a roastery's fields and touches updated_at
func (s *Server) handleRoasteryUpdate(w http.ResponseWriter, r *http.Request) {
	roastery, err := s.store.GetRoastery(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "not_found", "unknown roastery")
			return
		}
		s.internalError(w, "failed to load roastery", err)
		return
	}

	var req roasteryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		s.writeError(w, http.StatusBadRequest, "validation", msg)
		return
	}

	roastery.Name = req.Name
	roastery.City = req.City
	roastery.Website = req.Website
	roastery.Description = req.Description
	roastery.UpdatedAt = time.Now()

	if err := s.store.UpdateRoastery(r.Context(), roastery); err != nil {
		switch {
		case errors.Is(err, store.ErrRoasteryExists):
			s.writeError(w, http.StatusConflict, "conflict", "roastery name already exists")
		case errors.Is(err, store.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "not_found", "unknown roastery")
		default:
			s.internalError(w, "failed to update roastery", err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, toRoasteryResponse(roastery))
}

// handleRoasteryDelete removes a roastery by id
func (s *Server) handleRoasteryDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRoastery(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "not_found", "unknown roastery")
			return
		}
		s.internalError(w, "failed to delete roastery", err)
		return
	}

	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}
