package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hivechat/autoreply/internal/middleware"
	"github.com/hivechat/autoreply/internal/store"
)

// OrgsHandler manages organizations and their auto-reply kill switch.
type OrgsHandler struct {
	Store *store.OrgStore
}

func (h *OrgsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not available"})
		return
	}

	var req struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	created, err := h.Store.Create(r.Context(), req.Name, req.Slug)
	if err != nil {
		var invalid *store.ValidationError
		if errors.As(err, &invalid) {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: invalid.Error()})
			return
		}
		if strings.Contains(strings.ToLower(err.Error()), "duplicate key") {
			sendJSON(w, http.StatusConflict, errorResponse{Error: "slug already taken"})
			return
		}
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	sendJSON(w, http.StatusCreated, created)
}

func (h *OrgsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not available"})
		return
	}

	orgID := strings.TrimSpace(middleware.OrgFromContext(r.Context()))
	if orgID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "org_id is required"})
		return
	}

	org, err := h.Store.GetByID(r.Context(), orgID)
	if errors.Is(err, store.ErrNotFound) {
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	sendJSON(w, http.StatusOK, org)
}

func (h *OrgsHandler) SetAutoReply(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not available"})
		return
	}

	orgID := strings.TrimSpace(middleware.OrgFromContext(r.Context()))
	if orgID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "org_id is required"})
		return
	}

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil || req.Enabled == nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "enabled is required"})
		return
	}

	err := h.Store.SetAutoReplyEnabled(r.Context(), orgID, *req.Enabled)
	if errors.Is(err, store.ErrNotFound) {
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	if err != nil {
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	org, err := h.Store.GetByID(r.Context(), orgID)
	if err != nil {
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	sendJSON(w, http.StatusOK, org)
}
