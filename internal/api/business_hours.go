package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hivechat/autoreply/internal/middleware"
	"github.com/hivechat/autoreply/internal/store"
	"github.com/hivechat/autoreply/internal/ws"
)

// BusinessHoursHandler serves the org's weekly reply-hours table.
type BusinessHoursHandler struct {
	Store *store.BusinessHoursStore
	Hub   *ws.Hub
}

type businessHoursResponse struct {
	Days []store.DayIntervals `json:"days"`
}

func (h *BusinessHoursHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not available"})
		return
	}

	orgID := strings.TrimSpace(middleware.OrgFromContext(r.Context()))
	if orgID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "org_id is required"})
		return
	}

	days, err := h.Store.Days(r.Context(), orgID)
	if err != nil {
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	sendJSON(w, http.StatusOK, businessHoursResponse{Days: days})
}

func (h *BusinessHoursHandler) Put(w http.ResponseWriter, r *http.Request) {
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
		Days []store.DayIntervals `json:"days"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	if err := h.Store.Replace(r.Context(), orgID, req.Days); err != nil {
		var invalid *store.ValidationError
		if errors.As(err, &invalid) {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: invalid.Error()})
			return
		}
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	days, err := h.Store.Days(r.Context(), orgID)
	if err != nil {
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	if h.Hub != nil {
		h.Hub.BroadcastEvent(orgID, ws.MessageBusinessHoursUpdated, businessHoursResponse{Days: days})
	}
	sendJSON(w, http.StatusOK, businessHoursResponse{Days: days})
}
