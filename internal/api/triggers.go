package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hivechat/autoreply/internal/middleware"
	"github.com/hivechat/autoreply/internal/models"
	"github.com/hivechat/autoreply/internal/store"
)

// TriggersHandler exposes the trigger log for reporting.
type TriggersHandler struct {
	Store *store.TriggerRecordStore
}

type triggerListResponse struct {
	Items []models.TriggerRecord `json:"items"`
	Total int                    `json:"total"`
}

func (h *TriggersHandler) ListByRule(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not available"})
		return
	}

	orgID := strings.TrimSpace(middleware.OrgFromContext(r.Context()))
	if orgID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "org_id is required"})
		return
	}

	ruleID := strings.TrimSpace(chi.URLParam(r, "id"))
	if ruleID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "rule id is required"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := h.Store.ListByRule(r.Context(), orgID, ruleID, limit)
	if err != nil {
		var invalid *store.ValidationError
		if errors.As(err, &invalid) {
			sendJSON(w, http.StatusBadRequest, errorResponse{Error: invalid.Error()})
			return
		}
		sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	sendJSON(w, http.StatusOK, triggerListResponse{Items: records, Total: len(records)})
}
