package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hivechat/autoreply/internal/engine"
	"github.com/hivechat/autoreply/internal/middleware"
	"github.com/hivechat/autoreply/internal/models"
	"github.com/hivechat/autoreply/internal/store"
	"github.com/hivechat/autoreply/internal/ws"
)

// RulesHandler serves the rule authoring surface. Every mutation
// invalidates the org's rule cache so the resolver sees the change on
// the next event.
type RulesHandler struct {
	Store *store.RuleStore
	Cache *engine.RuleCache
	Hub   *ws.Hub
}

type ruleListResponse struct {
	Items []models.AutoReplyRule `json:"items"`
	Total int                    `json:"total"`
}

func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database not available"})
		return
	}

	orgID := strings.TrimSpace(middleware.OrgFromContext(r.Context()))
	if orgID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "org_id is required"})
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	rules, err := h.Store.List(r.Context(), orgID, status)
	if err != nil {
		handleRuleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, ruleListResponse{Items: rules, Total: len(rules)})
}

func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
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
		Name       string                   `json:"name"`
		Category   string                   `json:"category"`
		Keywords   []string                 `json:"keywords"`
		Schedule   *models.ScheduleSpec     `json:"schedule"`
		ReplyLimit *models.ReplyLimitPolicy `json:"reply_limit"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	created, err := h.Store.Create(r.Context(), store.CreateRuleInput{
		OrgID:      orgID,
		Name:       req.Name,
		Category:   req.Category,
		Keywords:   req.Keywords,
		Schedule:   req.Schedule,
		ReplyLimit: req.ReplyLimit,
	})
	if err != nil {
		handleRuleStoreError(w, err)
		return
	}

	h.invalidate(orgID)
	sendJSON(w, http.StatusCreated, created)
}

func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	rule, err := h.Store.GetByID(r.Context(), orgID, ruleID)
	if err != nil {
		handleRuleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, rule)
}

func (h *RulesHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Store.Publish, ws.MessageRulePublished)
}

func (h *RulesHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Store.Archive, ws.MessageRuleArchived)
}

func (h *RulesHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Store.Duplicate, "")
}

// transition runs one of the status-changing store operations and
// broadcasts the outcome when a message type is given.
func (h *RulesHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, orgID, ruleID string) (*models.AutoReplyRule, error),
	messageType ws.MessageType,
) {
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

	updated, err := op(r.Context(), orgID, ruleID)
	if err != nil {
		handleRuleStoreError(w, err)
		return
	}

	h.invalidate(orgID)
	if h.Hub != nil && messageType != "" {
		h.Hub.BroadcastEvent(orgID, messageType, updated)
	}

	status := http.StatusOK
	if updated.Status == models.StatusDraft && updated.Version > 1 {
		status = http.StatusCreated
	}
	sendJSON(w, status, updated)
}

func (h *RulesHandler) invalidate(orgID string) {
	if h.Cache != nil {
		h.Cache.Invalidate(orgID)
	}
}

func handleRuleStoreError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var keywordConflict *store.KeywordConflictError
	if errors.As(err, &keywordConflict) {
		sendJSON(w, http.StatusConflict, errorResponse{
			Error: fmt.Sprintf("keyword %q conflicts with rule %s", keywordConflict.Keyword, keywordConflict.ConflictingRuleID),
		})
		return
	}
	var dateConflict *store.MonthlyDateConflictError
	if errors.As(err, &dateConflict) {
		sendJSON(w, http.StatusConflict, errorResponse{
			Error: fmt.Sprintf("monthly date %d conflicts with rule %s", dateConflict.Date, dateConflict.ConflictingRuleID),
		})
		return
	}

	switch {
	case errors.Is(err, store.ErrWelcomeRuleExists):
		sendJSON(w, http.StatusConflict, errorResponse{Error: "org already has a welcome rule"})
		return
	case errors.Is(err, store.ErrNotFound):
		sendJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	case errors.Is(err, store.ErrInvalidStatus):
		sendJSON(w, http.StatusConflict, errorResponse{Error: "rule is not in a valid status for this operation"})
		return
	}

	var invalid *store.ValidationError
	if errors.As(err, &invalid) {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: invalid.Error()})
		return
	}

	sendJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}
