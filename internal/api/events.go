package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hivechat/autoreply/internal/engine"
	"github.com/hivechat/autoreply/internal/middleware"
	"github.com/hivechat/autoreply/internal/models"
	"github.com/hivechat/autoreply/internal/ws"
)

// EventsHandler is the resolution entrypoint: one inbound contact
// event in, one decision out.
type EventsHandler struct {
	Resolver *engine.Resolver
	Hub      *ws.Hub
}

type eventRequest struct {
	BotID        string     `json:"bot_id"`
	ContactID    string     `json:"contact_id"`
	MessageText  string     `json:"message_text"`
	IsNewContact bool       `json:"is_new_contact"`
	Timestamp    *time.Time `json:"timestamp"`
}

type decisionResponse struct {
	Outcome string `json:"outcome"`
	RuleID  string `json:"rule_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (h *EventsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if h.Resolver == nil {
		sendJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "resolver not available"})
		return
	}

	orgID := strings.TrimSpace(middleware.OrgFromContext(r.Context()))
	if orgID == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "org_id is required"})
		return
	}

	var req eventRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}
	if strings.TrimSpace(req.ContactID) == "" {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "contact_id is required"})
		return
	}

	event := models.ContactEvent{
		OrgID:        orgID,
		BotID:        strings.TrimSpace(req.BotID),
		ContactID:    strings.TrimSpace(req.ContactID),
		IsNewContact: req.IsNewContact,
		MessageText:  req.MessageText,
	}
	if req.Timestamp != nil {
		event.Timestamp = req.Timestamp.UTC()
	}

	decision, err := h.Resolver.Resolve(r.Context(), event)
	if err != nil {
		// The decision is already fail-closed; the error is for the logs.
		log.Printf("warning: event resolution degraded: org_id=%s contact_id=%s err=%v", orgID, event.ContactID, err)
	}

	if decision.Outcome == engine.OutcomeFire && h.Hub != nil {
		h.Hub.BroadcastEvent(orgID, ws.MessageTriggerFired, map[string]string{
			"rule_id":    decision.RuleID,
			"contact_id": event.ContactID,
		})
	}

	sendJSON(w, http.StatusOK, decisionResponse{
		Outcome: decision.Outcome,
		RuleID:  decision.RuleID,
		Reason:  decision.Reason,
	})
}
