package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/hivechat/autoreply/internal/engine"
	"github.com/hivechat/autoreply/internal/middleware"
	"github.com/hivechat/autoreply/internal/store"
	"github.com/hivechat/autoreply/internal/ws"
)

var startTime = time.Now()

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Deps carries everything the router needs. A nil DB leaves the
// handlers answering 503 rather than panicking, which keeps /health
// usable while the database is down.
type Deps struct {
	DB           *sql.DB
	Hub          *ws.Hub
	RuleCacheTTL time.Duration
}

// NewRouter wires the full HTTP surface.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	hub := deps.Hub
	if hub == nil {
		hub = ws.NewHub()
		go hub.Run()
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Org-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(chimiddleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", handleHealth)
	r.Get("/", handleRoot)
	r.Handle("/ws", &ws.Handler{Hub: hub})

	var (
		ruleStore    *store.RuleStore
		orgStore     *store.OrgStore
		hoursStore   *store.BusinessHoursStore
		triggerStore *store.TriggerRecordStore
		ruleCache    *engine.RuleCache
		resolver     *engine.Resolver
	)
	if deps.DB != nil {
		ruleStore = store.NewRuleStore(deps.DB)
		orgStore = store.NewOrgStore(deps.DB)
		hoursStore = store.NewBusinessHoursStore(deps.DB)
		triggerStore = store.NewTriggerRecordStore(deps.DB)
		ruleCache = engine.NewRuleCache(ruleStore, deps.RuleCacheTTL)
		resolver = engine.NewResolver(ruleCache, hoursStore, orgStore, triggerStore)
	}

	orgsHandler := &OrgsHandler{Store: orgStore}
	rulesHandler := &RulesHandler{Store: ruleStore, Cache: ruleCache, Hub: hub}
	eventsHandler := &EventsHandler{Resolver: resolver, Hub: hub}
	hoursHandler := &BusinessHoursHandler{Store: hoursStore, Hub: hub}
	triggersHandler := &TriggersHandler{Store: triggerStore}

	r.Post("/api/orgs", orgsHandler.Create)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOrg)

		r.Get("/api/orgs/current", orgsHandler.Get)
		r.Patch("/api/orgs/current/auto-reply", orgsHandler.SetAutoReply)

		r.Post("/api/events", eventsHandler.Resolve)

		r.Get("/api/rules", rulesHandler.List)
		r.Post("/api/rules", rulesHandler.Create)
		r.Get("/api/rules/{id}", rulesHandler.Get)
		r.Post("/api/rules/{id}/publish", rulesHandler.Publish)
		r.Post("/api/rules/{id}/archive", rulesHandler.Archive)
		r.Post("/api/rules/{id}/duplicate", rulesHandler.Duplicate)
		r.Get("/api/rules/{id}/triggers", triggersHandler.ListByRule)

		r.Get("/api/business-hours", hoursHandler.Get)
		r.Put("/api/business-hours", hoursHandler.Put)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   getVersion(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":    "Hive Chat Auto-Reply",
		"tagline": "Trigger resolution and rate limiting for chat automations",
		"health":  "/health",
	})
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}
