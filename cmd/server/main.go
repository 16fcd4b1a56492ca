package main

import (
	"log"
	"net/http"

	"github.com/hivechat/autoreply/internal/api"
	"github.com/hivechat/autoreply/internal/automigrate"
	"github.com/hivechat/autoreply/internal/config"
	"github.com/hivechat/autoreply/internal/store"
	"github.com/hivechat/autoreply/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if automigrate.Enabled() {
		if err := automigrate.Run(cfg.DatabaseURL, "migrations"); err != nil {
			log.Fatalf("Auto-migration failed: %v", err)
		}
	}

	db, err := store.DB()
	if err != nil {
		// Handlers answer 503 until the database comes back; /health
		// stays useful for the orchestrator either way.
		log.Printf("warning: database unavailable, running degraded: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	router := api.NewRouter(api.Deps{
		DB:           db,
		Hub:          hub,
		RuleCacheTTL: cfg.RuleCacheTTL,
	})

	log.Printf("🐝 Hive Chat auto-reply engine starting on port %s (%s)", cfg.Port, cfg.Environment)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
