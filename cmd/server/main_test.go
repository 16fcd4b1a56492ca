package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hivechat/autoreply/internal/api"
)

// Smoke test: the wired router serves its public endpoints even with
// no database configured.
func TestServerPublicEndpoints(t *testing.T) {
	t.Parallel()

	router := api.NewRouter(api.Deps{})
	server := httptest.NewServer(router)
	defer server.Close()

	for _, path := range []string{"/health", "/"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}

		var payload map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
		if len(payload) == 0 {
			t.Fatalf("GET %s: expected a json document, got none", path)
		}
	}
}

func TestHealthTimestampFormat(t *testing.T) {
	t.Parallel()

	router := api.NewRouter(api.Deps{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health payload: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("expected status ok, got %q", payload.Status)
	}
	if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q", payload.Timestamp)
	}
}
