package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hivechat/autoreply/internal/models"
)

// RuleCache wraps a RuleSource with a short-TTL per-org snapshot so a
// burst of events does not hammer the rule store. Authoring operations
// invalidate the org's entry.
type RuleCache struct {
	source RuleSource
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]ruleCacheEntry
}

type ruleCacheEntry struct {
	rules     []models.AutoReplyRule
	expiresAt time.Time
}

// NewRuleCache builds a cache over source. A non-positive TTL disables
// caching entirely.
func NewRuleCache(source RuleSource, ttl time.Duration) *RuleCache {
	return &RuleCache{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]ruleCacheEntry),
	}
}

// ActiveRules returns the org's active rules, served from cache when
// the snapshot is still fresh. Fetch errors are never cached.
func (c *RuleCache) ActiveRules(ctx context.Context, orgID string) ([]models.AutoReplyRule, error) {
	if c.ttl <= 0 {
		return c.source.ActiveRules(ctx, orgID)
	}

	now := time.Now()
	c.mu.Lock()
	entry, ok := c.entries[orgID]
	c.mu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.rules, nil
	}

	rules, err := c.source.ActiveRules(ctx, orgID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[orgID] = ruleCacheEntry{rules: rules, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return rules, nil
}

// Invalidate drops the org's cached snapshot. Called on rule create,
// publish, archive and duplicate.
func (c *RuleCache) Invalidate(orgID string) {
	c.mu.Lock()
	delete(c.entries, orgID)
	c.mu.Unlock()
}
