package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hivechat/autoreply/internal/models"
)

func TestRuleCacheServesFreshSnapshot(t *testing.T) {
	source := &fakeRuleSource{rules: []models.AutoReplyRule{{ID: "r1"}}}
	cache := NewRuleCache(source, time.Minute)

	first, err := cache.ActiveRules(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := cache.ActiveRules(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 1, source.calls)
}

func TestRuleCacheInvalidateForcesRefetch(t *testing.T) {
	source := &fakeRuleSource{rules: []models.AutoReplyRule{{ID: "r1"}}}
	cache := NewRuleCache(source, time.Minute)

	_, err := cache.ActiveRules(context.Background(), "org-1")
	require.NoError(t, err)

	cache.Invalidate("org-1")

	_, err = cache.ActiveRules(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestRuleCachePerOrgEntries(t *testing.T) {
	source := &fakeRuleSource{rules: []models.AutoReplyRule{{ID: "r1"}}}
	cache := NewRuleCache(source, time.Minute)

	_, err := cache.ActiveRules(context.Background(), "org-1")
	require.NoError(t, err)
	_, err = cache.ActiveRules(context.Background(), "org-2")
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestRuleCacheDisabledWithZeroTTL(t *testing.T) {
	source := &fakeRuleSource{rules: []models.AutoReplyRule{{ID: "r1"}}}
	cache := NewRuleCache(source, 0)

	_, err := cache.ActiveRules(context.Background(), "org-1")
	require.NoError(t, err)
	_, err = cache.ActiveRules(context.Background(), "org-1")
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}
