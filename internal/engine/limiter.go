package engine

import (
	"context"
	"time"

	"github.com/hivechat/autoreply/internal/models"
)

// History is the read side of the trigger log the limiter consults.
type History interface {
	// LastFired returns the most recent firing instant for the
	// (rule, contact) pair, or nil when there is no history.
	LastFired(ctx context.Context, ruleID, contactID string) (*time.Time, error)
}

// RateLimiter enforces at most one reply per configured window per
// (rule, contact). It only reads; recording a consumption is the
// resolver's job so the limiter stays free of write paths.
type RateLimiter struct {
	history History
}

// NewRateLimiter builds a limiter over the given trigger history.
func NewRateLimiter(history History) *RateLimiter {
	return &RateLimiter{history: history}
}

// TryConsume reports whether the rule may fire for the contact at now.
// Rules without a reply-limit policy always pass. The caller must hold
// the (rule, contact) key lock for the check-then-record sequence to
// stay atomic.
func (l *RateLimiter) TryConsume(ctx context.Context, rule models.AutoReplyRule, contactID string, now time.Time) (bool, error) {
	if rule.ReplyLimit == nil {
		return true, nil
	}
	window := rule.ReplyLimit.Window()
	if window <= 0 {
		// Malformed policy that slipped past authoring: fail closed.
		return false, nil
	}

	last, err := l.history.LastFired(ctx, rule.ID, contactID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return now.Sub(*last) >= window, nil
}
