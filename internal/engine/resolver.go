// Package engine resolves inbound contact events to at most one
// auto-reply firing, enforcing category precedence, schedule windows
// and per-contact reply limits.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hivechat/autoreply/internal/match"
	"github.com/hivechat/autoreply/internal/models"
	"github.com/hivechat/autoreply/internal/schedule"
)

// RuleSource supplies an org's active rules.
type RuleSource interface {
	ActiveRules(ctx context.Context, orgID string) ([]models.AutoReplyRule, error)
}

// HoursSource supplies an org's business-hours table.
type HoursSource interface {
	WeekTable(ctx context.Context, orgID string) (schedule.WeekTable, error)
}

// OrgGate reports whether auto-reply is enabled for an org.
type OrgGate interface {
	AutoReplyEnabled(ctx context.Context, orgID string) (bool, error)
}

// Recorder is the durable trigger log. Append must be conditional on
// the record's (rule, contact, window bucket) key and report whether a
// row was actually written.
type Recorder interface {
	History
	Append(ctx context.Context, record models.TriggerRecord) (bool, error)
}

// Resolver orchestrates matching, schedule filtering, rate limiting
// and recording. It holds no per-event mutable state beyond the keyed
// lock ring and may be shared across requests.
type Resolver struct {
	rules    RuleSource
	hours    HoursSource
	gate     OrgGate
	recorder Recorder
	limiter  *RateLimiter
	keys     Keyring
}

// NewResolver wires a resolver from its collaborators.
func NewResolver(rules RuleSource, hours HoursSource, gate OrgGate, recorder Recorder) *Resolver {
	return &Resolver{
		rules:    rules,
		hours:    hours,
		gate:     gate,
		recorder: recorder,
		limiter:  NewRateLimiter(recorder),
	}
}

// Resolve decides which rule, if any, fires for the event. Dependency
// failures resolve to NoMatch (and the error is returned for logging);
// a rate-limited winner resolves to Suppressed and never falls through
// to another rule.
func (r *Resolver) Resolve(ctx context.Context, event models.ContactEvent) (Decision, error) {
	now := event.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	enabled, err := r.gate.AutoReplyEnabled(ctx, event.OrgID)
	if err != nil {
		return noMatch(), fmt.Errorf("org enablement lookup: %w", err)
	}
	if !enabled {
		return noMatch(), nil
	}

	rules, err := r.rules.ActiveRules(ctx, event.OrgID)
	if err != nil {
		return noMatch(), fmt.Errorf("active rules lookup: %w", err)
	}
	if len(rules) == 0 {
		return noMatch(), nil
	}

	hours, hoursErr := r.weekTableIfNeeded(ctx, event.OrgID, rules)

	for _, bucket := range match.Classify(event, rules) {
		active := r.scheduleActive(bucket.Rules, now, hours, hoursErr != nil)
		if len(active) == 0 {
			continue
		}

		winner := pickWinner(bucket.Category, active)
		return r.fireOrSuppress(ctx, winner, event, now)
	}

	return noMatch(), nil
}

// fireOrSuppress runs the rate-limit gate and records the firing. The
// per-key lock plus the recorder's conditional insert guarantee that
// concurrent events for one (rule, contact) cannot both fire within a
// window.
func (r *Resolver) fireOrSuppress(ctx context.Context, rule models.AutoReplyRule, event models.ContactEvent, now time.Time) (Decision, error) {
	unlock := r.keys.Lock(rule.ID + "\x00" + event.ContactID)
	defer unlock()

	allowed, err := r.limiter.TryConsume(ctx, rule, event.ContactID, now)
	if err != nil {
		return suppressed(rule.ID, ReasonHistoryUnavailable), fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		return suppressed(rule.ID, ReasonRateLimited), nil
	}

	inserted, err := r.recorder.Append(ctx, models.TriggerRecord{
		OrgID:        event.OrgID,
		BotID:        event.BotID,
		ContactID:    event.ContactID,
		RuleID:       rule.ID,
		FiredAt:      now,
		WindowBucket: models.WindowBucket(rule, now),
	})
	if err != nil {
		return suppressed(rule.ID, ReasonHistoryUnavailable), fmt.Errorf("trigger record append: %w", err)
	}
	if !inserted {
		// Another process won the window bucket.
		return suppressed(rule.ID, ReasonRateLimited), nil
	}

	return fire(rule.ID), nil
}

// scheduleActive keeps the rules whose window covers now. When the
// business-hours lookup failed, reply-hours rules are excluded rather
// than guessed at.
func (r *Resolver) scheduleActive(rules []models.AutoReplyRule, now time.Time, hours schedule.WeekTable, hoursUnavailable bool) []models.AutoReplyRule {
	var active []models.AutoReplyRule
	for _, rule := range rules {
		if hoursUnavailable && rule.Schedule != nil &&
			(rule.Schedule.Kind == models.ScheduleReplyHours || rule.Schedule.Kind == models.ScheduleNonReplyHours) {
			continue
		}
		if schedule.IsActive(rule.Schedule, now, hours) {
			active = append(active, rule)
		}
	}
	return active
}

// weekTableIfNeeded fetches business hours only when some rule depends
// on them.
func (r *Resolver) weekTableIfNeeded(ctx context.Context, orgID string, rules []models.AutoReplyRule) (schedule.WeekTable, error) {
	needed := false
	for _, rule := range rules {
		if rule.Schedule == nil {
			continue
		}
		if rule.Schedule.Kind == models.ScheduleReplyHours || rule.Schedule.Kind == models.ScheduleNonReplyHours {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}
	return r.hours.WeekTable(ctx, orgID)
}

// pickWinner selects the single firing rule from a category's active
// candidates. General rules order by schedule-priority tier first
// (monthly beats reply-hours beats daily/weekly); every remaining tie
// goes to the most recently created rule.
func pickWinner(category string, active []models.AutoReplyRule) models.AutoReplyRule {
	if category != models.CategoryGeneral || len(active) == 1 {
		return match.MostRecentlyCreated(active)
	}

	bestRank := schedule.RankUnschedule + 1
	for _, rule := range active {
		if rank := schedule.Rank(rule.Schedule); rank < bestRank {
			bestRank = rank
		}
	}
	var tier []models.AutoReplyRule
	for _, rule := range active {
		if schedule.Rank(rule.Schedule) == bestRank {
			tier = append(tier, rule)
		}
	}
	return match.MostRecentlyCreated(tier)
}
