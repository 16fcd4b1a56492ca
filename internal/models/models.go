// Package models defines domain models for the auto-reply engine.
//
// Note: The rule store in the store package owns persistence for these
// types; this package holds the shared shapes the engine, matcher and
// schedule evaluator operate on.
package models

import "time"

// RuleCategory constants. Precedence during resolution is
// Welcome > Keyword > General.
const (
	CategoryWelcome = "welcome"
	CategoryKeyword = "keyword"
	CategoryGeneral = "general"
)

// RuleStatus constants.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// ScheduleKind constants.
const (
	ScheduleDaily         = "daily"
	ScheduleWeekly        = "weekly"
	ScheduleMonthly       = "monthly"
	ScheduleReplyHours    = "reply_hours"
	ScheduleNonReplyHours = "non_reply_hours"
)

// ReplyLimitUnit constants.
const (
	WindowUnitHours = "hours"
	WindowUnitDays  = "days"
)

// MaxMonthlyDates caps how many calendar dates a monthly schedule may carry.
const MaxMonthlyDates = 5

// ScheduleSpec describes when a rule's time window is active. Kind
// selects the variant; only the fields for that variant are meaningful.
type ScheduleSpec struct {
	Kind            string `json:"kind"`
	StartMinute     int    `json:"start_minute"`
	EndMinute       int    `json:"end_minute"`
	CrossesMidnight bool   `json:"crosses_midnight,omitempty"`
	DaysOfWeek      []int  `json:"days_of_week,omitempty"`
	MonthDates      []int  `json:"month_dates,omitempty"`
}

// ReplyLimitPolicy caps firing at one reply per window per contact.
type ReplyLimitPolicy struct {
	WindowAmount int    `json:"window_amount"`
	WindowUnit   string `json:"window_unit"`
}

// Window returns the policy's duration. Zero for a malformed policy.
func (p ReplyLimitPolicy) Window() time.Duration {
	if p.WindowAmount < 1 || p.WindowAmount > 999 {
		return 0
	}
	switch p.WindowUnit {
	case WindowUnitHours:
		return time.Duration(p.WindowAmount) * time.Hour
	case WindowUnitDays:
		return time.Duration(p.WindowAmount) * 24 * time.Hour
	default:
		return 0
	}
}

// AutoReplyRule is a configured auto-reply. Category, keywords and
// schedule are frozen once the rule is published; Duplicate is the only
// sanctioned way to derive an editable variant.
type AutoReplyRule struct {
	ID          string            `json:"id"`
	OrgID       string            `json:"org_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Status      string            `json:"status"`
	Keywords    []string          `json:"keywords,omitempty"`
	Schedule    *ScheduleSpec     `json:"schedule,omitempty"`
	ReplyLimit  *ReplyLimitPolicy `json:"reply_limit,omitempty"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	ArchivedAt  *time.Time        `json:"archived_at,omitempty"`
}

// Interval is a half-open [StartMinute, EndMinute) window within a day.
type Interval struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// ContactEvent is an inbound conversational event.
type ContactEvent struct {
	OrgID        string    `json:"org_id"`
	BotID        string    `json:"bot_id"`
	ContactID    string    `json:"contact_id"`
	IsNewContact bool      `json:"is_new_contact"`
	MessageText  string    `json:"message_text"`
	Timestamp    time.Time `json:"timestamp"`
}

// TriggerRecord is one append-only firing outcome. The latest record
// per (rule, contact) drives rate limiting; all records persist for
// reporting.
type TriggerRecord struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	BotID        string    `json:"bot_id"`
	ContactID    string    `json:"contact_id"`
	RuleID       string    `json:"rule_id"`
	FiredAt      time.Time `json:"fired_at"`
	WindowBucket int64     `json:"window_bucket"`
}

// WindowBucket maps a firing instant to the rule's rate-limit bucket.
// Records for unlimited rules use the nanosecond timestamp so inserts
// never collide; limited rules share a bucket within one window, which
// lets the store enforce at-most-one-per-window with a unique index.
func WindowBucket(rule AutoReplyRule, firedAt time.Time) int64 {
	if rule.ReplyLimit == nil {
		return firedAt.UnixNano()
	}
	window := rule.ReplyLimit.Window()
	if window <= 0 {
		return firedAt.UnixNano()
	}
	return firedAt.UnixMilli() / window.Milliseconds()
}
