package engine

// Decision outcomes.
const (
	OutcomeFire       = "fire"
	OutcomeSuppressed = "suppressed"
	OutcomeNoMatch    = "no_match"
)

// Suppression reasons.
const (
	ReasonRateLimited        = "rate_limited"
	ReasonHistoryUnavailable = "history_unavailable"
)

// Decision is the structured result of resolving one inbound event.
type Decision struct {
	Outcome string `json:"outcome"`
	RuleID  string `json:"rule_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func fire(ruleID string) Decision {
	return Decision{Outcome: OutcomeFire, RuleID: ruleID}
}

func suppressed(ruleID, reason string) Decision {
	return Decision{Outcome: OutcomeSuppressed, RuleID: ruleID, Reason: reason}
}

func noMatch() Decision {
	return Decision{Outcome: OutcomeNoMatch}
}
