// Package match classifies inbound contact events against an org's
// active rule set and produces category-ordered candidate lists.
package match

import (
	"strings"

	"github.com/hivechat/autoreply/internal/models"
)

// CategoryCandidates is one resolution bucket: the rules of a single
// category that an event could trigger, ordered highest-precedence
// category first by Classify.
type CategoryCandidates struct {
	Category string
	Rules    []models.AutoReplyRule
}

// Classify narrows the rule set to the candidates an event can reach.
// A new-contact event is answered only by welcome rules; a message is
// tested against keyword rules first and falls back to general rules.
// Schedule filtering and tie-breaking happen later, in the resolver.
func Classify(event models.ContactEvent, rules []models.AutoReplyRule) []CategoryCandidates {
	if event.IsNewContact {
		welcome := rulesOfCategory(rules, models.CategoryWelcome)
		if len(welcome) == 0 {
			return nil
		}
		return []CategoryCandidates{{Category: models.CategoryWelcome, Rules: welcome}}
	}

	var buckets []CategoryCandidates

	text := strings.TrimSpace(event.MessageText)
	if text != "" {
		var matched []models.AutoReplyRule
		for _, rule := range rules {
			if rule.Category != models.CategoryKeyword {
				continue
			}
			if MatchesKeywords(text, rule.Keywords) {
				matched = append(matched, rule)
			}
		}
		if len(matched) > 0 {
			buckets = append(buckets, CategoryCandidates{
				Category: models.CategoryKeyword,
				Rules:    matched,
			})
		}
	}

	general := rulesOfCategory(rules, models.CategoryGeneral)
	if len(general) > 0 {
		buckets = append(buckets, CategoryCandidates{
			Category: models.CategoryGeneral,
			Rules:    general,
		})
	}

	return buckets
}

// MatchesKeywords reports whether the message hits any keyword, either
// as a case-insensitive full-string match or as a substring of the
// message. No character-level fuzziness.
func MatchesKeywords(message string, keywords []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return false
	}
	for _, keyword := range keywords {
		needle := strings.ToLower(strings.TrimSpace(keyword))
		if needle == "" {
			continue
		}
		if normalized == needle || strings.Contains(normalized, needle) {
			return true
		}
	}
	return false
}

// MostRecentlyCreated picks the winner among colliding rules: the rule
// with the latest CreatedAt fires ("only the latest created auto-reply
// will be triggered"). Rule ID breaks exact timestamp ties so the
// choice is deterministic.
func MostRecentlyCreated(rules []models.AutoReplyRule) models.AutoReplyRule {
	winner := rules[0]
	for _, rule := range rules[1:] {
		if rule.CreatedAt.After(winner.CreatedAt) ||
			(rule.CreatedAt.Equal(winner.CreatedAt) && rule.ID > winner.ID) {
			winner = rule
		}
	}
	return winner
}

func rulesOfCategory(rules []models.AutoReplyRule, category string) []models.AutoReplyRule {
	var out []models.AutoReplyRule
	for _, rule := range rules {
		if rule.Category == category {
			out = append(out, rule)
		}
	}
	return out
}
