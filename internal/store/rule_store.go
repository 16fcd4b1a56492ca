package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hivechat/autoreply/internal/models"
)

var ruleCategories = map[string]struct{}{
	models.CategoryWelcome: {},
	models.CategoryKeyword: {},
	models.CategoryGeneral: {},
}

var scheduleKinds = map[string]struct{}{
	models.ScheduleDaily:         {},
	models.ScheduleWeekly:        {},
	models.ScheduleMonthly:       {},
	models.ScheduleReplyHours:    {},
	models.ScheduleNonReplyHours: {},
}

// KeywordConflictError reports a keyword-uniqueness violation along
// with the rule that owns the colliding keyword.
type KeywordConflictError struct {
	Keyword           string
	ConflictingRuleID string
}

func (e *KeywordConflictError) Error() string {
	return fmt.Sprintf("keyword %q conflicts with rule %s", e.Keyword, e.ConflictingRuleID)
}

// MonthlyDateConflictError reports a monthly schedule sharing a
// calendar date with another rule.
type MonthlyDateConflictError struct {
	Date              int
	ConflictingRuleID string
}

func (e *MonthlyDateConflictError) Error() string {
	return fmt.Sprintf("monthly date %d conflicts with rule %s", e.Date, e.ConflictingRuleID)
}

// ErrWelcomeRuleExists is returned when an org already has a
// non-archived welcome rule.
var ErrWelcomeRuleExists = errors.New("org already has a welcome rule")

// CreateRuleInput carries everything needed to create a draft rule.
type CreateRuleInput struct {
	OrgID      string
	Name       string
	Category   string
	Keywords   []string
	Schedule   *models.ScheduleSpec
	ReplyLimit *models.ReplyLimitPolicy
}

// RuleStore persists auto-reply rules and enforces the authoring
// invariants: keyword uniqueness, the single-welcome-rule constraint,
// monthly date exclusivity and post-publish immutability.
type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

const ruleColumns = `
	id,
	org_id,
	name,
	category,
	status,
	keywords,
	schedule_kind,
	start_minute,
	end_minute,
	crosses_midnight,
	days_of_week,
	month_dates,
	reply_window_amount,
	reply_window_unit,
	version,
	created_at,
	updated_at,
	published_at,
	archived_at`

// Create inserts a new Draft rule after validating content, schedule
// and reply-limit shape plus the cross-rule uniqueness invariants.
func (s *RuleStore) Create(ctx context.Context, input CreateRuleInput) (*models.AutoReplyRule, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("rule store is not configured")
	}

	orgID, err := requireUUID(input.OrgID, "org_id")
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationErrorf("name is required")
	}

	category := strings.TrimSpace(strings.ToLower(input.Category))
	if _, ok := ruleCategories[category]; !ok {
		return nil, validationErrorf("invalid category")
	}

	keywords, err := normalizeKeywords(category, input.Keywords)
	if err != nil {
		return nil, err
	}
	if err := validateSchedule(category, input.Schedule); err != nil {
		return nil, err
	}
	if err := validateReplyLimit(input.ReplyLimit); err != nil {
		return nil, err
	}

	if err := s.checkKeywordUniqueness(ctx, orgID, keywords); err != nil {
		return nil, err
	}
	if category == models.CategoryWelcome {
		if err := s.checkWelcomeSingleton(ctx, orgID, ""); err != nil {
			return nil, err
		}
	}
	if input.Schedule != nil && input.Schedule.Kind == models.ScheduleMonthly {
		if err := s.checkMonthlyDates(ctx, orgID, input.Schedule.MonthDates, ""); err != nil {
			return nil, err
		}
	}

	return s.insert(ctx, orgID, name, category, keywords, input.Schedule, input.ReplyLimit, 1)
}

func (s *RuleStore) insert(
	ctx context.Context,
	orgID, name, category string,
	keywords []string,
	schedule *models.ScheduleSpec,
	limit *models.ReplyLimitPolicy,
	version int,
) (*models.AutoReplyRule, error) {
	var (
		scheduleKind    interface{}
		startMinute     interface{}
		endMinute       interface{}
		crossesMidnight interface{}
		daysOfWeek      interface{}
		monthDates      interface{}
	)
	if schedule != nil {
		scheduleKind = schedule.Kind
		startMinute = schedule.StartMinute
		endMinute = schedule.EndMinute
		crossesMidnight = schedule.CrossesMidnight
		if len(schedule.DaysOfWeek) > 0 {
			daysOfWeek = pq.Array(schedule.DaysOfWeek)
		}
		if len(schedule.MonthDates) > 0 {
			monthDates = pq.Array(schedule.MonthDates)
		}
	}

	var windowAmount, windowUnit interface{}
	if limit != nil {
		windowAmount = limit.WindowAmount
		windowUnit = limit.WindowUnit
	}

	row := s.db.QueryRowContext(
		ctx,
		`INSERT INTO auto_reply_rules (
			org_id,
			name,
			category,
			status,
			keywords,
			schedule_kind,
			start_minute,
			end_minute,
			crosses_midnight,
			days_of_week,
			month_dates,
			reply_window_amount,
			reply_window_unit,
			version
		) VALUES (
			$1, $2, $3, 'draft', $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING`+ruleColumns,
		orgID,
		name,
		category,
		pq.Array(keywords),
		scheduleKind,
		startMinute,
		endMinute,
		crossesMidnight,
		daysOfWeek,
		monthDates,
		windowAmount,
		windowUnit,
		version,
	)

	rule, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return &rule, nil
}

func (s *RuleStore) GetByID(ctx context.Context, orgID, ruleID string) (*models.AutoReplyRule, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("rule store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return nil, err
	}
	ruleID, err = requireUUID(ruleID, "rule_id")
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT`+ruleColumns+`
		 FROM auto_reply_rules
		 WHERE org_id = $1 AND id = $2`,
		orgID,
		ruleID,
	)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return &rule, nil
}

// List returns the org's rules, optionally filtered by status, newest
// first.
func (s *RuleStore) List(ctx context.Context, orgID, status string) ([]models.AutoReplyRule, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("rule store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if status = strings.TrimSpace(strings.ToLower(status)); status != "" {
		if status != models.StatusDraft && status != models.StatusActive && status != models.StatusArchived {
			return nil, validationErrorf("invalid status")
		}
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT`+ruleColumns+`
			 FROM auto_reply_rules
			 WHERE org_id = $1 AND status = $2
			 ORDER BY created_at DESC, id DESC`,
			orgID,
			status,
		)
	} else {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT`+ruleColumns+`
			 FROM auto_reply_rules
			 WHERE org_id = $1
			 ORDER BY created_at DESC, id DESC`,
			orgID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// ActiveRules returns the published rule set the resolver evaluates.
func (s *RuleStore) ActiveRules(ctx context.Context, orgID string) ([]models.AutoReplyRule, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("rule store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT`+ruleColumns+`
		 FROM auto_reply_rules
		 WHERE org_id = $1 AND status = 'active'
		 ORDER BY created_at ASC, id ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// Publish transitions a Draft rule to Active, freezing its category,
// keywords and schedule. The uniqueness invariants are re-checked so a
// draft cannot slip a collision past a concurrent publish.
func (s *RuleStore) Publish(ctx context.Context, orgID, ruleID string) (*models.AutoReplyRule, error) {
	rule, err := s.GetByID(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.Status != models.StatusDraft {
		return nil, ErrInvalidStatus
	}

	if err := s.checkKeywordUniquenessExcluding(ctx, rule.OrgID, rule.Keywords, rule.ID); err != nil {
		return nil, err
	}
	if rule.Category == models.CategoryWelcome {
		if err := s.checkWelcomeSingleton(ctx, rule.OrgID, rule.ID); err != nil {
			return nil, err
		}
	}
	if rule.Schedule != nil && rule.Schedule.Kind == models.ScheduleMonthly {
		if err := s.checkMonthlyDates(ctx, rule.OrgID, rule.Schedule.MonthDates, rule.ID); err != nil {
			return nil, err
		}
	}

	row := s.db.QueryRowContext(
		ctx,
		`UPDATE auto_reply_rules
		 SET status = 'active',
		     published_at = NOW(),
		     updated_at = NOW()
		 WHERE org_id = $1 AND id = $2 AND status = 'draft'
		 RETURNING`+ruleColumns,
		rule.OrgID,
		rule.ID,
	)
	updated, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidStatus
	}
	if err != nil {
		return nil, fmt.Errorf("failed to publish rule: %w", err)
	}
	return &updated, nil
}

// Archive removes an Active rule from evaluation. Its keywords keep
// counting toward uniqueness checks.
func (s *RuleStore) Archive(ctx context.Context, orgID, ruleID string) (*models.AutoReplyRule, error) {
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return nil, err
	}
	ruleID, err = requireUUID(ruleID, "rule_id")
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(
		ctx,
		`UPDATE auto_reply_rules
		 SET status = 'archived',
		     archived_at = NOW(),
		     updated_at = NOW()
		 WHERE org_id = $1 AND id = $2 AND status = 'active'
		 RETURNING`+ruleColumns,
		orgID,
		ruleID,
	)
	updated, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing rule from a bad transition.
		if _, getErr := s.GetByID(ctx, orgID, ruleID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidStatus
	}
	if err != nil {
		return nil, fmt.Errorf("failed to archive rule: %w", err)
	}
	return &updated, nil
}

// Duplicate clones a rule of any status into a fresh Draft with "_copy"
// appended to the name and to every keyword. The copy goes through the
// same uniqueness validation as a new rule and the operation fails,
// surfacing the conflicting rule, rather than renaming further.
func (s *RuleStore) Duplicate(ctx context.Context, orgID, ruleID string) (*models.AutoReplyRule, error) {
	source, err := s.GetByID(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}

	copied := make([]string, len(source.Keywords))
	for i, keyword := range source.Keywords {
		copied[i] = keyword + "_copy"
	}

	if err := s.checkKeywordUniqueness(ctx, source.OrgID, copied); err != nil {
		return nil, err
	}
	if source.Category == models.CategoryWelcome {
		if err := s.checkWelcomeSingleton(ctx, source.OrgID, ""); err != nil {
			return nil, err
		}
	}
	if source.Schedule != nil && source.Schedule.Kind == models.ScheduleMonthly {
		if err := s.checkMonthlyDates(ctx, source.OrgID, source.Schedule.MonthDates, ""); err != nil {
			return nil, err
		}
	}

	return s.insert(
		ctx,
		source.OrgID,
		source.Name+"_copy",
		source.Category,
		copied,
		source.Schedule,
		source.ReplyLimit,
		source.Version+1,
	)
}

// checkKeywordUniqueness rejects a keyword that equals an existing
// Active or Archived rule's keyword, or that an existing keyword
// contains as a substring (case-insensitive). A message aimed at the
// new keyword would otherwise also hit the existing rule.
func (s *RuleStore) checkKeywordUniqueness(ctx context.Context, orgID string, keywords []string) error {
	return s.checkKeywordUniquenessExcluding(ctx, orgID, keywords, "")
}

func (s *RuleStore) checkKeywordUniquenessExcluding(ctx context.Context, orgID string, keywords []string, excludeRuleID string) error {
	if len(keywords) == 0 {
		return nil
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, keywords
		 FROM auto_reply_rules
		 WHERE org_id = $1
		   AND status IN ('active', 'archived')
		   AND cardinality(keywords) > 0`,
		orgID,
	)
	if err != nil {
		return fmt.Errorf("failed to load keywords for uniqueness check: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       string
			existing pq.StringArray
		)
		if err := rows.Scan(&id, &existing); err != nil {
			return fmt.Errorf("failed to scan keyword row: %w", err)
		}
		if id == excludeRuleID {
			continue
		}
		for _, theirs := range existing {
			theirsLower := strings.ToLower(strings.TrimSpace(theirs))
			if theirsLower == "" {
				continue
			}
			for _, ours := range keywords {
				oursLower := strings.ToLower(ours)
				if oursLower == theirsLower || strings.Contains(theirsLower, oursLower) {
					return &KeywordConflictError{Keyword: ours, ConflictingRuleID: id}
				}
			}
		}
	}
	return rows.Err()
}

func (s *RuleStore) checkWelcomeSingleton(ctx context.Context, orgID, excludeRuleID string) error {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*)
		 FROM auto_reply_rules
		 WHERE org_id = $1
		   AND category = 'welcome'
		   AND status != 'archived'
		   AND id::text != $2`,
		orgID,
		excludeRuleID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count welcome rules: %w", err)
	}
	if count > 0 {
		return ErrWelcomeRuleExists
	}
	return nil
}

func (s *RuleStore) checkMonthlyDates(ctx context.Context, orgID string, dates []int, excludeRuleID string) error {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, month_dates
		 FROM auto_reply_rules
		 WHERE org_id = $1
		   AND schedule_kind = 'monthly'
		   AND status != 'archived'
		   AND id::text != $2`,
		orgID,
		excludeRuleID,
	)
	if err != nil {
		return fmt.Errorf("failed to load monthly rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       string
			existing pq.Int64Array
		)
		if err := rows.Scan(&id, &existing); err != nil {
			return fmt.Errorf("failed to scan monthly rule row: %w", err)
		}
		for _, theirs := range existing {
			for _, ours := range dates {
				if int(theirs) == ours {
					return &MonthlyDateConflictError{Date: ours, ConflictingRuleID: id}
				}
			}
		}
	}
	return rows.Err()
}

func normalizeKeywords(category string, keywords []string) ([]string, error) {
	if category != models.CategoryKeyword {
		if len(keywords) > 0 {
			return nil, validationErrorf("keywords are only allowed on keyword rules")
		}
		return []string{}, nil
	}

	if len(keywords) == 0 {
		return nil, validationErrorf("keyword rules require at least one keyword")
	}

	seen := make(map[string]struct{}, len(keywords))
	normalized := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		trimmed := strings.TrimSpace(keyword)
		if trimmed == "" {
			return nil, validationErrorf("keywords must not be empty")
		}
		lower := strings.ToLower(trimmed)
		if _, dup := seen[lower]; dup {
			return nil, validationErrorf("duplicate keyword %q within rule", trimmed)
		}
		seen[lower] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized, nil
}

func validateSchedule(category string, spec *models.ScheduleSpec) error {
	if spec == nil {
		return nil
	}
	if category == models.CategoryWelcome {
		return validationErrorf("welcome rules do not take a schedule")
	}
	if _, ok := scheduleKinds[spec.Kind]; !ok {
		return validationErrorf("invalid schedule kind")
	}

	switch spec.Kind {
	case models.ScheduleReplyHours, models.ScheduleNonReplyHours:
		return nil
	}

	if spec.StartMinute < 0 || spec.StartMinute >= 24*60 {
		return validationErrorf("start_minute out of range")
	}
	if spec.EndMinute < 0 || spec.EndMinute > 24*60 {
		return validationErrorf("end_minute out of range")
	}
	if spec.StartMinute == spec.EndMinute {
		return validationErrorf("schedule window is empty")
	}

	switch spec.Kind {
	case models.ScheduleDaily, models.ScheduleWeekly:
		if spec.EndMinute < spec.StartMinute && !spec.CrossesMidnight {
			return validationErrorf("end before start requires the cross-midnight flag")
		}
		if spec.CrossesMidnight && spec.EndMinute >= spec.StartMinute {
			return validationErrorf("cross-midnight flag requires end before start")
		}
		if spec.Kind == models.ScheduleWeekly {
			if len(spec.DaysOfWeek) == 0 {
				return validationErrorf("weekly schedules require at least one weekday")
			}
			for _, day := range spec.DaysOfWeek {
				if day < 0 || day > 6 {
					return validationErrorf("weekday out of range")
				}
			}
		}
	case models.ScheduleMonthly:
		if spec.CrossesMidnight || spec.EndMinute < spec.StartMinute {
			return validationErrorf("monthly schedules cannot cross midnight")
		}
		if len(spec.MonthDates) == 0 || len(spec.MonthDates) > models.MaxMonthlyDates {
			return validationErrorf("monthly schedules take 1 to %d dates", models.MaxMonthlyDates)
		}
		seen := make(map[int]struct{}, len(spec.MonthDates))
		for _, date := range spec.MonthDates {
			if date < 1 || date > 31 {
				return validationErrorf("month date out of range")
			}
			if _, dup := seen[date]; dup {
				return validationErrorf("duplicate month date %d", date)
			}
			seen[date] = struct{}{}
		}
	}
	return nil
}

func validateReplyLimit(limit *models.ReplyLimitPolicy) error {
	if limit == nil {
		return nil
	}
	if limit.WindowAmount < 1 || limit.WindowAmount > 999 {
		return validationErrorf("reply limit window amount must be between 1 and 999")
	}
	if limit.WindowUnit != models.WindowUnitHours && limit.WindowUnit != models.WindowUnitDays {
		return validationErrorf("reply limit window unit must be hours or days")
	}
	return nil
}

func collectRules(rows *sql.Rows) ([]models.AutoReplyRule, error) {
	rules := make([]models.AutoReplyRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading rule rows: %w", err)
	}
	return rules, nil
}

func scanRule(scanner interface{ Scan(...any) error }) (models.AutoReplyRule, error) {
	var (
		rule            models.AutoReplyRule
		keywords        pq.StringArray
		scheduleKind    sql.NullString
		startMinute     sql.NullInt32
		endMinute       sql.NullInt32
		crossesMidnight sql.NullBool
		daysOfWeek      pq.Int64Array
		monthDates      pq.Int64Array
		windowAmount    sql.NullInt32
		windowUnit      sql.NullString
		publishedAt     sql.NullTime
		archivedAt      sql.NullTime
	)

	err := scanner.Scan(
		&rule.ID,
		&rule.OrgID,
		&rule.Name,
		&rule.Category,
		&rule.Status,
		&keywords,
		&scheduleKind,
		&startMinute,
		&endMinute,
		&crossesMidnight,
		&daysOfWeek,
		&monthDates,
		&windowAmount,
		&windowUnit,
		&rule.Version,
		&rule.CreatedAt,
		&rule.UpdatedAt,
		&publishedAt,
		&archivedAt,
	)
	if err != nil {
		return models.AutoReplyRule{}, err
	}

	rule.Keywords = []string(keywords)

	if scheduleKind.Valid {
		spec := &models.ScheduleSpec{
			Kind:            scheduleKind.String,
			StartMinute:     int(startMinute.Int32),
			EndMinute:       int(endMinute.Int32),
			CrossesMidnight: crossesMidnight.Valid && crossesMidnight.Bool,
		}
		for _, day := range daysOfWeek {
			spec.DaysOfWeek = append(spec.DaysOfWeek, int(day))
		}
		for _, date := range monthDates {
			spec.MonthDates = append(spec.MonthDates, int(date))
		}
		rule.Schedule = spec
	}

	if windowAmount.Valid && windowUnit.Valid {
		rule.ReplyLimit = &models.ReplyLimitPolicy{
			WindowAmount: int(windowAmount.Int32),
			WindowUnit:   windowUnit.String,
		}
	}

	if publishedAt.Valid {
		value := publishedAt.Time
		rule.PublishedAt = &value
	}
	if archivedAt.Valid {
		value := archivedAt.Time
		rule.ArchivedAt = &value
	}

	return rule, nil
}
