package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hivechat/autoreply/internal/models"
)

func keywordRuleInput(orgID, name string, keywords ...string) CreateRuleInput {
	return CreateRuleInput{
		OrgID:    orgID,
		Name:     name,
		Category: models.CategoryKeyword,
		Keywords: keywords,
	}
}

func TestRuleStoreCreateAndPublish(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-create-org")

	rules := NewRuleStore(db)
	created, err := rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Night owl",
		Category: models.CategoryGeneral,
		Schedule: &models.ScheduleSpec{
			Kind:            models.ScheduleDaily,
			StartMinute:     20 * 60,
			EndMinute:       2 * 60,
			CrossesMidnight: true,
		},
		ReplyLimit: &models.ReplyLimitPolicy{WindowAmount: 4, WindowUnit: models.WindowUnitHours},
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, created.Status)
	require.Equal(t, 1, created.Version)
	require.NotNil(t, created.Schedule)
	require.True(t, created.Schedule.CrossesMidnight)
	require.Nil(t, created.PublishedAt)

	published, err := rules.Publish(context.Background(), orgID, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, published.Status)
	require.NotNil(t, published.PublishedAt)

	// A published rule cannot be published again.
	_, err = rules.Publish(context.Background(), orgID, created.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	active, err := rules.ActiveRules(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, created.ID, active[0].ID)
}

func TestRuleStoreRejectsInvalidWindows(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-window-org")

	rules := NewRuleStore(db)

	// End before start without the cross-midnight flag.
	_, err := rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Broken",
		Category: models.CategoryGeneral,
		Schedule: &models.ScheduleSpec{
			Kind:        models.ScheduleDaily,
			StartMinute: 20 * 60,
			EndMinute:   2 * 60,
		},
	})
	require.Error(t, err)

	// Monthly schedules cannot cross midnight.
	_, err = rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Broken monthly",
		Category: models.CategoryGeneral,
		Schedule: &models.ScheduleSpec{
			Kind:            models.ScheduleMonthly,
			StartMinute:     20 * 60,
			EndMinute:       2 * 60,
			CrossesMidnight: true,
			MonthDates:      []int{1},
		},
	})
	require.Error(t, err)

	// Too many monthly dates.
	_, err = rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Too many dates",
		Category: models.CategoryGeneral,
		Schedule: &models.ScheduleSpec{
			Kind:        models.ScheduleMonthly,
			StartMinute: 9 * 60,
			EndMinute:   17 * 60,
			MonthDates:  []int{1, 5, 10, 15, 20, 25},
		},
	})
	require.Error(t, err)

	// Welcome rules take no schedule.
	_, err = rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Welcome with schedule",
		Category: models.CategoryWelcome,
		Schedule: &models.ScheduleSpec{Kind: models.ScheduleReplyHours},
	})
	require.Error(t, err)

	// Reply limit bounds.
	_, err = rules.Create(context.Background(), CreateRuleInput{
		OrgID:      orgID,
		Name:       "Limit too large",
		Category:   models.CategoryGeneral,
		ReplyLimit: &models.ReplyLimitPolicy{WindowAmount: 1000, WindowUnit: models.WindowUnitHours},
	})
	require.Error(t, err)
}

func TestRuleStoreKeywordUniqueness(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-keyword-org")
	otherOrgID := createTestOrganization(t, db, "rule-keyword-other-org")

	rules := NewRuleStore(db)

	first, err := rules.Create(context.Background(), keywordRuleInput(orgID, "Sale", "summer sale"))
	require.NoError(t, err)
	_, err = rules.Publish(context.Background(), orgID, first.ID)
	require.NoError(t, err)

	// Exact duplicate, case-insensitive.
	_, err = rules.Create(context.Background(), keywordRuleInput(orgID, "Dup", "Summer SALE"))
	var conflict *KeywordConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, first.ID, conflict.ConflictingRuleID)

	// Partial collision: the existing keyword contains the new one.
	_, err = rules.Create(context.Background(), keywordRuleInput(orgID, "Partial", "sale"))
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, first.ID, conflict.ConflictingRuleID)

	// Archived rules still count.
	_, err = rules.Archive(context.Background(), orgID, first.ID)
	require.NoError(t, err)
	_, err = rules.Create(context.Background(), keywordRuleInput(orgID, "Still blocked", "summer sale"))
	require.ErrorAs(t, err, &conflict)

	// Draft keywords do not count toward uniqueness yet.
	_, err = rules.Create(context.Background(), keywordRuleInput(orgID, "Draft A", "winter deal"))
	require.NoError(t, err)
	_, err = rules.Create(context.Background(), keywordRuleInput(orgID, "Draft B", "winter deal"))
	require.NoError(t, err)

	// Other orgs are unaffected.
	_, err = rules.Create(context.Background(), keywordRuleInput(otherOrgID, "Other org", "summer sale"))
	require.NoError(t, err)
}

func TestRuleStorePublishRevalidatesKeywords(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-publish-revalidate-org")

	rules := NewRuleStore(db)

	draftA, err := rules.Create(context.Background(), keywordRuleInput(orgID, "A", "flash deal"))
	require.NoError(t, err)
	draftB, err := rules.Create(context.Background(), keywordRuleInput(orgID, "B", "flash deal"))
	require.NoError(t, err)

	_, err = rules.Publish(context.Background(), orgID, draftA.ID)
	require.NoError(t, err)

	_, err = rules.Publish(context.Background(), orgID, draftB.ID)
	var conflict *KeywordConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, draftA.ID, conflict.ConflictingRuleID)
}

func TestRuleStoreWelcomeSingleton(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-welcome-org")

	rules := NewRuleStore(db)

	first, err := rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Welcome",
		Category: models.CategoryWelcome,
	})
	require.NoError(t, err)

	_, err = rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Second welcome",
		Category: models.CategoryWelcome,
	})
	require.ErrorIs(t, err, ErrWelcomeRuleExists)

	// Archiving frees the slot.
	_, err = rules.Publish(context.Background(), orgID, first.ID)
	require.NoError(t, err)
	_, err = rules.Archive(context.Background(), orgID, first.ID)
	require.NoError(t, err)

	_, err = rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Replacement welcome",
		Category: models.CategoryWelcome,
	})
	require.NoError(t, err)
}

func TestRuleStoreMonthlyDateExclusivity(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-monthly-org")

	rules := NewRuleStore(db)

	monthly := func(name string, dates ...int) CreateRuleInput {
		return CreateRuleInput{
			OrgID:    orgID,
			Name:     name,
			Category: models.CategoryGeneral,
			Schedule: &models.ScheduleSpec{
				Kind:        models.ScheduleMonthly,
				StartMinute: 9 * 60,
				EndMinute:   17 * 60,
				MonthDates:  dates,
			},
		}
	}

	first, err := rules.Create(context.Background(), monthly("Payday", 1, 15))
	require.NoError(t, err)

	_, err = rules.Create(context.Background(), monthly("Overlap", 15, 28))
	var conflict *MonthlyDateConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, 15, conflict.Date)
	require.Equal(t, first.ID, conflict.ConflictingRuleID)

	_, err = rules.Create(context.Background(), monthly("Disjoint", 7, 28))
	require.NoError(t, err)
}

func TestRuleStoreDuplicate(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-duplicate-org")

	rules := NewRuleStore(db)

	source, err := rules.Create(context.Background(), CreateRuleInput{
		OrgID:      orgID,
		Name:       "Promo",
		Category:   models.CategoryKeyword,
		Keywords:   []string{"promo"},
		ReplyLimit: &models.ReplyLimitPolicy{WindowAmount: 1, WindowUnit: models.WindowUnitDays},
	})
	require.NoError(t, err)
	_, err = rules.Publish(context.Background(), orgID, source.ID)
	require.NoError(t, err)

	duplicate, err := rules.Duplicate(context.Background(), orgID, source.ID)
	require.NoError(t, err)
	require.NotEqual(t, source.ID, duplicate.ID)
	require.Equal(t, "Promo_copy", duplicate.Name)
	require.Equal(t, []string{"promo_copy"}, duplicate.Keywords)
	require.Equal(t, models.StatusDraft, duplicate.Status)
	require.Equal(t, source.Version+1, duplicate.Version)
	require.NotNil(t, duplicate.ReplyLimit)
	require.Equal(t, source.ReplyLimit.WindowAmount, duplicate.ReplyLimit.WindowAmount)
	require.True(t, duplicate.CreatedAt.After(source.CreatedAt) || duplicate.CreatedAt.Equal(source.CreatedAt))
}

func TestRuleStoreDuplicateRejectsOnKeywordCollision(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-duplicate-collision-org")

	rules := NewRuleStore(db)

	source, err := rules.Create(context.Background(), keywordRuleInput(orgID, "Promo", "promo"))
	require.NoError(t, err)
	_, err = rules.Publish(context.Background(), orgID, source.ID)
	require.NoError(t, err)

	// An active rule whose keyword contains "promo_copy" blocks the
	// duplicate's suffixed keyword.
	blocker, err := rules.Create(context.Background(), keywordRuleInput(orgID, "Blocker", "best promo_copy deals"))
	require.NoError(t, err)
	_, err = rules.Publish(context.Background(), orgID, blocker.ID)
	require.NoError(t, err)

	_, err = rules.Duplicate(context.Background(), orgID, source.ID)
	var conflict *KeywordConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, blocker.ID, conflict.ConflictingRuleID)
	require.Equal(t, "promo_copy", conflict.Keyword)
}

func TestRuleStoreArchiveRequiresActive(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-archive-org")

	rules := NewRuleStore(db)

	draft, err := rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     "Draft only",
		Category: models.CategoryGeneral,
	})
	require.NoError(t, err)

	_, err = rules.Archive(context.Background(), orgID, draft.ID)
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = rules.Publish(context.Background(), orgID, draft.ID)
	require.NoError(t, err)
	archived, err := rules.Archive(context.Background(), orgID, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)
}

func TestRuleStoreGetByIDNotFound(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "rule-notfound-org")

	rules := NewRuleStore(db)
	_, err := rules.GetByID(context.Background(), orgID, "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11")
	require.True(t, errors.Is(err, ErrNotFound))
}
