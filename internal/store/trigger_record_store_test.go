package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hivechat/autoreply/internal/models"
)

func createActiveTestRule(t *testing.T, rules *RuleStore, orgID, name string) *models.AutoReplyRule {
	t.Helper()
	created, err := rules.Create(context.Background(), CreateRuleInput{
		OrgID:    orgID,
		Name:     name,
		Category: models.CategoryGeneral,
	})
	require.NoError(t, err)
	published, err := rules.Publish(context.Background(), orgID, created.ID)
	require.NoError(t, err)
	return published
}

func TestTriggerRecordStoreAppendAndLastFired(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "trigger-append-org")
	rule := createActiveTestRule(t, NewRuleStore(db), orgID, "General")

	records := NewTriggerRecordStore(db)

	last, err := records.LastFired(context.Background(), rule.ID, "contact-1")
	require.NoError(t, err)
	require.Nil(t, last)

	firedAt := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	inserted, err := records.Append(context.Background(), models.TriggerRecord{
		OrgID:        orgID,
		BotID:        "bot-1",
		ContactID:    "contact-1",
		RuleID:       rule.ID,
		FiredAt:      firedAt,
		WindowBucket: 1,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	last, err = records.LastFired(context.Background(), rule.ID, "contact-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	require.True(t, last.Equal(firedAt))

	// Later firing in a new bucket becomes the new last.
	later := firedAt.Add(2 * time.Hour)
	inserted, err = records.Append(context.Background(), models.TriggerRecord{
		OrgID:        orgID,
		ContactID:    "contact-1",
		RuleID:       rule.ID,
		FiredAt:      later,
		WindowBucket: 2,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	last, err = records.LastFired(context.Background(), rule.ID, "contact-1")
	require.NoError(t, err)
	require.True(t, last.Equal(later))
}

func TestTriggerRecordStoreConditionalInsert(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "trigger-conflict-org")
	rule := createActiveTestRule(t, NewRuleStore(db), orgID, "General")

	records := NewTriggerRecordStore(db)

	record := models.TriggerRecord{
		OrgID:        orgID,
		ContactID:    "contact-1",
		RuleID:       rule.ID,
		FiredAt:      time.Now().UTC(),
		WindowBucket: 42,
	}

	inserted, err := records.Append(context.Background(), record)
	require.NoError(t, err)
	require.True(t, inserted)

	// Same window bucket: insert is refused, no error.
	inserted, err = records.Append(context.Background(), record)
	require.NoError(t, err)
	require.False(t, inserted)

	// Different contact in the same bucket is fine.
	record.ContactID = "contact-2"
	inserted, err = records.Append(context.Background(), record)
	require.NoError(t, err)
	require.True(t, inserted)

	var count int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM trigger_records WHERE rule_id = $1`, rule.ID,
	).Scan(&count))
	require.Equal(t, 2, count)
}

func TestTriggerRecordStoreListByRule(t *testing.T) {
	db := openTestDB(t)
	orgID := createTestOrganization(t, db, "trigger-list-org")
	ruleStore := NewRuleStore(db)
	rule := createActiveTestRule(t, ruleStore, orgID, "General")
	other := createActiveTestRule(t, ruleStore, orgID, "Other")

	records := NewTriggerRecordStore(db)
	base := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := records.Append(context.Background(), models.TriggerRecord{
			OrgID:        orgID,
			ContactID:    "contact-1",
			RuleID:       rule.ID,
			FiredAt:      base.Add(time.Duration(i) * time.Hour),
			WindowBucket: int64(i),
		})
		require.NoError(t, err)
	}
	_, err := records.Append(context.Background(), models.TriggerRecord{
		OrgID:        orgID,
		ContactID:    "contact-1",
		RuleID:       other.ID,
		FiredAt:      base,
		WindowBucket: 0,
	})
	require.NoError(t, err)

	listed, err := records.ListByRule(context.Background(), orgID, rule.ID, 10)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	// Newest first.
	require.True(t, listed[0].FiredAt.After(listed[1].FiredAt))
	require.True(t, listed[1].FiredAt.After(listed[2].FiredAt))
}
