package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hivechat/autoreply/internal/models"
)

// TriggerRecordStore is the append-only trigger log. It doubles as the
// rate limiter's history read path and as the reporting feed.
type TriggerRecordStore struct {
	db *sql.DB
}

func NewTriggerRecordStore(db *sql.DB) *TriggerRecordStore {
	return &TriggerRecordStore{db: db}
}

// Append writes one firing outcome. The insert is conditional on the
// (rule, contact, window bucket) unique key so two concurrent events in
// the same rate-limit window cannot both be recorded; it reports
// whether a row was actually written.
func (s *TriggerRecordStore) Append(ctx context.Context, record models.TriggerRecord) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("trigger record store is not configured")
	}
	orgID, err := requireUUID(record.OrgID, "org_id")
	if err != nil {
		return false, err
	}
	ruleID, err := requireUUID(record.RuleID, "rule_id")
	if err != nil {
		return false, err
	}
	if record.ContactID == "" {
		return false, fmt.Errorf("contact_id is required")
	}
	firedAt := record.FiredAt
	if firedAt.IsZero() {
		firedAt = time.Now().UTC()
	}

	var id string
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO trigger_records (org_id, bot_id, contact_id, rule_id, fired_at, window_bucket)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (rule_id, contact_id, window_bucket) DO NOTHING
		 RETURNING id`,
		orgID,
		record.BotID,
		record.ContactID,
		ruleID,
		firedAt,
		record.WindowBucket,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		// Another writer already owns this window bucket.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to append trigger record: %w", err)
	}
	return true, nil
}

// LastFired returns the latest firing instant for the (rule, contact)
// pair, or nil when the pair has no history.
func (s *TriggerRecordStore) LastFired(ctx context.Context, ruleID, contactID string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trigger record store is not configured")
	}
	ruleID, err := requireUUID(ruleID, "rule_id")
	if err != nil {
		return nil, err
	}
	if contactID == "" {
		return nil, fmt.Errorf("contact_id is required")
	}

	var firedAt time.Time
	err = s.db.QueryRowContext(
		ctx,
		`SELECT fired_at
		 FROM trigger_records
		 WHERE rule_id = $1 AND contact_id = $2
		 ORDER BY fired_at DESC
		 LIMIT 1`,
		ruleID,
		contactID,
	).Scan(&firedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last fired time: %w", err)
	}
	return &firedAt, nil
}

// ListByRule returns a rule's trigger history, newest first, for
// reporting.
func (s *TriggerRecordStore) ListByRule(ctx context.Context, orgID, ruleID string, limit int) ([]models.TriggerRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trigger record store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return nil, err
	}
	ruleID, err = requireUUID(ruleID, "rule_id")
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, org_id, bot_id, contact_id, rule_id, fired_at, window_bucket
		 FROM trigger_records
		 WHERE org_id = $1 AND rule_id = $2
		 ORDER BY fired_at DESC, id DESC
		 LIMIT $3`,
		orgID,
		ruleID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger records: %w", err)
	}
	defer rows.Close()

	records := make([]models.TriggerRecord, 0)
	for rows.Next() {
		var record models.TriggerRecord
		err := rows.Scan(
			&record.ID,
			&record.OrgID,
			&record.BotID,
			&record.ContactID,
			&record.RuleID,
			&record.FiredAt,
			&record.WindowBucket,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading trigger record rows: %w", err)
	}
	return records, nil
}
