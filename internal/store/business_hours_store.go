package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hivechat/autoreply/internal/models"
	"github.com/hivechat/autoreply/internal/schedule"
)

// DayIntervals is one weekday's business-hours intervals.
type DayIntervals struct {
	Weekday   int               `json:"weekday"`
	Intervals []models.Interval `json:"intervals"`
}

// BusinessHoursStore persists the org-level weekly interval table that
// backs reply-hours and non-reply-hours schedules.
type BusinessHoursStore struct {
	db *sql.DB
}

func NewBusinessHoursStore(db *sql.DB) *BusinessHoursStore {
	return &BusinessHoursStore{db: db}
}

// Replace swaps the org's whole table in one transaction.
func (s *BusinessHoursStore) Replace(ctx context.Context, orgID string, days []DayIntervals) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("business hours store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return err
	}
	for _, day := range days {
		if day.Weekday < 0 || day.Weekday > 6 {
			return validationErrorf("weekday out of range")
		}
		for _, interval := range day.Intervals {
			if interval.StartMinute < 0 || interval.EndMinute > 24*60 ||
				interval.StartMinute >= interval.EndMinute {
				return validationErrorf("invalid business hours interval")
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM business_hours WHERE org_id = $1`, orgID); err != nil {
		return fmt.Errorf("failed to clear business hours: %w", err)
	}

	for _, day := range days {
		for _, interval := range day.Intervals {
			_, err := tx.ExecContext(
				ctx,
				`INSERT INTO business_hours (org_id, weekday, start_minute, end_minute)
				 VALUES ($1, $2, $3, $4)`,
				orgID,
				day.Weekday,
				interval.StartMinute,
				interval.EndMinute,
			)
			if err != nil {
				return fmt.Errorf("failed to insert business hours interval: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit business hours: %w", err)
	}
	return nil
}

// WeekTable loads the org's table in the shape the schedule evaluator
// consumes.
func (s *BusinessHoursStore) WeekTable(ctx context.Context, orgID string) (schedule.WeekTable, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("business hours store is not configured")
	}
	orgID, err := requireUUID(orgID, "org_id")
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT weekday, start_minute, end_minute
		 FROM business_hours
		 WHERE org_id = $1
		 ORDER BY weekday ASC, start_minute ASC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load business hours: %w", err)
	}
	defer rows.Close()

	table := make(schedule.WeekTable)
	for rows.Next() {
		var weekday, start, end int
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan business hours row: %w", err)
		}
		day := time.Weekday(weekday)
		table[day] = append(table[day], models.Interval{StartMinute: start, EndMinute: end})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading business hours rows: %w", err)
	}
	return table, nil
}

// Days returns the table keyed by weekday int for the HTTP surface.
func (s *BusinessHoursStore) Days(ctx context.Context, orgID string) ([]DayIntervals, error) {
	table, err := s.WeekTable(ctx, orgID)
	if err != nil {
		return nil, err
	}
	days := make([]DayIntervals, 0, len(table))
	for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
		intervals, ok := table[weekday]
		if !ok {
			continue
		}
		days = append(days, DayIntervals{Weekday: int(weekday), Intervals: intervals})
	}
	return days, nil
}
