package main

import (
	"context"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	_ "github.com/hivechat/autoreply/internal/config"
	"github.com/hivechat/autoreply/internal/models"
	"github.com/hivechat/autoreply/internal/store"
)

const demoOrgID = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"

func main() {
	db, err := store.DB()
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	_, err = db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, created_at, updated_at)
		VALUES ($1, 'Hive Chat Demo', 'hive-demo', NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
	`, demoOrgID)
	if err != nil {
		log.Fatal("Failed to create organization: ", err)
	}
	fmt.Println("✅ Organization 'hive-demo' created/updated!")

	hours := store.NewBusinessHoursStore(db)
	weekdays := []store.DayIntervals{
		{Weekday: 1, Intervals: []models.Interval{{StartMinute: 9 * 60, EndMinute: 18 * 60}}},
		{Weekday: 2, Intervals: []models.Interval{{StartMinute: 9 * 60, EndMinute: 18 * 60}}},
		{Weekday: 3, Intervals: []models.Interval{{StartMinute: 9 * 60, EndMinute: 18 * 60}}},
		{Weekday: 4, Intervals: []models.Interval{{StartMinute: 9 * 60, EndMinute: 18 * 60}}},
		{Weekday: 5, Intervals: []models.Interval{{StartMinute: 9 * 60, EndMinute: 17 * 60}}},
	}
	if err := hours.Replace(ctx, demoOrgID, weekdays); err != nil {
		log.Fatal("Failed to seed business hours: ", err)
	}
	fmt.Println("✅ Business hours seeded (Mon-Fri)!")

	rules := store.NewRuleStore(db)
	seeds := []store.CreateRuleInput{
		{
			OrgID:    demoOrgID,
			Name:     "Welcome new contacts",
			Category: models.CategoryWelcome,
			ReplyLimit: &models.ReplyLimitPolicy{
				WindowAmount: 1,
				WindowUnit:   models.WindowUnitDays,
			},
		},
		{
			OrgID:    demoOrgID,
			Name:     "Pricing inquiry",
			Category: models.CategoryKeyword,
			Keywords: []string{"pricing", "quote"},
		},
		{
			OrgID:    demoOrgID,
			Name:     "After-hours fallback",
			Category: models.CategoryGeneral,
			Schedule: &models.ScheduleSpec{
				Kind: models.ScheduleNonReplyHours,
			},
			ReplyLimit: &models.ReplyLimitPolicy{
				WindowAmount: 4,
				WindowUnit:   models.WindowUnitHours,
			},
		},
	}

	for _, seed := range seeds {
		created, err := rules.Create(ctx, seed)
		if err != nil {
			log.Printf("skipping %q: %v", seed.Name, err)
			continue
		}
		if _, err := rules.Publish(ctx, demoOrgID, created.ID); err != nil {
			log.Printf("failed to publish %q: %v", seed.Name, err)
			continue
		}
		fmt.Printf("✅ Rule %q published!\n", seed.Name)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auto_reply_rules WHERE org_id = $1 AND status = 'active'`,
		demoOrgID,
	).Scan(&count); err != nil {
		log.Fatal("Failed to verify: ", err)
	}
	fmt.Printf("✅ Verified %d active rules for hive-demo\n", count)
}
