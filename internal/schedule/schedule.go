// Package schedule decides whether a rule's time window is active at a
// given instant. Evaluation is pure and total: malformed specs are
// rejected at authoring time, and anything that still looks wrong here
// evaluates to inactive.
package schedule

import (
	"time"

	"github.com/hivechat/autoreply/internal/models"
)

const minutesPerDay = 24 * 60

// WeekTable holds an org's business-hours intervals keyed by weekday.
type WeekTable map[time.Weekday][]models.Interval

// Priority tiers used to order simultaneously active general rules.
// Lower ranks win.
const (
	RankMonthly    = 0
	RankReplyHours = 1
	RankDailyWeek  = 2
	RankUnschedule = 3
)

// Rank returns the schedule-priority tier for a spec. Rules without a
// schedule rank below every scheduled rule.
func Rank(spec *models.ScheduleSpec) int {
	if spec == nil {
		return RankUnschedule
	}
	switch spec.Kind {
	case models.ScheduleMonthly:
		return RankMonthly
	case models.ScheduleReplyHours, models.ScheduleNonReplyHours:
		return RankReplyHours
	case models.ScheduleDaily, models.ScheduleWeekly:
		return RankDailyWeek
	default:
		return RankUnschedule
	}
}

// IsActive reports whether the schedule's window covers now. A nil spec is
// always active (welcome rules carry no schedule). The business-hours
// table is consulted only for reply-hours kinds and may be nil, in
// which case no instant counts as inside business hours.
func IsActive(spec *models.ScheduleSpec, now time.Time, hours WeekTable) bool {
	if spec == nil {
		return true
	}

	minute := now.Hour()*60 + now.Minute()

	switch spec.Kind {
	case models.ScheduleDaily:
		return inWindow(spec, minute)
	case models.ScheduleWeekly:
		return weeklyActive(spec, now, minute)
	case models.ScheduleMonthly:
		return monthlyActive(spec, now, minute)
	case models.ScheduleReplyHours:
		return insideBusinessHours(hours, now.Weekday(), minute)
	case models.ScheduleNonReplyHours:
		return !insideBusinessHours(hours, now.Weekday(), minute)
	default:
		return false
	}
}

// inWindow applies the half-open [start, end) check, honoring the
// cross-midnight flag: an end numerically earlier than the start spans
// into the next calendar day.
func inWindow(spec *models.ScheduleSpec, minute int) bool {
	s, e := spec.StartMinute, spec.EndMinute
	if s < 0 || s >= minutesPerDay || e < 0 || e > minutesPerDay || s == e {
		return false
	}
	if spec.CrossesMidnight {
		if e >= s {
			return false
		}
		return minute >= s || minute < e
	}
	if e < s {
		return false
	}
	return minute >= s && minute < e
}

// weeklyActive checks the weekday set in addition to the window. For a
// cross-midnight window the weekday that must be configured is the
// window's start day, so the after-midnight tail checks yesterday.
func weeklyActive(spec *models.ScheduleSpec, now time.Time, minute int) bool {
	if len(spec.DaysOfWeek) == 0 {
		return false
	}
	if spec.CrossesMidnight {
		if !inWindow(spec, minute) {
			return false
		}
		if minute >= spec.StartMinute {
			return hasWeekday(spec.DaysOfWeek, now.Weekday())
		}
		return hasWeekday(spec.DaysOfWeek, now.AddDate(0, 0, -1).Weekday())
	}
	return hasWeekday(spec.DaysOfWeek, now.Weekday()) && inWindow(spec, minute)
}

// monthlyActive has no cross-midnight support; a spec carrying the flag
// evaluates inactive.
func monthlyActive(spec *models.ScheduleSpec, now time.Time, minute int) bool {
	if spec.CrossesMidnight {
		return false
	}
	if len(spec.MonthDates) == 0 || len(spec.MonthDates) > models.MaxMonthlyDates {
		return false
	}
	day := now.Day()
	for _, date := range spec.MonthDates {
		if date == day {
			return inWindow(spec, minute)
		}
	}
	return false
}

func insideBusinessHours(hours WeekTable, weekday time.Weekday, minute int) bool {
	if hours == nil {
		return false
	}
	for _, interval := range hours[weekday] {
		if interval.StartMinute < 0 || interval.EndMinute > minutesPerDay ||
			interval.StartMinute >= interval.EndMinute {
			continue
		}
		if minute >= interval.StartMinute && minute < interval.EndMinute {
			return true
		}
	}
	return false
}

func hasWeekday(days []int, weekday time.Weekday) bool {
	for _, day := range days {
		if day == int(weekday) {
			return true
		}
	}
	return false
}
