// ABOUTME: Time helpers for ledger listings: period cutoffs and short relative ages
// ABOUTME: All functions take the reference time explicitly so output is reproducible

package timeutil

import (
	"fmt"
	"time"
)

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the most recent Sunday.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// ParsePeriod converts "today", "yesterday", "week" or "month" to the start of
// that period relative to now. Any other value is treated as a Go duration
// ("48h") counted back from now.
func ParsePeriod(period string, now time.Time) (time.Time, error) {
	switch period {
	case "today":
		return StartOfDay(now), nil
	case "yesterday":
		return StartOfDay(now).AddDate(0, 0, -1), nil
	case "week":
		return StartOfWeek(now), nil
	case "month":
		return StartOfMonth(now), nil
	}

	d, err := time.ParseDuration(period)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("unknown period %q (want today, yesterday, week, month or a duration)", period)
	}
	return now.Add(-d), nil
}

// Ago formats the distance from t to now as "just now", "5m ago", "3h ago"
// or "2d ago". Zero times render as "never".
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}
