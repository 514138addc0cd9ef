package service

import (
	"fmt"
	"time"

	"ridequery/internal/model"
)

// DateRange is an inclusive pair of calendar dates at midnight in the anchor's location
type DateRange struct {
	From time.Time
	To   time.Time
}

// ResolveRelativeRange maps a relative token to calendar-date bounds anchored to now.
// Weeks run Monday to Sunday. Unknown tokens return ok == false.
func ResolveRelativeRange(token string, now time.Time) (DateRange, bool) {
	today := startOfDay(now)
	// Days since Monday: Monday 0 ... Sunday 6
	iso := (int(today.Weekday()) + 6) % 7

	switch token {
	case model.RelativeToday:
		return DateRange{From: today, To: today}, true
	case model.RelativeTomorrow:
		d := today.AddDate(0, 0, 1)
		return DateRange{From: d, To: d}, true
	case model.RelativeThisWeekend:
		sat := today.AddDate(0, 0, 5-iso)
		return DateRange{From: sat, To: sat.AddDate(0, 0, 1)}, true
	case model.RelativeThisWeek:
		return DateRange{From: today, To: today.AddDate(0, 0, 6-iso)}, true
	case model.RelativeNextWeek:
		mon := today.AddDate(0, 0, 7-iso)
		return DateRange{From: mon, To: mon.AddDate(0, 0, 6)}, true
	}
	return DateRange{}, false
}

// ParseCalendarDate parses a YYYY-MM-DD date at midnight in loc
func ParseCalendarDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid calendar date %q: %w", s, err)
	}
	return t, nil
}

// DescribeRange names a resolved date window for narratives ("this weekend", "on 17 Oct")
func DescribeRange(q *model.DateQuery, r DateRange) string {
	if q != nil {
		switch q.Relative {
		case model.RelativeToday:
			return "today"
		case model.RelativeTomorrow:
			return "tomorrow"
		case model.RelativeThisWeekend:
			return "this weekend"
		case model.RelativeThisWeek:
			return "this week"
		case model.RelativeNextWeek:
			return "next week"
		}
	}

	switch {
	case !r.From.IsZero() && !r.To.IsZero() && r.From.Equal(r.To):
		return "on " + r.From.Format("Mon 2 Jan")
	case !r.From.IsZero() && !r.To.IsZero():
		return fmt.Sprintf("between %s and %s", r.From.Format("2 Jan"), r.To.Format("2 Jan"))
	case !r.From.IsZero():
		return "from " + r.From.Format("2 Jan")
	case !r.To.IsZero():
		return "until " + r.To.Format("2 Jan")
	}
	return "for those dates"
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}
