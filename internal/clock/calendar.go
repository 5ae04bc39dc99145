package clock

import "time"

// DateLayout is the SQL DATE form used for scheduled_date comparisons.
const DateLayout = "2006-01-02"

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// Tomorrow returns the day after now's calendar date in loc.
func Tomorrow(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc).Format(DateLayout)
}

// MonthRange returns [first day of month, first day of next month) in loc.
func MonthRange(now time.Time, loc *time.Location) (string, string) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start.Format(DateLayout), start.AddDate(0, 1, 0).Format(DateLayout)
}

// YearMonth returns the YYYY-MM key of now in loc.
func YearMonth(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01")
}
