// Package schedule implements the cronograma computation: the working-day
// calendar, the greedy hour allocator and the day/month bucket views, plus
// the auto/manual derived-field plan state. Everything here is pure and
// total; callers re-run it freely on every change.
package schedule

import "time"

// DateLayout is the wire format for all schedule dates.
const DateLayout = "2006-01-02"

// WorkingDays returns every day from start to end inclusive whose weekday is
// not Sunday, in order. A start after end yields an empty sequence.
func WorkingDays(start, end time.Time) []time.Time {
	start = truncateDay(start)
	end = truncateDay(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

// SkipSunday advances a Sunday to the following Monday; any other day is
// returned unchanged.
func SkipSunday(d time.Time) time.Time {
	if d.Weekday() == time.Sunday {
		return d.AddDate(0, 0, 1)
	}
	return d
}

// AddWorkingDays steps n working days forward from start, never landing on a
// Sunday. n <= 1 returns start itself (after a Sunday shift): the first
// working day already counts as day one.
func AddWorkingDays(start time.Time, n int) time.Time {
	d := SkipSunday(truncateDay(start))
	for i := 1; i < n; i++ {
		d = SkipSunday(d.AddDate(0, 0, 1))
	}
	return d
}

// MonthWindow is one calendar-month column of the month view.
type MonthWindow struct {
	First time.Time
	Last  time.Time
}

// Contains reports whether d falls inside the window, inclusive on both ends.
func (w MonthWindow) Contains(d time.Time) bool {
	d = truncateDay(d)
	return !d.Before(w.First) && !d.After(w.Last)
}

// MonthWindows lists the calendar months spanning [start, end], one window
// per month, each covering the whole month even when start or end fall
// mid-month. Stepping runs on the first of each month: stepping from the
// start day itself would skip short months for day-29..31 starts and drop
// the final month when end falls early in it.
func MonthWindows(start, end time.Time) []MonthWindow {
	end = truncateDay(end)
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	var windows []MonthWindow
	for ; !first.After(end); first = first.AddDate(0, 1, 0) {
		windows = append(windows, MonthWindow{First: first, Last: first.AddDate(0, 1, -1)})
	}
	return windows
}

func truncateDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}
