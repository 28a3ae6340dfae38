package schedule

import "time"

// View selects which bucket aggregation drives the cronograma rendering.
// The values are wire-stable.
const (
	ViewMonths = "meses"
	ViewDays   = "dias"
	ViewHours  = "horas"
)

// ValidView reports whether v names one of the three cronograma views.
func ValidView(v string) bool {
	return v == ViewMonths || v == ViewDays || v == ViewHours
}

// DayBuckets is the day view: each allocated day-sequence index is itself the
// display column, so the allocator output passes through unchanged.
func DayBuckets(allocation map[string][]int) map[string][]int {
	return allocation
}

// MonthBuckets projects a day-index allocation onto calendar-month columns.
// An item maps to a month window index when at least one of its allocated
// working days falls inside that window. Items may land in zero, one or many
// windows, consecutive or not.
func MonthBuckets(allocation map[string][]int, days []time.Time, windows []MonthWindow) map[string][]int {
	res := make(map[string][]int, len(allocation))
	for key, dayIdxs := range allocation {
		seen := make([]bool, len(windows))
		var months []int
		for _, di := range dayIdxs {
			if di < 0 || di >= len(days) {
				continue
			}
			for wi, w := range windows {
				if seen[wi] || !w.Contains(days[di]) {
					continue
				}
				seen[wi] = true
				months = append(months, wi)
			}
		}
		res[key] = months
	}
	return res
}
