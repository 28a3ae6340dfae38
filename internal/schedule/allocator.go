package schedule

// Item is one activity in allocation priority order (objective order, then
// activity order within the objective).
type Item struct {
	Key         string
	Hours       int
	Responsible string
}

// EffectiveHours normalizes an hour estimate: anything below one counts as a
// single hour.
func EffectiveHours(h int) int {
	if h < 1 {
		return 1
	}
	return h
}

// sharedTrack is the capacity track used by every item without a responsible.
const sharedTrack = ""

// Allocate packs item hours into numDays working days of hoursPerDay capacity
// each, strictly in item order. Items with a responsible draw from that
// responsible's private capacity track; items without one share a common
// track. The result maps each item key to the day indices it occupies; a day
// index appears once per item no matter how many hours land on it. Hours that
// do not fit in the window are silently left unassigned.
func Allocate(items []Item, numDays, hoursPerDay int) map[string][]int {
	res := make(map[string][]int, len(items))
	if hoursPerDay < 1 {
		hoursPerDay = 1
	}
	occupied := map[string][]int{}
	track := func(name string) []int {
		t, ok := occupied[name]
		if !ok {
			t = make([]int, numDays)
			occupied[name] = t
		}
		return t
	}
	for _, it := range items {
		res[it.Key] = allocateItem(track(it.Responsible), EffectiveHours(it.Hours), hoursPerDay)
	}
	return res
}

func allocateItem(occupied []int, remaining, hoursPerDay int) []int {
	var days []int
	for day := 0; day < len(occupied) && remaining > 0; day++ {
		available := hoursPerDay - occupied[day]
		if available <= 0 {
			continue
		}
		take := available
		if remaining < take {
			take = remaining
		}
		occupied[day] += take
		remaining -= take
		days = append(days, day)
	}
	return days
}

// DaysNeeded is the working-day count required to burn totalHours at
// hoursPerDay capacity: ceiling division, never less than one day for a
// positive total.
func DaysNeeded(totalHours, hoursPerDay int) int {
	if totalHours <= 0 {
		return 0
	}
	if hoursPerDay < 1 {
		hoursPerDay = 1
	}
	return (totalHours + hoursPerDay - 1) / hoursPerDay
}
