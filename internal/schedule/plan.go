package schedule

import "time"

// Field modes for the two derived fields of a plan.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

const (
	MinHoursPerDay     = 1
	MaxHoursPerDay     = 24
	DefaultHoursPerDay = 6
)

// PlanActivity is one row of the plan, in objective-then-activity order.
type PlanActivity struct {
	Key         string
	Hours       int
	Responsible string
}

// Plan is the single source of truth for the cronograma parameters. The end
// date and total hours are derived while their mode is auto and frozen while
// manual; all mutations go through the methods below, which re-derive the
// dependent fields so the struct is always internally consistent. No method
// can fail: invalid input is clamped or ignored.
type Plan struct {
	StartDate      time.Time
	EndDate        time.Time
	HoursPerDay    int
	TotalHours     int
	EndDateMode    string
	TotalHoursMode string
	Activities     []PlanActivity

	// snapshot of per-activity hours taken when total hours went manual,
	// reinstated by RestoreTotalHours.
	snapshot map[string]int
}

// NewPlan returns an all-auto plan starting at start (shifted off Sunday)
// with the default capacity.
func NewPlan(start time.Time) *Plan {
	p := &Plan{
		StartDate:      SkipSunday(start),
		HoursPerDay:    DefaultHoursPerDay,
		EndDateMode:    ModeAuto,
		TotalHoursMode: ModeAuto,
	}
	p.recompute()
	return p
}

// SetStartDate moves the start, shifting a Sunday to Monday and re-deriving
// the end date when it is auto. A manual end date earlier than the new start
// is clamped up to the start.
func (p *Plan) SetStartDate(d time.Time) {
	p.StartDate = SkipSunday(d)
	p.recompute()
}

// SetEndDate is the user override: switches the end date to manual. Dates
// before the start are clamped to the start.
func (p *Plan) SetEndDate(d time.Time) {
	p.EndDateMode = ModeManual
	if d.Before(p.StartDate) {
		d = p.StartDate
	}
	p.EndDate = d
}

// ResetEndDate returns the end date to auto and recomputes it.
func (p *Plan) ResetEndDate() {
	p.EndDateMode = ModeAuto
	p.recompute()
}

// SetHoursPerDay clamps the capacity into [1,24] and re-derives.
func (p *Plan) SetHoursPerDay(h int) {
	if h < MinHoursPerDay {
		h = MinHoursPerDay
	}
	if h > MaxHoursPerDay {
		h = MaxHoursPerDay
	}
	p.HoursPerDay = h
	p.recompute()
}

// SetTotalHours is the user override for total hours. On the transition from
// auto the current per-activity hour map is snapshotted for a later restore;
// the entered total is then spread evenly across the activities (base =
// floor(total/count), the first remainder activities get one extra) so the
// table stays numerically consistent with the total. Totals below one are
// ignored.
func (p *Plan) SetTotalHours(total int) {
	if total < 1 {
		return
	}
	if p.TotalHoursMode == ModeAuto {
		p.snapshot = make(map[string]int, len(p.Activities))
		for _, a := range p.Activities {
			p.snapshot[a.Key] = a.Hours
		}
	}
	p.TotalHoursMode = ModeManual
	p.TotalHours = total
	p.redistribute(total)
	p.recompute()
}

// RestoreTotalHours reinstates the snapshotted per-activity hours and
// returns total hours to auto. Activities added since the snapshot keep
// their current hours.
func (p *Plan) RestoreTotalHours() {
	if p.snapshot != nil {
		for i := range p.Activities {
			if h, ok := p.snapshot[p.Activities[i].Key]; ok {
				p.Activities[i].Hours = h
			}
		}
		p.snapshot = nil
	}
	p.TotalHoursMode = ModeAuto
	p.recompute()
}

// SetActivityHours updates one activity's estimate. Values below one clamp
// to one. Editing a row while the total is manual does not flip the total
// back to auto; the total simply re-sums on the next restore.
func (p *Plan) SetActivityHours(key string, hours int) {
	for i := range p.Activities {
		if p.Activities[i].Key == key {
			p.Activities[i].Hours = EffectiveHours(hours)
			break
		}
	}
	p.recompute()
}

// SetActivities replaces the plan rows, keeping order as given.
func (p *Plan) SetActivities(items []PlanActivity) {
	p.Activities = items
	p.recompute()
}

// EffectiveTotalHours is the total driving the end-date derivation: the
// manual override when set, otherwise the sum of per-activity estimates with
// each activity counting at least one hour.
func (p *Plan) EffectiveTotalHours() int {
	if p.TotalHoursMode == ModeManual {
		return p.TotalHours
	}
	sum := 0
	for _, a := range p.Activities {
		sum += EffectiveHours(a.Hours)
	}
	return sum
}

// DaysNeeded is ceil(total/capacity) for the current plan.
func (p *Plan) DaysNeeded() int {
	return DaysNeeded(p.EffectiveTotalHours(), p.HoursPerDay)
}

// recompute re-derives every auto field from the plan inputs.
func (p *Plan) recompute() {
	if p.HoursPerDay < MinHoursPerDay {
		p.HoursPerDay = DefaultHoursPerDay
	}
	if p.TotalHoursMode == ModeAuto {
		p.TotalHours = p.EffectiveTotalHours()
	}
	if p.EndDateMode == ModeAuto {
		n := p.DaysNeeded()
		if n < 1 {
			n = 1
		}
		p.EndDate = AddWorkingDays(p.StartDate, n)
	}
	if p.EndDate.Before(p.StartDate) {
		p.EndDate = p.StartDate
	}
}

func (p *Plan) redistribute(total int) {
	n := len(p.Activities)
	if n == 0 {
		return
	}
	base := total / n
	remainder := total % n
	for i := range p.Activities {
		h := base
		if i < remainder {
			h++
		}
		p.Activities[i].Hours = EffectiveHours(h)
	}
}

// Cronograma is the computed schedule table for one view.
type Cronograma struct {
	View    string
	Days    []time.Time
	Windows []MonthWindow
	// Buckets maps activity key to display-column indices: working-day
	// indices in the day view, month-window indices in the month view,
	// empty in the hours view.
	Buckets map[string][]int
	// Hours maps activity key to its effective estimate (hours view).
	Hours          map[string]int
	DiasNecesarios int
}

// Compute runs the full pipeline for the plan: working days, allocation,
// then the bucket projection selected by view. Unknown views fall back to
// the month view.
func (p *Plan) Compute(view string) Cronograma {
	if !ValidView(view) {
		view = ViewMonths
	}
	c := Cronograma{
		View:           view,
		Hours:          make(map[string]int, len(p.Activities)),
		DiasNecesarios: p.DaysNeeded(),
	}
	items := make([]Item, len(p.Activities))
	for i, a := range p.Activities {
		items[i] = Item{Key: a.Key, Hours: a.Hours, Responsible: a.Responsible}
		c.Hours[a.Key] = EffectiveHours(a.Hours)
	}
	if view == ViewHours {
		c.Buckets = map[string][]int{}
		return c
	}
	c.Days = WorkingDays(p.StartDate, p.EndDate)
	allocation := Allocate(items, len(c.Days), p.HoursPerDay)
	switch view {
	case ViewDays:
		c.Buckets = DayBuckets(allocation)
	default:
		c.Windows = MonthWindows(p.StartDate, p.EndDate)
		c.Buckets = MonthBuckets(allocation, c.Days, c.Windows)
	}
	return c
}
