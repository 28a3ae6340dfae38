package schedule_test

import (
	"reflect"
	"testing"
	"time"

	"aulaplan/internal/schedule"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWorkingDaysSkipsSundays(t *testing.T) {
	// Mon 2024-01-01 .. Mon 2024-01-08 spans one Sunday.
	days := schedule.WorkingDays(day(2024, 1, 1), day(2024, 1, 8))
	if len(days) != 7 {
		t.Fatalf("expected 7 working days, got %d", len(days))
	}
	for _, d := range days {
		if d.Weekday() == time.Sunday {
			t.Fatalf("working days contain a Sunday: %s", d.Format(schedule.DateLayout))
		}
	}
	if !days[0].Equal(day(2024, 1, 1)) || !days[6].Equal(day(2024, 1, 8)) {
		t.Fatalf("unexpected bounds: %s .. %s", days[0], days[6])
	}
}

func TestWorkingDaysEmptyWhenStartAfterEnd(t *testing.T) {
	if got := schedule.WorkingDays(day(2024, 1, 5), day(2024, 1, 1)); len(got) != 0 {
		t.Fatalf("expected empty slice, got %d days", len(got))
	}
}

func TestSkipSunday(t *testing.T) {
	if got := schedule.SkipSunday(day(2024, 1, 7)); !got.Equal(day(2024, 1, 8)) {
		t.Fatalf("Sunday should shift to Monday, got %s", got.Format(schedule.DateLayout))
	}
	if got := schedule.SkipSunday(day(2024, 1, 8)); !got.Equal(day(2024, 1, 8)) {
		t.Fatalf("Monday should stay put, got %s", got.Format(schedule.DateLayout))
	}
}

func TestAddWorkingDaysCountsStartAsDayOne(t *testing.T) {
	// 2 working days from Mon 2024-01-01 ends Tue 2024-01-02.
	if got := schedule.AddWorkingDays(day(2024, 1, 1), 2); !got.Equal(day(2024, 1, 2)) {
		t.Fatalf("got %s", got.Format(schedule.DateLayout))
	}
	// 6 working days from Mon 2024-01-01 crosses Sunday: ends Mon 2024-01-08.
	if got := schedule.AddWorkingDays(day(2024, 1, 1), 6); !got.Equal(day(2024, 1, 8)) {
		t.Fatalf("got %s", got.Format(schedule.DateLayout))
	}
}

func TestDaysNeeded(t *testing.T) {
	cases := []struct {
		total, capacity, want int
	}{
		{12, 6, 2},
		{13, 6, 3},
		{1, 6, 1},
		{0, 6, 0},
		{6, 1, 6},
	}
	for _, c := range cases {
		if got := schedule.DaysNeeded(c.total, c.capacity); got != c.want {
			t.Errorf("DaysNeeded(%d,%d) = %d, want %d", c.total, c.capacity, got, c.want)
		}
	}
}

func TestAllocateSharedTrack(t *testing.T) {
	// Two unassigned activities compete for the same 6h/day capacity:
	// A (8h) takes day 0 fully and 2h of day 1, B (4h) finishes day 1.
	alloc := schedule.Allocate([]schedule.Item{
		{Key: "o1_0", Hours: 8},
		{Key: "o1_1", Hours: 4},
	}, 5, 6)
	if got := alloc["o1_0"]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("A days = %v, want [0 1]", got)
	}
	if got := alloc["o1_1"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("B days = %v, want [1]", got)
	}
}

func TestAllocateSeparateResponsiblesOverlap(t *testing.T) {
	// Different responsibles have independent capacity and start in parallel.
	alloc := schedule.Allocate([]schedule.Item{
		{Key: "o1_0", Hours: 6, Responsible: "u1"},
		{Key: "o1_1", Hours: 6, Responsible: "u2"},
	}, 5, 6)
	if got := alloc["o1_0"]; len(got) != 1 || got[0] != 0 {
		t.Fatalf("u1 days = %v, want [0]", got)
	}
	if got := alloc["o1_1"]; len(got) != 1 || got[0] != 0 {
		t.Fatalf("u2 days = %v, want [0]", got)
	}
}

func TestAllocateZeroHoursCountsAsOne(t *testing.T) {
	alloc := schedule.Allocate([]schedule.Item{{Key: "o1_0", Hours: 0}}, 3, 6)
	if got := alloc["o1_0"]; len(got) != 1 || got[0] != 0 {
		t.Fatalf("days = %v, want [0]", got)
	}
}

func TestAllocateRunsOutOfDays(t *testing.T) {
	// 20h in 2 days at 6h/day: allocation stops at the horizon.
	alloc := schedule.Allocate([]schedule.Item{{Key: "o1_0", Hours: 20}}, 2, 6)
	if got := alloc["o1_0"]; len(got) != 2 {
		t.Fatalf("days = %v, want both available days", got)
	}
}

func TestAllocateNeverExceedsDailyCapacity(t *testing.T) {
	// Four 1h activities on the shared track at 2h/day: at most two may
	// land on the same day index.
	alloc := schedule.Allocate([]schedule.Item{
		{Key: "o1_0", Hours: 1},
		{Key: "o1_1", Hours: 1},
		{Key: "o1_2", Hours: 1},
		{Key: "o1_3", Hours: 1},
	}, 10, 2)
	perDay := map[int]int{}
	for _, days := range alloc {
		for _, d := range days {
			perDay[d]++
		}
	}
	for d, n := range perDay {
		if n > 2 {
			t.Fatalf("day %d holds %d hours, capacity is 2", d, n)
		}
	}
	if got := alloc["o1_2"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("third activity days = %v, want [1]", got)
	}
}

func TestAllocateDeterministic(t *testing.T) {
	items := []schedule.Item{
		{Key: "o1_0", Hours: 8},
		{Key: "o1_1", Hours: 4, Responsible: "u1"},
		{Key: "o2_0", Hours: 4},
	}
	first := schedule.Allocate(items, 5, 6)
	second := schedule.Allocate(items, 5, 6)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical input allocated differently: %v vs %v", first, second)
	}
}

func TestMonthWindows(t *testing.T) {
	windows := schedule.MonthWindows(day(2024, 1, 15), day(2024, 3, 2))
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	if !windows[0].First.Equal(day(2024, 1, 1)) || !windows[0].Last.Equal(day(2024, 1, 31)) {
		t.Fatalf("january window wrong: %+v", windows[0])
	}
	if !windows[1].Last.Equal(day(2024, 2, 29)) {
		t.Fatalf("february should end on the 29th, got %s", windows[1].Last)
	}
}

func TestMonthWindowsLateMonthStartKeepsShortMonths(t *testing.T) {
	// Jan 30 .. Mar 31: stepping by the start day would jump Jan 30 to
	// Mar 1 and lose February entirely.
	windows := schedule.MonthWindows(day(2024, 1, 30), day(2024, 3, 31))
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	if !windows[1].First.Equal(day(2024, 2, 1)) {
		t.Fatalf("second window should be february, got %s", windows[1].First)
	}
}

func TestMonthBucketsDeduplicates(t *testing.T) {
	start, end := day(2024, 1, 29), day(2024, 2, 3)
	days := schedule.WorkingDays(start, end)
	windows := schedule.MonthWindows(start, end)
	// 30h at 6h/day spans the month boundary.
	alloc := schedule.Allocate([]schedule.Item{{Key: "a", Hours: 30}}, len(days), 6)
	got := schedule.MonthBuckets(alloc, days, windows)["a"]
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("month indices = %v, want [0 1]", got)
	}
}

func TestPlanAutoEndDate(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetActivities([]schedule.PlanActivity{
		{Key: "o1_0", Hours: 8},
		{Key: "o1_1", Hours: 4},
	})
	if p.TotalHours != 12 {
		t.Fatalf("total = %d, want 12", p.TotalHours)
	}
	if p.DaysNeeded() != 2 {
		t.Fatalf("days needed = %d, want 2", p.DaysNeeded())
	}
	if !p.EndDate.Equal(day(2024, 1, 2)) {
		t.Fatalf("end date = %s, want 2024-01-02", p.EndDate.Format(schedule.DateLayout))
	}
}

func TestPlanStartOnSundayShiftsToMonday(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 7))
	if !p.StartDate.Equal(day(2024, 1, 8)) {
		t.Fatalf("start = %s, want 2024-01-08", p.StartDate.Format(schedule.DateLayout))
	}
}

func TestPlanManualEndDateSurvivesEdits(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetActivities([]schedule.PlanActivity{{Key: "o1_0", Hours: 6}})
	p.SetEndDate(day(2024, 3, 1))
	p.SetActivityHours("o1_0", 60)
	if !p.EndDate.Equal(day(2024, 3, 1)) {
		t.Fatalf("manual end date was recomputed: %s", p.EndDate.Format(schedule.DateLayout))
	}
	p.ResetEndDate()
	if p.EndDate.Equal(day(2024, 3, 1)) {
		t.Fatalf("reset should re-derive the end date")
	}
}

func TestPlanManualEndDateClampedToStart(t *testing.T) {
	p := schedule.NewPlan(day(2024, 3, 1))
	p.SetEndDate(day(2024, 1, 1))
	if !p.EndDate.Equal(day(2024, 3, 1)) {
		t.Fatalf("end before start should clamp, got %s", p.EndDate.Format(schedule.DateLayout))
	}
}

func TestPlanManualTotalRedistributes(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetActivities([]schedule.PlanActivity{
		{Key: "o1_0", Hours: 1},
		{Key: "o1_1", Hours: 1},
		{Key: "o1_2", Hours: 1},
	})
	p.SetTotalHours(7)
	want := []int{3, 2, 2}
	for i, a := range p.Activities {
		if a.Hours != want[i] {
			t.Fatalf("activity %d hours = %d, want %d", i, a.Hours, want[i])
		}
	}
	if p.TotalHours != 7 {
		t.Fatalf("total = %d, want 7", p.TotalHours)
	}
}

func TestPlanRestoreTotalHours(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetActivities([]schedule.PlanActivity{
		{Key: "o1_0", Hours: 5},
		{Key: "o1_1", Hours: 2},
	})
	p.SetTotalHours(20)
	p.RestoreTotalHours()
	if p.Activities[0].Hours != 5 || p.Activities[1].Hours != 2 {
		t.Fatalf("restore did not reinstate hours: %+v", p.Activities)
	}
	if p.TotalHoursMode != schedule.ModeAuto || p.TotalHours != 7 {
		t.Fatalf("mode=%s total=%d, want auto/7", p.TotalHoursMode, p.TotalHours)
	}
}

func TestPlanHoursPerDayClamped(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetHoursPerDay(0)
	if p.HoursPerDay != schedule.MinHoursPerDay {
		t.Fatalf("got %d, want %d", p.HoursPerDay, schedule.MinHoursPerDay)
	}
	p.SetHoursPerDay(100)
	if p.HoursPerDay != schedule.MaxHoursPerDay {
		t.Fatalf("got %d, want %d", p.HoursPerDay, schedule.MaxHoursPerDay)
	}
}

func TestComputeDayView(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetActivities([]schedule.PlanActivity{
		{Key: "o1_0", Hours: 8},
		{Key: "o1_1", Hours: 4},
	})
	c := p.Compute(schedule.ViewDays)
	if got := c.Buckets["o1_0"]; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("o1_0 = %v, want [0 1]", got)
	}
	if got := c.Buckets["o1_1"]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("o1_1 = %v, want [1]", got)
	}
	if c.DiasNecesarios != 2 {
		t.Fatalf("diasNecesarios = %d, want 2", c.DiasNecesarios)
	}
}

func TestComputeHoursView(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetActivities([]schedule.PlanActivity{{Key: "o1_0", Hours: 0}})
	c := p.Compute(schedule.ViewHours)
	if c.Hours["o1_0"] != 1 {
		t.Fatalf("hours view should report effective hours, got %d", c.Hours["o1_0"])
	}
	if len(c.Days) != 0 {
		t.Fatalf("hours view should not compute days")
	}
}

func TestComputeUnknownViewDefaultsToMonths(t *testing.T) {
	p := schedule.NewPlan(day(2024, 1, 1))
	p.SetActivities([]schedule.PlanActivity{{Key: "o1_0", Hours: 6}})
	c := p.Compute("weeks")
	if c.View != schedule.ViewMonths {
		t.Fatalf("view = %q, want %q", c.View, schedule.ViewMonths)
	}
	if len(c.Windows) == 0 {
		t.Fatalf("month view should compute windows")
	}
}
