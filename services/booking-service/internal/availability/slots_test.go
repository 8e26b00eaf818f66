package availability

import (
	"testing"
	"time"

	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

func TestGenerateSlots_WorkingDay(t *testing.T) {
	slots := GenerateSlots(workday(time.Monday, "09:00", "18:00"), 30*time.Minute)
	if len(slots) != 18 {
		t.Fatalf("expected 18 slots, got %d", len(slots))
	}
	if slots[0].String() != "09:00" || slots[len(slots)-1].String() != "17:30" {
		t.Fatalf("unexpected bounds %s..%s", slots[0], slots[len(slots)-1])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Sub(slots[i-1]) != 30*time.Minute {
			t.Fatalf("slots %s and %s are not 30m apart", slots[i-1], slots[i])
		}
	}
}

func TestGenerateSlots_Empty(t *testing.T) {
	cases := map[string]struct {
		day  schedule.Day
		step time.Duration
	}{
		"day off":          {schedule.Day{Weekday: time.Sunday, Start: 540, End: 1080}, 30 * time.Minute},
		"start equals end": {workday(time.Monday, "09:00", "09:00"), 30 * time.Minute},
		"inverted":         {workday(time.Monday, "18:00", "09:00"), 30 * time.Minute},
		"zero step":        {workday(time.Monday, "09:00", "18:00"), 0},
		"sub-minute step":  {workday(time.Monday, "09:00", "18:00"), 30 * time.Second},
		"window too short": {workday(time.Monday, "09:00", "09:20"), 30 * time.Minute},
	}
	for name, tc := range cases {
		if got := GenerateSlots(tc.day, tc.step); len(got) != 0 {
			t.Fatalf("%s: expected no slots, got %v", name, got)
		}
	}
}

func TestGenerateSlots_CountIsFloor(t *testing.T) {
	for _, tc := range []struct {
		start, end string
		step       time.Duration
	}{
		{"09:00", "10:45", 30 * time.Minute},
		{"08:15", "12:00", 45 * time.Minute},
		{"00:00", "24:00", 60 * time.Minute},
		{"13:07", "13:59", 10 * time.Minute},
	} {
		day := workday(time.Tuesday, tc.start, tc.end)
		want := int(day.End.Sub(day.Start) / tc.step)
		got := GenerateSlots(day, tc.step)
		if len(got) != want {
			t.Fatalf("%s-%s/%s: expected %d slots, got %d", tc.start, tc.end, tc.step, want, len(got))
		}
		for _, s := range got {
			if s.Add(tc.step) > day.End {
				t.Fatalf("slot %s overruns end %s", s, day.End)
			}
		}
	}
}

func TestGenerateSlots_Idempotent(t *testing.T) {
	day := workday(time.Friday, "07:30", "16:00")
	a := GenerateSlots(day, 30*time.Minute)
	b := GenerateSlots(day, 30*time.Minute)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs: %s vs %s", i, a[i], b[i])
		}
	}
}
