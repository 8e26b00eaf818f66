package model

import "testing"

func TestStatusTransitions(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusConfirmed, StatusCancelled},
		StatusConfirmed:  {StatusInProgress, StatusCancelled},
		StatusInProgress: {StatusCompleted},
	}
	all := []Status{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestOccupiesSlotMatchesStoreFilter(t *testing.T) {
	for _, s := range OccupyingStatuses {
		if !s.OccupiesSlot() {
			t.Fatalf("%s should occupy a slot", s)
		}
		if len(transitions[s]) == 0 {
			t.Fatalf("%s occupies a slot but has no way out", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusCancelled, Status("booked")} {
		if s.OccupiesSlot() {
			t.Fatalf("%s should not occupy a slot", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("in_progress"); err != nil || s != StatusInProgress {
		t.Fatalf("unexpected %q %v", s, err)
	}
	if _, err := ParseStatus("booked"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
