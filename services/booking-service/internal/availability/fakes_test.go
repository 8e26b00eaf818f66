package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/servicebay/servicebay/services/booking-service/internal/model"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

type fakeHours struct {
	week  schedule.Week
	err   error
	delay time.Duration
	calls int
	mu    sync.Mutex
}

func (f *fakeHours) WorkingHours(ctx context.Context, _ string) (schedule.Week, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.week, nil
}

type fakeBusy struct {
	override *schedule.BusyOverride
	err      error
}

func (f *fakeBusy) BusyOverride(context.Context, string) (*schedule.BusyOverride, error) {
	return f.override, f.err
}

type memLedger struct {
	mu        sync.Mutex
	appts     []model.Appointment
	listErr   error
	listCalls int
	// beforeCreate runs inside Create before the uniqueness check.
	beforeCreate func(*memLedger)
}

func (l *memLedger) ListActive(_ context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listCalls++
	if l.listErr != nil {
		return nil, l.listErr
	}
	var out []model.Appointment
	for _, a := range l.appts {
		if a.ProviderID != providerID || !a.Status.OccupiesSlot() {
			continue
		}
		if a.ScheduledTime.Before(from) || !a.ScheduledTime.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (l *memLedger) Create(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	if l.beforeCreate != nil {
		l.beforeCreate(l)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.appts {
		if a.ProviderID == appt.ProviderID && a.ScheduledTime.Equal(appt.ScheduledTime) && a.Status.OccupiesSlot() {
			return model.Appointment{}, fmt.Errorf("unique violation: %w", ErrSlotConflict)
		}
	}
	appt.ID = fmt.Sprintf("appt-%d", len(l.appts)+1)
	l.appts = append(l.appts, appt)
	return appt, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.appts)
}

func workday(wd time.Weekday, start, end string) schedule.Day {
	return schedule.Day{
		Weekday:      wd,
		IsWorkingDay: true,
		Start:        schedule.MustParseClock(start),
		End:          schedule.MustParseClock(end),
	}
}

func weekdays(start, end string) schedule.Week {
	return schedule.NewWeek(
		schedule.Day{Weekday: time.Sunday},
		workday(time.Monday, start, end),
		workday(time.Tuesday, start, end),
		workday(time.Wednesday, start, end),
		workday(time.Thursday, start, end),
		workday(time.Friday, start, end),
		schedule.Day{Weekday: time.Saturday},
	)
}

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hhmm string) time.Time {
	return schedule.MustParseClock(hhmm).On(day)
}
