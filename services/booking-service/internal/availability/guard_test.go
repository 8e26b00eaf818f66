package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/servicebay/servicebay/services/booking-service/internal/model"
)

func newTestGuard(ledger *memLedger) *Guard {
	r := NewResolver(&fakeHours{week: weekdays("09:00", "18:00")}, &fakeBusy{}, ledger, Config{}, nil, nil)
	g := NewGuard(r, ledger, nil, nil)
	g.now = func() time.Time { return monday.Add(-24 * time.Hour) }
	return g
}

func TestTryBook_AcceptsFreeSlotAsPending(t *testing.T) {
	ledger := &memLedger{}
	g := newTestGuard(ledger)

	appt, err := g.TryBook(context.Background(), BookingRequest{ProviderID: "prov-1", ClientID: "client-1", ScheduledTime: at(monday, "10:00")})
	if err != nil {
		t.Fatalf("try book: %v", err)
	}
	if appt.ID == "" || appt.Status != model.StatusPending {
		t.Fatalf("expected pending appointment with id, got %+v", appt)
	}
	if !appt.ScheduledTime.Equal(at(monday, "10:00")) {
		t.Fatalf("unexpected scheduled time %s", appt.ScheduledTime)
	}

	slots, err := g.resolver.Resolve(context.Background(), "prov-1", monday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, s := range slots {
		if s.Time.String() == "10:00" && s.Available {
			t.Fatalf("booked slot still reported available")
		}
	}
}

func TestTryBook_BookedSlotConflicts(t *testing.T) {
	ledger := &memLedger{appts: []model.Appointment{
		{ID: "existing", ProviderID: "prov-1", ScheduledTime: at(monday, "10:00"), Status: model.StatusConfirmed},
	}}
	g := newTestGuard(ledger)

	_, err := g.TryBook(context.Background(), BookingRequest{ProviderID: "prov-1", ScheduledTime: at(monday, "10:00")})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if ledger.count() != 1 {
		t.Fatalf("expected no new appointment, ledger has %d", ledger.count())
	}
}

func TestTryBook_CancelledAppointmentFreesSlot(t *testing.T) {
	ledger := &memLedger{appts: []model.Appointment{
		{ID: "old", ProviderID: "prov-1", ScheduledTime: at(monday, "10:00"), Status: model.StatusCancelled},
	}}
	g := newTestGuard(ledger)

	if _, err := g.TryBook(context.Background(), BookingRequest{ProviderID: "prov-1", ScheduledTime: at(monday, "10:00")}); err != nil {
		t.Fatalf("expected cancelled slot to be rebookable, got %v", err)
	}
}

func TestTryBook_NotBookable(t *testing.T) {
	g := newTestGuard(&memLedger{})
	cases := map[string]time.Time{
		"off grid":       at(monday, "10:15"),
		"before opening": at(monday, "08:30"),
		"at closing":     at(monday, "18:00"),
		"day off":        at(monday.AddDate(0, 0, -1), "10:00"),
		"seconds":        at(monday, "10:00").Add(30 * time.Second),
		"in the past":    at(monday.AddDate(0, 0, -7), "10:00"),
	}
	for name, when := range cases {
		_, err := g.TryBook(context.Background(), BookingRequest{ProviderID: "prov-1", ScheduledTime: when})
		if !errors.Is(err, ErrNotBookable) {
			t.Fatalf("%s: expected ErrNotBookable, got %v", name, err)
		}
	}
}

func TestTryBook_StoreConstraintWinsRace(t *testing.T) {
	ledger := &memLedger{}
	// Another client commits the same slot between the pre-check and the insert.
	ledger.beforeCreate = func(l *memLedger) {
		l.mu.Lock()
		l.appts = append(l.appts, model.Appointment{ID: "winner", ProviderID: "prov-1", ScheduledTime: at(monday, "11:00"), Status: model.StatusPending})
		l.mu.Unlock()
		l.beforeCreate = nil
	}
	g := newTestGuard(ledger)

	_, err := g.TryBook(context.Background(), BookingRequest{ProviderID: "prov-1", ScheduledTime: at(monday, "11:00")})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict from store, got %v", err)
	}
	if ledger.count() != 1 {
		t.Fatalf("expected only the winning appointment, got %d", ledger.count())
	}
}

func TestTryBook_ConcurrentRequestsBookOnce(t *testing.T) {
	ledger := &memLedger{}
	g := newTestGuard(ledger)

	const n = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.TryBook(context.Background(), BookingRequest{ProviderID: "prov-1", ScheduledTime: at(monday, "15:30")})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrSlotConflict) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 1 || ledger.count() != 1 {
		t.Fatalf("expected exactly one booking, accepted=%d stored=%d", accepted, ledger.count())
	}
}

func TestTryBook_DependencyFailureWritesNothing(t *testing.T) {
	ledger := &memLedger{listErr: errors.New("timeout")}
	g := newTestGuard(ledger)

	_, err := g.TryBook(context.Background(), BookingRequest{ProviderID: "prov-1", ScheduledTime: at(monday, "10:00")})
	if !errors.Is(err, ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if ledger.count() != 0 {
		t.Fatalf("nothing should be written when availability is unknown")
	}
}
