package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/servicebay/servicebay/services/booking-service/internal/metrics"
	"github.com/servicebay/servicebay/services/booking-service/internal/model"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type BookingRequest struct {
	ProviderID    string
	ClientID      string
	VehicleID     string
	ServiceID     string
	Notes         string
	ScheduledTime time.Time
}

// Guard re-checks availability right before writing an appointment. The ledger's
// uniqueness constraint remains the final authority for concurrent bookings.
type Guard struct {
	resolver *Resolver
	ledger   AppointmentWriter
	logger   *slog.Logger
	metrics  *metrics.BookingMetrics
	tracer   trace.Tracer
	now      func() time.Time
}

func NewGuard(resolver *Resolver, ledger AppointmentWriter, logger *slog.Logger, m *metrics.BookingMetrics) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		resolver: resolver,
		ledger:   ledger,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// TryBook creates a pending appointment for the requested slot. It fails with
// ErrNotBookable when the time is not an offered slot and with ErrSlotConflict when
// the slot is taken, either by the pre-check or by the store.
func (g *Guard) TryBook(ctx context.Context, req BookingRequest) (model.Appointment, error) {
	ctx, span := g.tracer.Start(ctx, "availability.TryBook", trace.WithAttributes(
		attribute.String("provider.id", req.ProviderID),
		attribute.String("scheduled_time", req.ScheduledTime.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	appt, outcome, err := g.tryBook(ctx, req)
	g.metrics.ObserveBooking(outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		if outcome == "error" || outcome == "dependency_error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (g *Guard) tryBook(ctx context.Context, req BookingRequest) (model.Appointment, string, error) {
	at := req.ScheduledTime.In(g.resolver.Location())
	if at.Second() != 0 || at.Nanosecond() != 0 {
		return model.Appointment{}, "not_bookable", fmt.Errorf("%w: %s is not on a minute boundary", ErrNotBookable, at.Format(time.RFC3339))
	}
	if !at.After(g.now()) {
		return model.Appointment{}, "not_bookable", fmt.Errorf("%w: %s is in the past", ErrNotBookable, at.Format(time.RFC3339))
	}

	slots, err := g.resolver.Resolve(ctx, req.ProviderID, at)
	if err != nil {
		return model.Appointment{}, "dependency_error", err
	}

	want := schedule.ClockOf(at)
	slot, found := findSlot(slots, want)
	if !found {
		return model.Appointment{}, "not_bookable", fmt.Errorf("%w: %s is not offered on %s", ErrNotBookable, want, at.Format(time.DateOnly))
	}
	if !slot.Available {
		return model.Appointment{}, "conflict", fmt.Errorf("%w: %s at %s", ErrSlotConflict, at.Format(time.DateOnly), want)
	}

	created, err := g.ledger.Create(ctx, model.Appointment{
		ProviderID:    req.ProviderID,
		ClientID:      req.ClientID,
		VehicleID:     req.VehicleID,
		ServiceID:     req.ServiceID,
		Notes:         req.Notes,
		ScheduledTime: at,
		Status:        model.StatusPending,
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			g.logger.Info("booking lost race to concurrent request",
				"provider_id", req.ProviderID,
				"scheduled_time", at.Format(time.RFC3339),
			)
			return model.Appointment{}, "race_conflict", err
		}
		return model.Appointment{}, "error", fmt.Errorf("create appointment: %w", err)
	}
	return created, "accepted", nil
}

func findSlot(slots []Slot, at schedule.Clock) (Slot, bool) {
	for _, s := range slots {
		if s.Time == at {
			return s, true
		}
	}
	return Slot{}, false
}
