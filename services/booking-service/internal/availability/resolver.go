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
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/servicebay/servicebay/services/booking-service/internal/availability"

type Config struct {
	Granularity time.Duration
	// Location is the single service location every provider's hours are expressed in.
	Location *time.Location
	// FetchTimeout bounds each round of store reads.
	FetchTimeout time.Duration
	OverrideMode schedule.OverrideMode
}

func (c Config) withDefaults() Config {
	if c.Granularity < time.Minute {
		c.Granularity = DefaultGranularity
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 3 * time.Second
	}
	if c.OverrideMode == "" {
		c.OverrideMode = schedule.OverrideWholeDay
	}
	return c
}

type Resolver struct {
	hours   WorkingHoursStore
	busy    BusyOverrideStore
	ledger  AppointmentReader
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
	tracer  trace.Tracer
}

func NewResolver(hours WorkingHoursStore, busy BusyOverrideStore, ledger AppointmentReader, cfg Config, logger *slog.Logger, m *metrics.BookingMetrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		hours:   hours,
		busy:    busy,
		ledger:  ledger,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

func (r *Resolver) Location() *time.Location { return r.cfg.Location }

func (r *Resolver) Granularity() time.Duration { return r.cfg.Granularity }

// DayBounds returns [start, end) of date's calendar day in the service location.
func (r *Resolver) DayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.In(r.cfg.Location).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, r.cfg.Location)
	return start, start.AddDate(0, 0, 1)
}

// Resolve returns every candidate slot of date for the provider, ascending, each marked
// available or not. Days without working hours and days blocked by a busy override
// resolve to an empty list. Store failures return ErrDependencyUnavailable.
func (r *Resolver) Resolve(ctx context.Context, providerID string, date time.Time) ([]Slot, error) {
	dayStart, dayEnd := r.DayBounds(date)
	ctx, span := r.tracer.Start(ctx, "availability.Resolve", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("date", dayStart.Format(time.DateOnly)),
	))
	defer span.End()

	started := time.Now()
	slots, outcome, err := r.resolve(ctx, providerID, dayStart, dayEnd)
	r.metrics.ObserveResolve(outcome, time.Since(started).Seconds())
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Int("slots", len(slots)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return slots, nil
}

func (r *Resolver) resolve(ctx context.Context, providerID string, dayStart, dayEnd time.Time) ([]Slot, string, error) {
	week, override, err := r.fetchScheduleState(ctx, providerID)
	if err != nil {
		return nil, "dependency_error", err
	}

	day, ok := week.Day(dayStart.Weekday())
	if !ok || !day.IsWorkingDay {
		return []Slot{}, "day_off", nil
	}
	if err := day.Validate(); err != nil {
		r.metrics.ObserveInvalidSchedule()
		r.logger.Warn("stored working hours are invalid; offering no slots",
			"provider_id", providerID,
			"date", dayStart.Format(time.DateOnly),
			"err", err,
		)
		return []Slot{}, "invalid_schedule", nil
	}

	candidates := GenerateSlots(day, r.cfg.Granularity)
	if override.Covers(dayStart) {
		if r.cfg.OverrideMode != schedule.OverrideIntersect || !override.EndsWithin(dayStart, dayEnd) {
			return []Slot{}, "busy", nil
		}
		candidates = slotsFrom(candidates, dayStart, *override.BusyUntil)
	}
	if len(candidates) == 0 {
		return []Slot{}, "no_slots", nil
	}

	appts, err := r.fetchAppointments(ctx, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, "dependency_error", err
	}

	booked := r.bookedSlots(day, dayStart, dayEnd, appts)
	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		_, taken := booked[c]
		out = append(out, Slot{Time: c, Available: !taken})
	}
	return out, "ok", nil
}

// fetchScheduleState reads working hours and the busy override concurrently.
func (r *Resolver) fetchScheduleState(ctx context.Context, providerID string) (schedule.Week, *schedule.BusyOverride, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	var (
		week     schedule.Week
		override *schedule.BusyOverride
	)
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		w, err := r.hours.WorkingHours(gctx, providerID)
		if err != nil {
			return fmt.Errorf("working hours: %w", err)
		}
		week = w
		return nil
	})
	g.Go(func() error {
		o, err := r.busy.BusyOverride(gctx, providerID)
		if err != nil {
			return fmt.Errorf("busy override: %w", err)
		}
		override = o
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, r.dependencyError(ctx, err)
	}
	return week, override, nil
}

func (r *Resolver) fetchAppointments(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	appts, err := r.ledger.ListActive(fetchCtx, providerID, from, to)
	if err != nil {
		return nil, r.dependencyError(ctx, fmt.Errorf("appointments: %w", err))
	}
	return appts, nil
}

// dependencyError keeps caller cancellation distinguishable from store failures. A caller
// deadline is a fetch timeout and reports ErrDependencyUnavailable.
func (r *Resolver) dependencyError(ctx context.Context, err error) error {
	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.Canceled):
		return ctxErr
	case ctxErr != nil:
		return fmt.Errorf("%w: %w", ErrDependencyUnavailable, ctxErr)
	}
	if errors.Is(err, ErrDependencyUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
}

func (r *Resolver) bookedSlots(day schedule.Day, dayStart, dayEnd time.Time, appts []model.Appointment) map[schedule.Clock]struct{} {
	step := schedule.Clock(r.cfg.Granularity / time.Minute)
	booked := make(map[schedule.Clock]struct{}, len(appts))
	for _, a := range appts {
		if !a.Status.OccupiesSlot() {
			continue
		}
		at := a.ScheduledTime.In(r.cfg.Location)
		if at.Before(dayStart) || !at.Before(dayEnd) {
			continue
		}
		if slot, ok := gridSlot(schedule.ClockOf(at), day.Start, step); ok {
			booked[slot] = struct{}{}
		}
	}
	return booked
}

// slotsFrom drops candidates that start before until.
func slotsFrom(candidates []schedule.Clock, dayStart, until time.Time) []schedule.Clock {
	out := make([]schedule.Clock, 0, len(candidates))
	for _, c := range candidates {
		if c.On(dayStart).Before(until) {
			continue
		}
		out = append(out, c)
	}
	return out
}
