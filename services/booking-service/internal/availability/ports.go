package availability

import (
	"context"
	"time"

	"github.com/servicebay/servicebay/services/booking-service/internal/model"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

type WorkingHoursStore interface {
	WorkingHours(ctx context.Context, providerID string) (schedule.Week, error)
}

// BusyOverrideStore returns nil when the provider never declared an override.
type BusyOverrideStore interface {
	BusyOverride(ctx context.Context, providerID string) (*schedule.BusyOverride, error)
}

// AppointmentReader lists slot-occupying appointments with from <= scheduled_time < to.
type AppointmentReader interface {
	ListActive(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error)
}

// AppointmentWriter persists a new appointment. Implementations must report a
// store-level uniqueness violation as ErrSlotConflict.
type AppointmentWriter interface {
	Create(ctx context.Context, appt model.Appointment) (model.Appointment, error)
}

type AppointmentLedger interface {
	AppointmentReader
	AppointmentWriter
}
