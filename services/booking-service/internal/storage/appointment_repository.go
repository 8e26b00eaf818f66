package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/servicebay/servicebay/services/booking-service/internal/availability"
	"github.com/servicebay/servicebay/services/booking-service/internal/model"
	"github.com/servicebay/servicebay/services/booking-service/internal/outbox"
)

const appointmentColumns = `id::text, provider_id, client_id, vehicle_id, service_id, scheduled_time,
			status, notes, completion_notes, created_at, updated_at`

type AppointmentRepository struct {
	db     DB
	outbox *outbox.Repository
}

func NewAppointmentRepository(db DB, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{db: db, outbox: outboxRepo}
}

var _ availability.AppointmentLedger = (*AppointmentRepository)(nil)

// Create inserts a new appointment and its booked event in one transaction. The partial
// unique index on (provider_id, scheduled_time) turns a concurrent double booking into
// availability.ErrSlotConflict.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = model.StatusPending
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, provider_id, client_id, vehicle_id, service_id, scheduled_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, appt.ID, appt.ProviderID, appt.ClientID, appt.VehicleID, appt.ServiceID,
		appt.ScheduledTime, string(appt.Status), appt.Notes).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, fmt.Errorf("%w: %w", availability.ErrSlotConflict, err)
		}
		return model.Appointment{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"provider_id":    appt.ProviderID,
		"client_id":      appt.ClientID,
		"vehicle_id":     appt.VehicleID,
		"service_id":     appt.ServiceID,
		"scheduled_time": appt.ScheduledTime.UTC().Format(time.RFC3339),
		"status":         appt.Status,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, fmt.Errorf("write outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// ListActive returns slot-occupying appointments with from <= scheduled_time < to.
func (r *AppointmentRepository) ListActive(ctx context.Context, providerID string, from, to time.Time) ([]model.Appointment, error) {
	statuses := make([]string, 0, len(model.OccupyingStatuses))
	for _, s := range model.OccupyingStatuses {
		statuses = append(statuses, string(s))
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND scheduled_time >= $2
			AND scheduled_time < $3
			AND status = ANY($4)
		ORDER BY scheduled_time ASC
	`, providerID, from, to, statuses)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

type ListFilter struct {
	ProviderID string
	From       time.Time
	To         time.Time
	Limit      int
}

// List returns a provider's appointments in any status, newest first.
func (r *AppointmentRepository) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND scheduled_time >= $2
			AND scheduled_time < $3
		ORDER BY scheduled_time DESC
		LIMIT $4
	`, f.ProviderID, f.From, f.To, f.Limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// UpdateStatus moves one of the provider's appointments along the status state machine
// under a row lock and records a status_changed event. Appointments of other providers
// report ErrNotFound. Completion notes are only kept for completed visits.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, providerID, appointmentID string, next model.Status, completionNotes string) (model.Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND provider_id = $2
		FOR UPDATE
	`, appointmentID, providerID)
	if err != nil {
		return model.Appointment{}, err
	}
	found, err := collectAppointments(rows)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(found) == 0 {
		return model.Appointment{}, ErrNotFound
	}
	appt := found[0]
	previous := appt.Status
	if !previous.CanTransitionTo(next) {
		return model.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, previous, next)
	}
	if next != model.StatusCompleted {
		completionNotes = appt.CompletionNotes
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
			completion_notes = $3,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, appointmentID, string(next), completionNotes).Scan(&appt.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = next
	appt.CompletionNotes = completionNotes

	payload, err := json.Marshal(map[string]any{
		"appointment_id":  appt.ID,
		"provider_id":     appt.ProviderID,
		"client_id":       appt.ClientID,
		"scheduled_time":  appt.ScheduledTime.UTC().Format(time.RFC3339),
		"previous_status": previous,
		"status":          next,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateAppointment,
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentStatusChanged,
		Payload:       payload,
	}); err != nil {
		return model.Appointment{}, fmt.Errorf("write outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var status string
		if err := rows.Scan(
			&appt.ID,
			&appt.ProviderID,
			&appt.ClientID,
			&appt.VehicleID,
			&appt.ServiceID,
			&appt.ScheduledTime,
			&status,
			&appt.Notes,
			&appt.CompletionNotes,
			&appt.CreatedAt,
			&appt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		appt.Status = model.Status(status)
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
