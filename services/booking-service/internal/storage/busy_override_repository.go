package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/servicebay/servicebay/services/booking-service/internal/outbox"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

type BusyOverrideRepository struct {
	db     DB
	outbox *outbox.Repository
}

func NewBusyOverrideRepository(db DB, outboxRepo *outbox.Repository) *BusyOverrideRepository {
	return &BusyOverrideRepository{db: db, outbox: outboxRepo}
}

func (r *BusyOverrideRepository) BusyOverride(ctx context.Context, providerID string) (*schedule.BusyOverride, error) {
	o := schedule.BusyOverride{ProviderID: providerID}
	err := r.db.QueryRow(ctx, `
		SELECT is_busy, busy_until, reason, updated_at
		FROM provider_busy_status
		WHERE provider_id = $1
	`, providerID).Scan(&o.IsBusy, &o.BusyUntil, &o.Reason, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Set overwrites the provider's single override row. Last write wins.
func (r *BusyOverrideRepository) Set(ctx context.Context, o schedule.BusyOverride) (schedule.BusyOverride, error) {
	if !o.IsBusy {
		o.BusyUntil = nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return schedule.BusyOverride{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO provider_busy_status (provider_id, is_busy, busy_until, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_id) DO UPDATE
		SET is_busy = EXCLUDED.is_busy,
			busy_until = EXCLUDED.busy_until,
			reason = EXCLUDED.reason,
			updated_at = now()
		RETURNING updated_at
	`, o.ProviderID, o.IsBusy, o.BusyUntil, o.Reason).Scan(&o.UpdatedAt)
	if err != nil {
		return schedule.BusyOverride{}, err
	}

	event := map[string]any{
		"provider_id": o.ProviderID,
		"is_busy":     o.IsBusy,
		"reason":      o.Reason,
	}
	if o.BusyUntil != nil {
		event["busy_until"] = o.BusyUntil.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return schedule.BusyOverride{}, err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateProvider,
		AggregateID:   o.ProviderID,
		EventType:     outbox.EventBusyStatusUpdated,
		Payload:       payload,
	}); err != nil {
		return schedule.BusyOverride{}, fmt.Errorf("write outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return schedule.BusyOverride{}, err
	}
	return o, nil
}
