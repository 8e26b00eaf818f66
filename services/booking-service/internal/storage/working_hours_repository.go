package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/servicebay/servicebay/services/booking-service/internal/outbox"
	"github.com/servicebay/servicebay/services/booking-service/internal/schedule"
)

type WorkingHoursRepository struct {
	db     DB
	outbox *outbox.Repository
}

func NewWorkingHoursRepository(db DB, outboxRepo *outbox.Repository) *WorkingHoursRepository {
	return &WorkingHoursRepository{db: db, outbox: outboxRepo}
}

// WorkingHours returns whatever rows exist for the provider. A provider with no rows gets
// an empty Week; no default schedule is substituted.
func (r *WorkingHoursRepository) WorkingHours(ctx context.Context, providerID string) (schedule.Week, error) {
	rows, err := r.db.Query(ctx, `
		SELECT weekday, is_working_day, start_minute, end_minute
		FROM provider_working_hours
		WHERE provider_id = $1
		ORDER BY weekday
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	week := schedule.Week{}
	for rows.Next() {
		var weekday, start, end int
		var working bool
		if err := rows.Scan(&weekday, &working, &start, &end); err != nil {
			return nil, err
		}
		week[time.Weekday(weekday)] = schedule.Day{
			Weekday:      time.Weekday(weekday),
			IsWorkingDay: working,
			Start:        schedule.Clock(start),
			End:          schedule.Clock(end),
		}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return week, nil
}

// ReplaceWeek swaps the provider's whole weekly schedule atomically. Invalid days are
// rejected with schedule.ErrInvalidSchedule before anything is written.
func (r *WorkingHoursRepository) ReplaceWeek(ctx context.Context, providerID string, week schedule.Week) error {
	if err := week.Validate(); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM provider_working_hours WHERE provider_id = $1`, providerID); err != nil {
		return err
	}
	days := week.Days()
	for _, d := range days {
		_, err := tx.Exec(ctx, `
			INSERT INTO provider_working_hours
				(provider_id, weekday, is_working_day, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, providerID, int(d.Weekday), d.IsWorkingDay, int(d.Start), int(d.End))
		if err != nil {
			if IsCheckViolation(err) {
				return fmt.Errorf("%w: %w", schedule.ErrInvalidSchedule, err)
			}
			return err
		}
	}

	payload, err := json.Marshal(map[string]any{
		"provider_id": providerID,
		"days":        days,
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateProvider,
		AggregateID:   providerID,
		EventType:     outbox.EventWorkingHoursUpdated,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("write outbox event: %w", err)
	}
	return tx.Commit(ctx)
}
