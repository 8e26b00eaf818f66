package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	otelx "github.com/servicebay/servicebay/libs/otel"
)

// Execer is satisfied by pgx.Tx, so events are written in the caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Queryer interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores ev with the current trace context so the publisher can continue the trace.
func (r *Repository) Insert(ctx context.Context, tx Execer, ev Event) error {
	if ev.EventType == "" || ev.AggregateID == "" {
		return errors.New("outbox event requires event type and aggregate id")
	}
	tc := otelx.CaptureTraceContext(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events
			(event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), ev.AggregateType, ev.AggregateID, ev.EventType, ev.Payload, tc.Traceparent, tc.Tracestate)
	return err
}

// FetchUnpublished locks up to limit pending rows; concurrent publishers skip locked rows.
func (r *Repository) FetchUnpublished(ctx context.Context, tx Queryer, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, '')
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.Traceparent, &rec.Tracestate); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) MarkPublished(ctx context.Context, tx Execer, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
