package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/servicebay/servicebay/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func outboxRows(mock pgxmock.PgxPoolIface) *pgxmock.Rows {
	return mock.NewRows([]string{"id", "event_id", "aggregate_id", "event_type", "payload", "traceparent", "tracestate"}).
		AddRow(int64(1), "evt-1", "appt-1", EventAppointmentBooked, []byte(`{"appointment_id":"appt-1"}`), "", "").
		AddRow(int64(2), "evt-2", "prov-1", EventBusyStatusUpdated, []byte(`{"provider_id":"prov-1"}`), "", "")
}

func TestInsertWritesEnvelope(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), AggregateAppointment, "appt-1", EventAppointmentBooked, []byte(`{}`), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewRepository().Insert(context.Background(), mock, Event{
		AggregateType: AggregateAppointment,
		AggregateID:   "appt-1",
		EventType:     EventAppointmentBooked,
		Payload:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}

	if err := NewRepository().Insert(context.Background(), mock, Event{EventType: EventAppointmentBooked}); err == nil {
		t.Fatalf("expected error for missing aggregate id")
	}
}

func TestPublishBatchMarksRowsPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").WithArgs(50).WillReturnRows(outboxRows(mock))
	mock.ExpectExec("UPDATE outbox_events").WithArgs([]int64{1, 2}).WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	w := &recordingWriter{}
	p := NewPublisher(mock, NewRepository(), discardLogger(), nil, PublisherConfig{Brokers: "kafka:9092"})
	n, err := p.PublishBatch(context.Background(), w)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 2 || len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got n=%d msgs=%d", n, len(w.msgs))
	}
	first := w.msgs[0]
	if first.Topic != EventAppointmentBooked || string(first.Key) != "appt-1" {
		t.Fatalf("unexpected message routing %s/%s", first.Topic, first.Key)
	}
	if meta := kafkax.ExtractEventMeta(first); meta.EventID != "evt-1" {
		t.Fatalf("expected event_id header, got %+v", meta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPublishBatchRollsBackOnKafkaError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").WithArgs(10).WillReturnRows(outboxRows(mock))
	mock.ExpectRollback()

	p := NewPublisher(mock, NewRepository(), discardLogger(), nil, PublisherConfig{BatchSize: 10, PollEvery: time.Second})
	_, err = p.PublishBatch(context.Background(), &recordingWriter{err: errors.New("leader not available")})
	if err == nil {
		t.Fatalf("expected kafka error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPublishBatchEmptyCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, event_id").WithArgs(50).
		WillReturnRows(mock.NewRows([]string{"id", "event_id", "aggregate_id", "event_type", "payload", "traceparent", "tracestate"}))
	mock.ExpectCommit()

	p := NewPublisher(mock, NewRepository(), discardLogger(), nil, PublisherConfig{})
	n, err := p.PublishBatch(context.Background(), &recordingWriter{})
	if err != nil || n != 0 {
		t.Fatalf("expected empty batch, got n=%d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBuildMessageContinuesStoredTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	msg := buildMessage(context.Background(), Record{
		ID:          7,
		EventID:     "evt-7",
		AggregateID: "appt-7",
		EventType:   EventAppointmentStatusChanged,
		Payload:     []byte(`{}`),
		Traceparent: traceparent,
	})

	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != traceparent {
		t.Fatalf("expected traceparent header %q, got %q", traceparent, got)
	}
	sc := trace.SpanContextFromContext(kafkax.ExtractTraceContext(context.Background(), msg))
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" || !sc.IsRemote() {
		t.Fatalf("consumer would not continue the trace: %+v", sc)
	}
}
