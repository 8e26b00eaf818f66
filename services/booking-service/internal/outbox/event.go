package outbox

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (one topic per event type).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateAppointment = "appointment"
	AggregateProvider    = "provider"

	EventAppointmentBooked        = "booking.appointment.booked.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
	EventWorkingHoursUpdated      = "provider.working_hours.updated.v1"
	EventBusyStatusUpdated        = "provider.busy_status.updated.v1"
)

// Record is an unpublished outbox row.
type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
}
