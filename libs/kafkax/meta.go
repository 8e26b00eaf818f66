package kafkax

import (
	"slices"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID     = "event_id"
	HeaderEventType   = "event_type"
	HeaderAggregateID = "aggregate_id"
	HeaderContentType = "content_type"
)

// EventMeta identifies an outbox event on the wire. Consumers dedupe on EventID.
type EventMeta struct {
	EventID     string
	EventType   string
	AggregateID string
}

// EventHeaders are the headers every outbox publisher stamps on a message. Payloads are JSON.
func EventHeaders(meta EventMeta) []kafka.Header {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(meta.EventID)},
		{Key: HeaderEventType, Value: []byte(meta.EventType)},
		{Key: HeaderContentType, Value: []byte("application/json")},
	}
	if meta.AggregateID != "" {
		headers = append(headers, kafka.Header{Key: HeaderAggregateID, Value: []byte(meta.AggregateID)})
	}
	return headers
}

// ExtractEventMeta reads EventHeaders back, falling back to the message key and topic for
// producers that do not set them.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:     HeaderValue(msg.Headers, HeaderEventID),
		EventType:   HeaderValue(msg.Headers, HeaderEventType),
		AggregateID: HeaderValue(msg.Headers, HeaderAggregateID),
	}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	if meta.AggregateID == "" {
		meta.AggregateID = string(msg.Key)
	}
	return meta
}

// HeaderValue returns the first header named key.
func HeaderValue(headers []kafka.Header, key string) string {
	i := slices.IndexFunc(headers, func(h kafka.Header) bool { return h.Key == key })
	if i < 0 {
		return ""
	}
	return string(headers[i].Value)
}

// SplitBrokers parses a KAFKA_BROKERS style list. It returns nil for an empty list.
func SplitBrokers(raw string) []string {
	brokers := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(brokers) == 0 {
		return nil
	}
	return brokers
}
