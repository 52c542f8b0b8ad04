package outbox

import "time"

// Status is the lifecycle of an outbox row. A failed publish sends the row
// back to pending until it has been tried MaxAttempts times.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

const MaxAttempts = 10

// Event is a domain event written in the same transaction as the state
// change it describes.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	// Traceparent is the W3C trace context of the request that wrote the row.
	Traceparent string
	CreatedAt   time.Time
	Status      Status
	RetryCount  int
}
