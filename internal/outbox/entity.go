// Package outbox implements the reliability envelope that gives
// at-least-once delivery with retry-with-backoff and dead-lettering (§4.5):
// a Pending/Processing/Processed/Failed lifecycle dispatched to the
// transport by a single poller fanned out across per-group workers.
package outbox

import (
	"time"

	"go.heromessaging.dev/internal/message"
)

// Status is the outbox entry lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

// Entry is a unit of reliable, at-least-once outbound delivery (§3
// "OutboxEntry"). Priority is ascending precedence (lower value dispatches
// first); RetryCount reaching MaxRetries transitions the entry to Failed.
type Entry struct {
	ID           string
	Message      message.Message
	Destination  message.TransportAddress
	MessageGroup string
	CreatedAt    time.Time
	Status       Status
	Priority     int
	RetryCount   int
	MaxRetries   int
	NextRetryAt  time.Time
	ProcessedAt  time.Time
	LastError    string
}

func (e *Entry) IsPending() bool    { return e.Status == StatusPending }
func (e *Entry) IsProcessing() bool { return e.Status == StatusProcessing }
func (e *Entry) IsProcessed() bool  { return e.Status == StatusProcessed }
func (e *Entry) IsFailed() bool     { return e.Status == StatusFailed }

// EffectiveMessageGroup returns MessageGroup or "default" if unset — every
// entry belongs to exactly one FIFO dispatch lane.
func (e *Entry) EffectiveMessageGroup() string {
	if e.MessageGroup == "" {
		return "default"
	}
	return e.MessageGroup
}

// Options configures an Enqueue call (§6 "Outbox").
type Options struct {
	Priority     int
	MaxRetries   int
	MessageGroup string
}
