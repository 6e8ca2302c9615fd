// Package inbox implements the deduplicating receive-side counterpart to
// the outbox (§4.6): a sliding dedup window bounding memory, and a
// Pending/Processed/Failed/Duplicate lifecycle tracking handler outcomes.
package inbox

import (
	"time"

	"go.heromessaging.dev/internal/message"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
	StatusDuplicate Status = "DUPLICATE"
)

// Entry is a received message tracked for deduplication and processing
// status (§3 "InboxEntry"). ID is the MessageID's string form.
type Entry struct {
	ID          string
	Message     message.Message
	ReceivedAt  time.Time
	Status      Status
	ProcessedAt time.Time
	Error       string
}

func (e *Entry) IsPending() bool   { return e.Status == StatusPending }
func (e *Entry) IsProcessed() bool { return e.Status == StatusProcessed }
func (e *Entry) IsFailed() bool    { return e.Status == StatusFailed }
func (e *Entry) IsDuplicate() bool { return e.Status == StatusDuplicate }

// Options configures an Add call (§6 "Inbox").
type Options struct {
	RequireIdempotency bool
	Window             time.Duration
}
