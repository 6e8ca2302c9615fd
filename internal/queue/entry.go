// Package queue implements the bounded, priority-aware channel queue (§4.3)
// and the named-queue storage registry (§4.4) that sits above it.
package queue

import (
	"time"

	"github.com/google/uuid"
	"go.heromessaging.dev/internal/message"
)

// Options configures a named queue at creation time (§6 "Queue").
type Options struct {
	MaxQueueLength    int
	DropWhenFull      bool
	VisibilityTimeout time.Duration
	MaxDequeueCount   int
}

// DefaultOptions mirrors config.Default's queue section; Storage applies it
// to queues that Enqueue creates on demand. CreateQueue uses the Options it
// is given as-is, zero values included.
func DefaultOptions() Options {
	return Options{
		MaxQueueLength:    10_000,
		DropWhenFull:      false,
		VisibilityTimeout: 30 * time.Second,
		MaxDequeueCount:   5,
	}
}

// EnqueueOptions configures a single Enqueue call.
type EnqueueOptions struct {
	Priority int
	Delay    time.Duration
}

// Entry is a message resident in a channel queue (§3 "Queue entry").
type Entry struct {
	ID           string
	Message      message.Message
	EnqueuedAt   time.Time
	VisibleAt    time.Time
	DequeueCount int
	Priority     int
}

func newEntryID() string {
	return uuid.NewString()
}
