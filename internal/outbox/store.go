package outbox

import (
	"sort"
	"sync"
	"time"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

// QueryFilter narrows GetPending; zero values mean "unset" (Status defaults
// to Pending, OlderThan/NewerThan are ignored when zero, Limit ≤ 0 means
// unbounded).
type QueryFilter struct {
	Status    Status
	OlderThan time.Time
	NewerThan time.Time
	Limit     int
}

// Store is the in-memory outbox registry (§4.5). The core ships exactly one
// implementation; persistence across restarts is an explicit open question
// the spec leaves to collaborators (see DESIGN.md).
type Store interface {
	Enqueue(msg message.Message, dest message.TransportAddress, opts Options) *Entry
	Get(id string) (*Entry, bool)
	GetPending(filter QueryFilter) []*Entry
	MarkProcessing(id string) bool
	UpdateRetryCount(id string, n int, nextAt time.Time) bool
	MarkProcessed(id string) bool
	MarkFailed(id, lastError string) bool
}

// InMemoryStore is the Store implementation, grounded on the teacher's
// outbox repository shape (fetch-and-lock pending, mark completed/failed,
// schedule retry) generalized from a SQL/Mongo table to a plain map.
type InMemoryStore struct {
	mu      sync.Mutex
	clock   config.TimeSource
	entries map[string]*Entry
}

func NewInMemoryStore(clock config.TimeSource) *InMemoryStore {
	return &InMemoryStore{clock: clock, entries: make(map[string]*Entry)}
}

func (s *InMemoryStore) Enqueue(msg message.Message, dest message.TransportAddress, opts Options) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &Entry{
		ID:           msg.ID().String(),
		Message:      msg,
		Destination:  dest,
		MessageGroup: opts.MessageGroup,
		CreatedAt:    s.clock.Now(),
		Status:       StatusPending,
		Priority:     opts.Priority,
		MaxRetries:   opts.MaxRetries,
	}
	s.entries[e.ID] = e
	return e
}

func (s *InMemoryStore) Get(id string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// GetPending returns entries matching filter, ordered by ascending Priority
// then ascending CreatedAt.
func (s *InMemoryStore) GetPending(filter QueryFilter) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := filter.Status
	if status == "" {
		status = StatusPending
	}
	now := s.clock.Now()

	var matched []*Entry
	for _, e := range s.entries {
		if e.Status != status {
			continue
		}
		if !e.NextRetryAt.IsZero() && e.NextRetryAt.After(now) {
			continue
		}
		if !filter.OlderThan.IsZero() && !e.CreatedAt.Before(filter.OlderThan) {
			continue
		}
		if !filter.NewerThan.IsZero() && !e.CreatedAt.After(filter.NewerThan) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

func (s *InMemoryStore) MarkProcessing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != StatusPending {
		return false
	}
	e.Status = StatusProcessing
	return true
}

// UpdateRetryCount sets RetryCount to n and schedules nextAt; reaching
// MaxRetries transitions the entry to Failed instead.
func (s *InMemoryStore) UpdateRetryCount(id string, n int, nextAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.RetryCount = n
	if e.MaxRetries > 0 && n >= e.MaxRetries {
		e.Status = StatusFailed
		e.ProcessedAt = s.clock.Now()
		return true
	}
	e.Status = StatusPending
	e.NextRetryAt = nextAt
	return true
}

// MarkProcessed is idempotent: the first call transitions Processing (or
// Pending) to Processed and returns true; a second call returns false.
func (s *InMemoryStore) MarkProcessed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status == StatusProcessed {
		return false
	}
	e.Status = StatusProcessed
	e.ProcessedAt = s.clock.Now()
	return true
}

// MarkFailed is idempotent: the first call transitions to Failed and
// returns true; a second call returns false.
func (s *InMemoryStore) MarkFailed(id, lastError string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status == StatusFailed {
		return false
	}
	e.Status = StatusFailed
	e.LastError = lastError
	e.ProcessedAt = s.clock.Now()
	return true
}
