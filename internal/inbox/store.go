package inbox

import (
	"sort"
	"sync"
	"time"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

// QueryFilter mirrors the outbox's, but narrows by ReceivedAt instead of
// CreatedAt (§4.6 "Query semantics mirror the outbox").
type QueryFilter struct {
	Status     Status
	OlderThan  time.Time
	NewerThan  time.Time
	Limit      int
}

// Store is the in-memory inbox registry, grounded on the go-dojo
// idempotent-consumer example's dedup-then-handle flow generalized into a
// standalone store (cmd/heromessaging's demo consumer consults it).
type Store interface {
	// Add records msg as received. Returns the new entry, or nil when
	// RequireIdempotency is set and id already exists within the window.
	Add(msg message.Message, opts Options) *Entry
	Get(id string) (*Entry, bool)
	IsDuplicate(id string, window time.Duration) bool
	GetPending(filter QueryFilter) []*Entry
	MarkProcessed(id string) bool
	MarkFailed(id, errMsg string) bool
	// CleanupOldEntries removes only Processed entries older than maxAge;
	// Failed entries are retained for inspection.
	CleanupOldEntries(maxAge time.Duration) int
}

type InMemoryStore struct {
	mu      sync.Mutex
	clock   config.TimeSource
	entries map[string]*Entry
}

func NewInMemoryStore(clock config.TimeSource) *InMemoryStore {
	return &InMemoryStore{clock: clock, entries: make(map[string]*Entry)}
}

func (s *InMemoryStore) Add(msg message.Message, opts Options) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := msg.ID().String()
	now := s.clock.Now()

	if opts.RequireIdempotency {
		if existing, ok := s.entries[id]; ok && !existing.IsDuplicate() {
			if opts.Window <= 0 || !existing.ReceivedAt.Add(opts.Window).Before(now) {
				return nil
			}
		}
	}

	e := &Entry{ID: id, Message: msg, ReceivedAt: now, Status: StatusPending}
	s.entries[id] = e
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

// IsDuplicate reports whether an entry with id exists with ReceivedAt within
// [now-window, now] — the boundary at exactly ReceivedAt+window is inclusive.
func (s *InMemoryStore) IsDuplicate(id string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	now := s.clock.Now()
	return !e.ReceivedAt.Add(window).Before(now)
}

func (s *InMemoryStore) GetPending(filter QueryFilter) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := filter.Status
	if status == "" {
		status = StatusPending
	}

	var matched []*Entry
	for _, e := range s.entries {
		if e.Status != status {
			continue
		}
		if !filter.OlderThan.IsZero() && !e.ReceivedAt.Before(filter.OlderThan) {
			continue
		}
		if !filter.NewerThan.IsZero() && !e.ReceivedAt.After(filter.NewerThan) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ReceivedAt.Before(matched[j].ReceivedAt) })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

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

func (s *InMemoryStore) MarkFailed(id, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status == StatusFailed {
		return false
	}
	e.Status = StatusFailed
	e.Error = errMsg
	e.ProcessedAt = s.clock.Now()
	return true
}

// CleanupOldEntries removes only Processed entries whose ProcessedAt is
// older than maxAge, returning the count removed.
func (s *InMemoryStore) CleanupOldEntries(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-maxAge)
	removed := 0
	for id, e := range s.entries {
		if e.Status == StatusProcessed && e.ProcessedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
