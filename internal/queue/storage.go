package queue

import (
	"context"
	"sync"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

// Storage is the named-queue registry (§4.4).
type Storage interface {
	CreateQueue(name string, opts Options) bool
	QueueExists(name string) bool
	Enqueue(ctx context.Context, name string, msg message.Message, opts EnqueueOptions) (Entry, error)
	Dequeue(name string) (Entry, bool)
	Peek(name string, count int) []Entry
	Ack(name, id string) bool
	Reject(name, id string, requeue bool) bool
	GetQueueDepth(name string) int
	DeleteQueue(name string) bool
	QueueCount() int
	TotalDepth() int
}

// InMemoryStorage is the only Storage implementation the core ships: every
// named queue is a ChannelQueue kept for the process lifetime (§9 open
// question — no cross-restart persistence).
type InMemoryStorage struct {
	mu     sync.RWMutex
	clock  config.TimeSource
	queues map[string]*ChannelQueue
}

func NewInMemoryStorage(clock config.TimeSource) *InMemoryStorage {
	return &InMemoryStorage{clock: clock, queues: make(map[string]*ChannelQueue)}
}

// CreateQueue returns true if created, false on duplicate. Idempotent for
// missing queues (a fresh queue always succeeds).
func (s *InMemoryStorage) CreateQueue(name string, opts Options) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queues[name]; exists {
		return false
	}
	s.queues[name] = NewChannelQueue(opts, s.clock)
	return true
}

func (s *InMemoryStorage) QueueExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.queues[name]
	return exists
}

func (s *InMemoryStorage) getOrCreate(name string) *ChannelQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, exists := s.queues[name]
	if !exists {
		q = NewChannelQueue(DefaultOptions(), s.clock)
		s.queues[name] = q
	}
	return q
}

func (s *InMemoryStorage) get(name string) (*ChannelQueue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, exists := s.queues[name]
	return q, exists
}

// Enqueue auto-creates the queue if absent.
func (s *InMemoryStorage) Enqueue(ctx context.Context, name string, msg message.Message, opts EnqueueOptions) (Entry, error) {
	q := s.getOrCreate(name)
	entry, err := q.Enqueue(ctx, msg, opts)
	if err != nil {
		return Entry{}, err
	}
	return *entry, nil
}

// Dequeue returns an empty result, not an error, for an unknown queue.
func (s *InMemoryStorage) Dequeue(name string) (Entry, bool) {
	q, exists := s.get(name)
	if !exists {
		return Entry{}, false
	}
	return q.Dequeue()
}

func (s *InMemoryStorage) Peek(name string, count int) []Entry {
	q, exists := s.get(name)
	if !exists {
		return nil
	}
	return q.Peek(count)
}

func (s *InMemoryStorage) Ack(name, id string) bool {
	q, exists := s.get(name)
	if !exists {
		return false
	}
	return q.Ack(id)
}

func (s *InMemoryStorage) Reject(name, id string, requeue bool) bool {
	q, exists := s.get(name)
	if !exists {
		return false
	}
	return q.Reject(id, requeue)
}

func (s *InMemoryStorage) GetQueueDepth(name string) int {
	q, exists := s.get(name)
	if !exists {
		return 0
	}
	return q.Depth()
}

// QueueCount returns the number of named queues currently registered.
func (s *InMemoryStorage) QueueCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues)
}

// TotalDepth sums the depth of every registered queue.
func (s *InMemoryStorage) TotalDepth() int {
	s.mu.RLock()
	queues := make([]*ChannelQueue, 0, len(s.queues))
	for _, q := range s.queues {
		queues = append(queues, q)
	}
	s.mu.RUnlock()

	total := 0
	for _, q := range queues {
		total += q.Depth()
	}
	return total
}

// DeleteQueue removes the queue and drops unacked entries.
func (s *InMemoryStorage) DeleteQueue(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, exists := s.queues[name]
	if !exists {
		return false
	}
	q.Close()
	delete(s.queues, name)
	return true
}
