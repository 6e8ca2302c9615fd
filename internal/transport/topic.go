package transport

import (
	"context"
	"sync"

	"go.heromessaging.dev/internal/message"
)

// topicRegistry holds, per topic name, the set of subscriber feeds current
// at publish time. A subscriber joining after a Publish call never sees
// messages published before it subscribed (§4.7 Publish).
type topicRegistry struct {
	mu     sync.RWMutex
	topics map[string][]chan message.TransportEnvelope
}

func newTopicRegistry() *topicRegistry {
	return &topicRegistry{topics: make(map[string][]chan message.TransportEnvelope)}
}

func (r *topicRegistry) declare(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.topics[name]; !exists {
		r.topics[name] = nil
	}
}

// subscribe returns a fresh feed channel registered against name.
func (r *topicRegistry) subscribe(name string) chan message.TransportEnvelope {
	feed := make(chan message.TransportEnvelope, 64)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[name] = append(r.topics[name], feed)
	return feed
}

// publish copies env to every feed registered against name at the moment of
// the call.
func (r *topicRegistry) publish(ctx context.Context, name string, env message.TransportEnvelope) {
	r.mu.RLock()
	feeds := append([]chan message.TransportEnvelope{}, r.topics[name]...)
	r.mu.RUnlock()

	for _, feed := range feeds {
		select {
		case feed <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (r *topicRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
