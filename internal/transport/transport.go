// Package transport implements the in-process named-queue/topic broker
// (§4.7): a small connection state machine in front of the queue registry,
// plus a topic subscriber registry for fan-out publish.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.heromessaging.dev/internal/common/metrics"
	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
	"go.heromessaging.dev/internal/queue"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// StateObservation is emitted on every transition (§4.7 "state changes emit
// an observation").
type StateObservation struct {
	Previous  State
	Current   State
	Reason    string
	Timestamp time.Time
}

// Config configures a Transport (§6 "Transport" configuration surface).
type Config struct {
	Name                 string
	MaxQueueLength       int
	DropWhenFull         bool
	VisibilityTimeout    time.Duration
	MaxDequeueCount      int
	SimulateNetworkDelay bool
	SimulatedDelayMin    time.Duration
	SimulatedDelayMax    time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		MaxQueueLength:    10000,
		DropWhenFull:      false,
		VisibilityTimeout: 30 * time.Second,
		MaxDequeueCount:   5,
	}
}

type HealthStatus int

const (
	HealthHealthy HealthStatus = iota
	HealthDegraded
	HealthUnhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthHealthy:
		return "Healthy"
	case HealthDegraded:
		return "Degraded"
	default:
		return "Unhealthy"
	}
}

type HealthData struct {
	QueueCount    int
	TopicCount    int
	ConsumerCount int
}

type Health struct {
	Status          HealthStatus
	State           State
	TransportName   string
	StatusMessage   string
	Timestamp       time.Time
	ActiveConsumers int
	PendingMessages int
	Data            HealthData
}

// SubscribeOptions configures Subscribe (§6 "Consumer").
type SubscribeOptions struct {
	ConsumerID       string
	AutoAcknowledge  bool
	StartImmediately bool
}

// HandlerFunc processes a delivered envelope. A non-nil error triggers the
// consumer's reject/requeue path under AutoAcknowledge.
type HandlerFunc func(ctx context.Context, dc DeliveryContext, env message.TransportEnvelope) error

// Transport is named and holds a connection state; public operations other
// than Connect/Disconnect/GetHealth are only legal while Connected.
type Transport struct {
	mu    sync.RWMutex
	cfg   Config
	state State
	clock config.TimeSource
	log   zerolog.Logger

	storage queue.Storage
	topics  *topicRegistry

	consumers map[string]*Consumer

	observersMu sync.Mutex
	observers   []func(StateObservation)

	rng *rand.Rand
}

func New(cfg Config, clock config.TimeSource, logger zerolog.Logger) *Transport {
	return &Transport{
		cfg:       cfg,
		state:     StateDisconnected,
		clock:     clock,
		log:       logger.With().Str("transport", cfg.Name).Logger(),
		storage:   queue.NewInMemoryStorage(clock),
		topics:    newTopicRegistry(),
		consumers: make(map[string]*Consumer),
		rng:       rand.New(rand.NewSource(1)),
	}
}

// OnStateChange registers an observer invoked synchronously after every
// transition.
func (t *Transport) OnStateChange(fn func(StateObservation)) {
	t.observersMu.Lock()
	defer t.observersMu.Unlock()
	t.observers = append(t.observers, fn)
}

func (t *Transport) transition(next State, reason string) {
	t.mu.Lock()
	prev := t.state
	t.state = next
	t.mu.Unlock()

	obs := StateObservation{Previous: prev, Current: next, Reason: reason, Timestamp: t.clock.Now()}
	metrics.TransportState.WithLabelValues(t.cfg.Name).Set(float64(next))

	t.observersMu.Lock()
	observers := append([]func(StateObservation){}, t.observers...)
	t.observersMu.Unlock()
	for _, notify := range observers {
		notify(obs)
	}
	t.log.Info().Str("previous", prev.String()).Str("current", next.String()).Str("reason", reason).Msg("transport state changed")
}

func (t *Transport) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Connect moves Disconnected -> Connecting -> Connected, optionally honoring
// a simulated bounded random delay.
func (t *Transport) Connect(ctx context.Context) error {
	if t.State() != StateDisconnected {
		return message.NewError(message.ErrorKindInvalidOperation, "transport.Connect", "transport is not Disconnected", nil)
	}

	t.transition(StateConnecting, "connect requested")

	if t.cfg.SimulateNetworkDelay {
		delay := t.cfg.SimulatedDelayMin
		if t.cfg.SimulatedDelayMax > t.cfg.SimulatedDelayMin {
			delay += time.Duration(t.rng.Int63n(int64(t.cfg.SimulatedDelayMax - t.cfg.SimulatedDelayMin)))
		}
		select {
		case <-ctx.Done():
			t.transition(StateFaulted, "connect cancelled")
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	t.transition(StateConnected, "connected")
	return nil
}

func (t *Transport) requireConnected(op string) error {
	if t.State() != StateConnected {
		return message.NewError(message.ErrorKindInvalidOperation, op, "transport is closed", message.ErrQueueClosed)
	}
	return nil
}

// Send enqueues envelope on the named queue (§4.7 Send).
func (t *Transport) Send(ctx context.Context, dest message.TransportAddress, env message.TransportEnvelope) error {
	if err := t.requireConnected("transport.Send"); err != nil {
		return err
	}

	opts := queue.Options{MaxQueueLength: t.cfg.MaxQueueLength, DropWhenFull: t.cfg.DropWhenFull, VisibilityTimeout: t.cfg.VisibilityTimeout, MaxDequeueCount: t.cfg.MaxDequeueCount}
	t.storage.CreateQueue(dest.Name, opts)
	_, err := t.storage.Enqueue(ctx, dest.Name, wrapEnvelope(env, t.clock), queue.EnqueueOptions{})
	return err
}

// Publish fan-outs env to every current subscriber of dest's topic.
func (t *Transport) Publish(ctx context.Context, dest message.TransportAddress, env message.TransportEnvelope) error {
	if err := t.requireConnected("transport.Publish"); err != nil {
		return err
	}
	t.topics.publish(ctx, dest.Name, env)
	return nil
}

// Subscribe registers a consumer on source (§4.7 Subscribe).
func (t *Transport) Subscribe(source message.TransportAddress, handler HandlerFunc, opts SubscribeOptions) (*Consumer, error) {
	if err := t.requireConnected("transport.Subscribe"); err != nil {
		return nil, err
	}

	t.mu.Lock()
	id := opts.ConsumerID
	if id == "" {
		id = newConsumerID()
	}
	if _, exists := t.consumers[id]; exists {
		t.mu.Unlock()
		return nil, message.NewError(message.ErrorKindInvalidOperation, "transport.Subscribe", "duplicate ConsumerId", nil)
	}

	var c *Consumer
	if source.Type == message.AddressTopic {
		feed := t.topics.subscribe(source.Name)
		c = newTopicConsumer(id, source, handler, opts, feed, t.clock, t.log)
	} else {
		t.storage.CreateQueue(source.Name, queue.Options{MaxQueueLength: t.cfg.MaxQueueLength, DropWhenFull: t.cfg.DropWhenFull, VisibilityTimeout: t.cfg.VisibilityTimeout, MaxDequeueCount: t.cfg.MaxDequeueCount})
		c = newQueueConsumer(id, source, handler, opts, t.storage, t.cfg.MaxDequeueCount, t.clock, t.log)
	}
	t.consumers[id] = c
	t.mu.Unlock()

	if opts.StartImmediately {
		c.Start()
	}
	return c, nil
}

// Unsubscribe disposes a consumer, removing it from this transport.
func (t *Transport) Unsubscribe(id string) {
	t.mu.Lock()
	c, ok := t.consumers[id]
	delete(t.consumers, id)
	t.mu.Unlock()
	if ok {
		c.Stop()
	}
}

// Topology declares named queues and topics up front (ConfigureTopology).
type Topology struct {
	Queues []string
	Topics []string
}

// ConfigureTopology idempotently declares queues and topics.
func (t *Transport) ConfigureTopology(topo Topology) error {
	if err := t.requireConnected("transport.ConfigureTopology"); err != nil {
		return err
	}
	opts := queue.Options{MaxQueueLength: t.cfg.MaxQueueLength, DropWhenFull: t.cfg.DropWhenFull, VisibilityTimeout: t.cfg.VisibilityTimeout, MaxDequeueCount: t.cfg.MaxDequeueCount}
	for _, q := range topo.Queues {
		t.storage.CreateQueue(q, opts)
	}
	for _, tp := range topo.Topics {
		t.topics.declare(tp)
	}
	return nil
}

// Disconnect moves all consumers to Stopped and drops queues, topics, and
// subscriber registries.
func (t *Transport) Disconnect() {
	t.transition(StateDisconnecting, "disconnect requested")

	t.mu.Lock()
	consumers := t.consumers
	t.consumers = make(map[string]*Consumer)
	t.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
	}

	t.storage = queue.NewInMemoryStorage(t.clock)
	t.topics = newTopicRegistry()

	t.transition(StateDisconnected, "disconnected")
}

// GetHealth reports the transport's current health (§4.7 "Health report").
func (t *Transport) GetHealth() Health {
	state := t.State()

	status := HealthUnhealthy
	switch state {
	case StateConnected:
		status = HealthHealthy
	case StateConnecting, StateDisconnecting:
		status = HealthDegraded
	}

	t.mu.RLock()
	active := 0
	for _, c := range t.consumers {
		if c.IsActive() {
			active++
		}
	}
	t.mu.RUnlock()

	return Health{
		Status:          status,
		State:           state,
		TransportName:   t.cfg.Name,
		StatusMessage:   fmt.Sprintf("transport %s is %s", t.cfg.Name, state),
		Timestamp:       t.clock.Now(),
		ActiveConsumers: active,
		PendingMessages: t.storage.TotalDepth(),
		Data: HealthData{
			QueueCount:    t.storage.QueueCount(),
			TopicCount:    t.topics.count(),
			ConsumerCount: len(t.consumers),
		},
	}
}
