package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.heromessaging.dev/internal/common/metrics"
	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
	"go.heromessaging.dev/internal/queue"
)

func newConsumerID() string { return uuid.NewString() }

// DeliveryContext accompanies every envelope handed to a handler (§4.8):
// the source it arrived on, the redelivery attempt count, and a cancel hook
// the handler can use to abandon long-running work cooperatively.
type DeliveryContext struct {
	Source  message.TransportAddress
	Attempt int
	Cancel  context.CancelFunc
}

// Consumer pulls envelopes from one Source, invokes handler, and
// acknowledges or rejects per AutoAcknowledge (§4.8).
type Consumer struct {
	id      string
	source  message.TransportAddress
	handler HandlerFunc
	opts    SubscribeOptions
	clock   config.TimeSource
	log     zerolog.Logger

	storage         queue.Storage
	maxDequeueCount int
	feed            chan message.TransportEnvelope

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	active atomic.Bool
}

func newQueueConsumer(id string, source message.TransportAddress, handler HandlerFunc, opts SubscribeOptions, storage queue.Storage, maxDequeueCount int, clock config.TimeSource, log zerolog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		id: id, source: source, handler: handler, opts: opts, clock: clock,
		log:             log.With().Str("consumer", id).Str("source", source.Name).Logger(),
		storage:         storage, maxDequeueCount: maxDequeueCount,
		ctx: ctx, cancel: cancel,
	}
}

func newTopicConsumer(id string, source message.TransportAddress, handler HandlerFunc, opts SubscribeOptions, feed chan message.TransportEnvelope, clock config.TimeSource, log zerolog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		id: id, source: source, handler: handler, opts: opts, clock: clock,
		log:  log.With().Str("consumer", id).Str("source", source.Name).Logger(),
		feed: feed, ctx: ctx, cancel: cancel,
	}
}

func (c *Consumer) ID() string    { return c.id }
func (c *Consumer) IsActive() bool { return c.active.Load() }

// Start begins the consumer's worker loop, transitioning it to Active.
func (c *Consumer) Start() {
	if !c.active.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	if c.feed != nil {
		go c.runTopic()
	} else {
		go c.runQueue()
	}
}

// Stop halts the worker and waits for it to exit.
func (c *Consumer) Stop() {
	if !c.active.CompareAndSwap(true, false) {
		return
	}
	c.cancel()
	c.wg.Wait()
}

func (c *Consumer) runTopic() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case env, ok := <-c.feed:
			if !ok {
				return
			}
			c.deliver(env, 1, nil)
		}
	}
}

func (c *Consumer) runQueue() {
	defer c.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			entry, ok := c.storage.Dequeue(c.source.Name)
			if !ok {
				continue
			}
			env, isEnv := entry.Message.(interface {
				envelope() message.TransportEnvelope
			})
			if !isEnv {
				continue
			}
			c.deliver(env.envelope(), entry.DequeueCount, &entry)
		}
	}
}

// deliver invokes the handler and applies AutoAcknowledge semantics. entry
// is nil for topic deliveries, which have no ack/reject concept.
func (c *Consumer) deliver(env message.TransportEnvelope, attempt int, entry *queue.Entry) {
	dctx, dcancel := context.WithCancel(c.ctx)
	defer dcancel()

	err := c.handler(dctx, DeliveryContext{Source: c.source, Attempt: attempt, Cancel: dcancel}, env)
	metrics.ConsumerMessagesHandled.WithLabelValues(c.id, boolLabel(err == nil)).Inc()

	if entry == nil || !c.opts.AutoAcknowledge {
		return
	}

	if err == nil {
		c.storage.Ack(c.source.Name, entry.ID)
		return
	}

	c.log.Warn().Err(err).Str("entryId", entry.ID).Msg("handler failed, rejecting")
	requeue := c.maxDequeueCount <= 0 || entry.DequeueCount < c.maxDequeueCount
	c.storage.Reject(c.source.Name, entry.ID, requeue)
}

func boolLabel(b bool) string {
	if b {
		return "ok"
	}
	return "error"
}
