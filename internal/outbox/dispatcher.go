package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"go.heromessaging.dev/internal/common/metrics"
	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

// Sender is the minimal transport capability the dispatcher depends on —
// kept as its own interface (rather than importing internal/transport
// directly) so transport may depend on outbox without a cycle.
type Sender interface {
	Send(ctx context.Context, dest message.TransportAddress, msg message.Message) error
}

// DispatcherConfig mirrors the teacher's ProcessorConfig, stripped of the
// multi-instance/leader-election and database-table concerns that don't
// apply to a single-process in-memory store.
type DispatcherConfig struct {
	PollInterval        time.Duration
	PollBatchSize       int
	SendBatchSize       int
	MaxConcurrentGroups int
	MaxInFlight         int
	StuckTimeout        time.Duration
	BaseBackoff         time.Duration
	BackoffFactor       float64
	MaxBackoff          time.Duration

	// SendRatePerSecond caps how many Sender.Send calls the dispatcher
	// issues per second across all groups, 0 disables the limit. Protects
	// a downstream transport from a thundering herd of group workers all
	// becoming ready at once.
	SendRatePerSecond float64
	SendBurst         int
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval:        time.Second,
		PollBatchSize:       500,
		SendBatchSize:       100,
		MaxConcurrentGroups: 10,
		MaxInFlight:         2500,
		StuckTimeout:        30 * time.Second,
		BaseBackoff:         200 * time.Millisecond,
		BackoffFactor:       2.0,
		MaxBackoff:          30 * time.Second,
	}
}

// Dispatcher is the outbox's single-poller, per-group-FIFO delivery engine
// (§4.5), grounded on the teacher's outbox.Processor: one poller fetches
// Pending entries, a distributor fans them out by message group, and a
// semaphore bounds how many groups dispatch concurrently. Instead of
// batching to an external HTTP API, each entry is handed to Sender.Send.
type Dispatcher struct {
	cfg    DispatcherConfig
	store  Store
	sender Sender
	clock  config.TimeSource
	logger zerolog.Logger

	buffer         chan *Entry
	bufferSize     int32
	inFlightCount  int32
	groupSemaphore chan struct{}
	groupWorkers   sync.Map // map[string]*groupWorker
	sendLimiter    *rate.Limiter

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	runningMu sync.Mutex
	running   bool
	pollMu    sync.Mutex
}

func NewDispatcher(store Store, sender Sender, clock config.TimeSource, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	var limiter *rate.Limiter
	if cfg.SendRatePerSecond > 0 {
		burst := cfg.SendBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRatePerSecond), burst)
	}
	return &Dispatcher{
		cfg:            cfg,
		store:          store,
		sender:         sender,
		clock:          clock,
		logger:         logger,
		buffer:         make(chan *Entry, cfg.MaxInFlight),
		groupSemaphore: make(chan struct{}, cfg.MaxConcurrentGroups),
		sendLimiter:    limiter,
	}
}

func (d *Dispatcher) Start() {
	d.runningMu.Lock()
	defer d.runningMu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.wg.Add(2)
	go d.runDistributor()
	go d.runPoller()

	d.logger.Info().
		Dur("poll_interval", d.cfg.PollInterval).
		Int("poll_batch_size", d.cfg.PollBatchSize).
		Int("max_concurrent_groups", d.cfg.MaxConcurrentGroups).
		Msg("outbox dispatcher started")
}

func (d *Dispatcher) Stop() {
	d.runningMu.Lock()
	if !d.running {
		d.runningMu.Unlock()
		return
	}
	d.running = false
	d.runningMu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.logger.Info().Msg("outbox dispatcher stopped")
}

func (d *Dispatcher) Stats() Stats {
	inFlight := atomic.LoadInt32(&d.inFlightCount)
	groups := 0
	d.groupWorkers.Range(func(_, _ any) bool { groups++; return true })
	return Stats{
		InFlight:      int(inFlight),
		BufferedItems: int(atomic.LoadInt32(&d.bufferSize)),
		ActiveGroups:  groups,
	}
}

type Stats struct {
	InFlight      int
	BufferedItems int
	ActiveGroups  int
}

func (d *Dispatcher) runPoller() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.poll()
		}
	}
}

func (d *Dispatcher) poll() {
	if !d.pollMu.TryLock() {
		return
	}
	defer d.pollMu.Unlock()

	available := int(d.cfg.MaxInFlight) - int(atomic.LoadInt32(&d.inFlightCount))
	if available < d.cfg.PollBatchSize {
		return
	}

	start := d.clock.Now()
	defer func() { metrics.OutboxPollDuration.Observe(time.Since(start).Seconds()) }()

	entries := d.store.GetPending(QueryFilter{Status: StatusPending, Limit: d.cfg.PollBatchSize})
	if len(entries) == 0 {
		return
	}

	for _, e := range entries {
		if !d.store.MarkProcessing(e.ID) {
			continue // already claimed or transitioned by a concurrent caller
		}
		atomic.AddInt32(&d.inFlightCount, 1)
		select {
		case d.buffer <- e:
			atomic.AddInt32(&d.bufferSize, 1)
		case <-d.ctx.Done():
			return
		}
	}
	metrics.OutboxInFlightItems.Set(float64(atomic.LoadInt32(&d.inFlightCount)))
}

func (d *Dispatcher) runDistributor() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			d.drainBuffer()
			return
		case e := <-d.buffer:
			atomic.AddInt32(&d.bufferSize, -1)
			d.distribute(e)
		}
	}
}

func (d *Dispatcher) distribute(e *Entry) {
	groupKey := fmt.Sprintf("%s:%s", e.Destination.Name, e.EffectiveMessageGroup())

	workerI, _ := d.groupWorkers.LoadOrStore(groupKey, newGroupWorker(groupKey, d))
	worker := workerI.(*groupWorker)

	select {
	case worker.queue <- e:
		worker.tryStart()
	default:
		d.store.UpdateRetryCount(e.ID, e.RetryCount, time.Time{})
		atomic.AddInt32(&d.inFlightCount, -1)
		d.logger.Warn().Str("group", groupKey).Str("entry_id", e.ID).Msg("group queue full, dropping from this cycle")
	}
}

func (d *Dispatcher) drainBuffer() {
	for {
		select {
		case e := <-d.buffer:
			atomic.AddInt32(&d.bufferSize, -1)
			d.store.UpdateRetryCount(e.ID, e.RetryCount, time.Time{})
			atomic.AddInt32(&d.inFlightCount, -1)
			d.logger.Debug().Str("entry_id", e.ID).Msg("draining entry during shutdown; will redispatch on next poll")
		default:
			return
		}
	}
}

// groupWorker processes entries for one message group in FIFO order,
// mirroring the teacher's MessageGroupProcessor.
type groupWorker struct {
	key        string
	queue      chan *Entry
	dispatcher *Dispatcher
	processing bool
	mu         sync.Mutex
}

func newGroupWorker(key string, d *Dispatcher) *groupWorker {
	return &groupWorker{key: key, queue: make(chan *Entry, 1000), dispatcher: d}
}

func (w *groupWorker) tryStart() {
	w.mu.Lock()
	if w.processing {
		w.mu.Unlock()
		return
	}
	w.processing = true
	w.mu.Unlock()
	go w.run()
}

func (w *groupWorker) run() {
	defer func() {
		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
	}()

	for {
		batch := w.collectBatch()
		if len(batch) == 0 {
			return
		}

		select {
		case w.dispatcher.groupSemaphore <- struct{}{}:
		case <-w.dispatcher.ctx.Done():
			return
		}
		w.processBatch(batch)
		<-w.dispatcher.groupSemaphore
	}
}

func (w *groupWorker) collectBatch() []*Entry {
	batch := make([]*Entry, 0, w.dispatcher.cfg.SendBatchSize)
	for i := 0; i < w.dispatcher.cfg.SendBatchSize; i++ {
		select {
		case e := <-w.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (w *groupWorker) processBatch(batch []*Entry) {
	d := w.dispatcher
	ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
	defer cancel()

	metrics.OutboxActiveGroups.Inc()
	defer metrics.OutboxActiveGroups.Dec()

	for _, e := range batch {
		if d.sendLimiter != nil {
			if err := d.sendLimiter.Wait(ctx); err != nil {
				return
			}
		}

		start := d.clock.Now()
		err := d.sender.Send(ctx, e.Destination, e.Message)
		metrics.OutboxSendDuration.Observe(time.Since(start).Seconds())

		atomic.AddInt32(&d.inFlightCount, -1)
		metrics.OutboxInFlightItems.Set(float64(atomic.LoadInt32(&d.inFlightCount)))

		if err == nil {
			d.store.MarkProcessed(e.ID)
			metrics.OutboxEntriesProcessed.WithLabelValues("processed").Inc()
			continue
		}

		if !message.IsRetryable(err) || e.RetryCount+1 >= e.MaxRetries {
			d.store.MarkFailed(e.ID, err.Error())
			metrics.OutboxEntriesProcessed.WithLabelValues("failed").Inc()
			d.logger.Warn().Str("entry_id", e.ID).Err(err).Msg("outbox entry failed permanently")
			continue
		}

		nextRetry := e.RetryCount + 1
		backoff := d.backoffFor(nextRetry)
		d.store.UpdateRetryCount(e.ID, nextRetry, d.clock.Now().Add(backoff))
		metrics.OutboxEntriesProcessed.WithLabelValues("retried").Inc()
	}
}

func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	delay := float64(d.cfg.BaseBackoff) * pow(d.cfg.BackoffFactor, attempt)
	if cap := float64(d.cfg.MaxBackoff); delay > cap {
		delay = cap
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
