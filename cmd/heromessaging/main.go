// HeroMessaging demo server.
//
// Wires the ring buffer, queue, transport, outbox/inbox stores, and
// decorator pipeline into a single in-process binary exposing HTTP
// ingestion plus health/metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"go.heromessaging.dev/internal/common/lifecycle"
	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/correlation"
	"go.heromessaging.dev/internal/inbox"
	"go.heromessaging.dev/internal/instrumentation"
	"go.heromessaging.dev/internal/message"
	"go.heromessaging.dev/internal/outbox"
	"go.heromessaging.dev/internal/pipeline"
	"go.heromessaging.dev/internal/ring"
	"go.heromessaging.dev/internal/security"
	"go.heromessaging.dev/internal/transport"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// orderEvent is the demo payload the ring buffer pre-allocates; a stand-in
// for whatever high-rate event a real deployment feeds through the
// disruptor stage. No HTTP handler in this binary publishes into the ring.
type orderEvent struct {
	Type    string
	Payload json.RawMessage
}

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("HEROMESSAGING_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting HeroMessaging", "version", version, "build_time", buildTime)

	configPath := flag.String("config", "", "path to a TOML config file (defaults baked in if absent)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	zlevel, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(zlevel).With().Timestamp().Str("component", "heromessaging").Logger()

	clock := config.SystemClock{}

	tcfg := transport.DefaultConfig("in-process")
	tcfg.MaxQueueLength = cfg.Queue.MaxQueueLength
	tcfg.DropWhenFull = cfg.Queue.DropWhenFull
	tcfg.VisibilityTimeout = cfg.Queue.VisibilityTimeout
	tcfg.MaxDequeueCount = cfg.Queue.MaxDequeueCount

	tr := transport.New(tcfg, clock, zlog.With().Str("subcomponent", "transport").Logger())
	if err := tr.Connect(context.Background()); err != nil {
		slog.Error("transport failed to connect", "error", err)
		os.Exit(1)
	}

	outboxStore := outbox.NewInMemoryStore(clock)
	dispatcher := outbox.NewDispatcher(outboxStore, transportSender{tr}, clock, outbox.DefaultDispatcherConfig(),
		zlog.With().Str("subcomponent", "outbox").Logger())
	dispatcher.Start()

	inboxStore := inbox.NewInMemoryStore(clock)

	jwtSecret := []byte(envOrDefault("HEROMESSAGING_JWT_SECRET", "dev-only-insecure-secret"))
	authn := security.NewJWTAuthenticationProvider(jwtSecret)
	authz := security.NewRoleAuthorizationProvider()
	authz.Grant("publisher", security.PermissionName("demo.command", security.OperationHandle))
	authz.Grant("admin", security.PermissionName("demo.command", security.OperationHandle))

	instr := instrumentation.NewOtel()

	validators := pipeline.NewValidatorRegistry()
	validators.Register("demo.command", pipeline.ValidatorFunc(func(ctx context.Context, msg message.Message) pipeline.ValidationOutcome {
		cmd, ok := msg.(*message.Command)
		if !ok || cmd.Payload == nil {
			return pipeline.Invalid("payload is required")
		}
		return pipeline.Valid()
	}))

	retryCfg := pipeline.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.Retry.MaxAttempts
	retryCfg.BaseDelay = cfg.Retry.BaseDelay
	retryCfg.Factor = cfg.Retry.Factor
	retryCfg.MaxDelay = cfg.Retry.MaxDelay
	retryCfg.Jitter = cfg.Retry.Jitter

	terminal := func(ctx context.Context, msg message.Message, pctx *pipeline.ProcessingContext) (pipeline.ProcessingResult, error) {
		cmd := msg.(*message.Command)
		entry := outboxStore.Enqueue(
			message.NewEvent("demo.command.accepted", cmd.Payload).WithCorrelation(correlation.CurrentCorrelationID(ctx), cmd.ID().String()),
			message.QueueAddress("demo.accepted"),
			outbox.Options{Priority: cfg.Outbox.DefaultPriority, MaxRetries: cfg.Outbox.MaxRetries},
		)
		return pipeline.Succeed(entry.ID), nil
	}

	demoPipeline := pipeline.New("demo",
		clock,
		terminal,
		pipeline.Observability(instr),
		pipeline.Authorization(authz, security.OperationHandle),
		pipeline.Validation(validators),
		pipeline.Retry(retryCfg, zlog.With().Str("subcomponent", "pipeline").Logger()),
	)

	// A demo consumer on the accepted-event queue, exercising the inbox's
	// dedup/lifecycle tracking on the receive side (§4.6).
	consumerLog := zlog.With().Str("subcomponent", "consumer").Logger()
	_, err = tr.Subscribe(message.QueueAddress("demo.accepted"), func(ctx context.Context, dc transport.DeliveryContext, env message.TransportEnvelope) error {
		delivered := deliveredMessage(env, clock)
		id := delivered.ID().String()
		entry := inboxStore.Add(delivered, inbox.Options{RequireIdempotency: cfg.Inbox.RequireIdempotency, Window: cfg.Inbox.Window})
		if entry == nil {
			consumerLog.Debug().Str("message_id", id).Msg("duplicate delivery suppressed")
			return nil
		}
		consumerLog.Info().Str("message_id", id).Str("correlation_id", delivered.CorrelationID()).Msg("accepted event delivered")
		inboxStore.MarkProcessed(id)
		return nil
	}, transport.SubscribeOptions{ConsumerID: "demo-accepted-consumer", AutoAcknowledge: true, StartImmediately: true})
	if err != nil {
		slog.Error("failed to subscribe demo consumer", "error", err)
		os.Exit(1)
	}

	// Ring-buffer ingestion stage: a single drain goroutine feeds each
	// published event into the pipeline. The HTTP handlers below run the
	// pipeline directly and do not publish into the ring.
	ringBuffer := buildRing(cfg.Ring)
	ringDrainCtx, cancelRingDrain := context.WithCancel(context.Background())
	go drainRing(ringDrainCtx, ringBuffer, demoPipeline, consumerLog)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Post("/messages", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Payload json.RawMessage `json:"payload"`
			Token   string          `json:"token"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := req.Context()
		var principal security.Principal
		if body.Token != "" {
			var err error
			principal, err = authn.Authenticate(ctx, body.Token)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
		}

		cmd := message.NewCommand("demo.command", body.Payload)
		ctx, scope := correlation.BeginScopeFromMessage(ctx, cmd)
		defer scope.End()

		result, err := demoPipeline.RunAs(ctx, cmd, principal)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if !result.Success {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprintf(w, `{"success":false,"message":%q}`, result.Message)
			return
		}
		fmt.Fprintf(w, `{"success":true,"result":%q}`, fmt.Sprint(result.Result))
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		health := tr.GetHealth()
		w.Header().Set("Content-Type", "application/json")
		if health.Status != transport.HealthHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, `{"status":%q,"queues":%d,"topics":%d,"consumers":%d}`,
			health.Status.String(), health.Data.QueueCount, health.Data.TopicCount, health.Data.ConsumerCount)
	})
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	manager := lifecycle.NewManager()
	manager.RegisterHTTPShutdown("http-server", server.Shutdown)
	manager.RegisterTransportShutdown("transport", func(ctx context.Context) error {
		cancelRingDrain()
		tr.Disconnect()
		return nil
	})
	manager.RegisterWorkerShutdown("outbox-dispatcher", func(ctx context.Context) error {
		dispatcher.Stop()
		return nil
	})

	if err := manager.Run(); err != nil {
		slog.Error("shutdown did not complete cleanly", "error", err)
		os.Exit(1)
	}

	slog.Info("HeroMessaging stopped")
}

// transportSender adapts *transport.Transport to outbox.Sender so the
// dispatcher can depend on a narrow interface without importing transport
// directly (avoiding the import cycle transport already avoids the other way).
type transportSender struct {
	tr *transport.Transport
}

func (s transportSender) Send(ctx context.Context, dest message.TransportAddress, msg message.Message) error {
	env := message.NewTransportEnvelope(messageTypeOf(msg), nil, msg)
	return s.tr.Send(ctx, dest, env)
}

// wireMessage adapts a delivered TransportEnvelope back into a
// message.Message for the inbox, which dedups by message.MessageID rather
// than by the envelope's wire fields directly.
type wireMessage struct {
	env message.TransportEnvelope
	id  message.MessageID
	ts  time.Time
}

func deliveredMessage(env message.TransportEnvelope, clock config.TimeSource) *wireMessage {
	id, err := message.ParseMessageID(env.MessageID)
	if err != nil {
		id = message.NewMessageID()
	}
	return &wireMessage{env: env, id: id, ts: clock.Now()}
}

func (w *wireMessage) ID() message.MessageID    { return w.id }
func (w *wireMessage) Kind() message.Kind       { return message.KindEvent }
func (w *wireMessage) Timestamp() time.Time     { return w.ts }
func (w *wireMessage) CorrelationID() string    { return w.env.CorrelationID }
func (w *wireMessage) CausationID() string      { return w.env.CausationID }
func (w *wireMessage) Metadata() map[string]any { return nil }

func (w *wireMessage) WithCorrelation(correlationID, causationID string) message.Message {
	if correlationID == "" && causationID == "" {
		return w
	}
	cp := *w
	cp.env.CorrelationID = correlationID
	cp.env.CausationID = causationID
	return &cp
}

func messageTypeOf(msg message.Message) string {
	switch m := msg.(type) {
	case *message.Command:
		return m.Name
	case *message.Event:
		return m.Name
	default:
		return msg.Kind().String()
	}
}

func buildRing(cfg config.RingConfig) *ring.RingBuffer[orderEvent] {
	var wait ring.WaitStrategy
	switch cfg.WaitStrategy {
	case "blocking":
		wait = ring.NewBlockingWaitStrategy()
	case "sleeping":
		wait = ring.NewSleepingWaitStrategy()
	case "busyspin":
		wait = ring.NewBusySpinWaitStrategy()
	default:
		wait = ring.NewYieldingWaitStrategy()
	}

	producer := ring.ProducerMulti
	if cfg.ProducerMode == "single" {
		producer = ring.ProducerSingle
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 8192
	}

	rb, err := ring.NewRingBuffer(bufferSize, func() orderEvent { return orderEvent{} }, producer, wait)
	if err != nil {
		slog.Error("failed to construct ring buffer", "error", err)
		os.Exit(1)
	}
	return rb
}

// ringSystemPrincipal is attached to every command the ring drain loop
// feeds into the pipeline: ring ingestion is an internal, already-trusted
// path rather than an externally authenticated one.
var ringSystemPrincipal = security.Principal{Subject: "system:ring", Claims: map[string]any{"roles": []any{"admin"}}}

// drainRing runs the single consumer side of the demo ring: it waits on
// the barrier for newly published slots and feeds each one into the
// pipeline as a fresh command, mirroring how a disruptor event handler
// would be wired in front of a processing stage.
func drainRing(ctx context.Context, rb *ring.RingBuffer[orderEvent], p *pipeline.Pipeline, log zerolog.Logger) {
	consumed := ring.NewSequence(-1)
	rb.AddGatingSequences(consumed)
	barrier := rb.NewBarrier()

	next := int64(0)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		available := barrier.WaitFor(next)
		if available < next {
			continue
		}
		for seq := next; seq <= available; seq++ {
			evt := rb.Get(seq)
			if evt.Type != "" {
				cmd := message.NewCommand(evt.Type, evt.Payload)
				if _, err := p.RunAs(ctx, cmd, ringSystemPrincipal); err != nil {
					log.Error().Err(err).Str("ring_event", evt.Type).Msg("ring-sourced command failed")
				}
			}
			consumed.Set(seq)
		}
		next = available + 1
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
