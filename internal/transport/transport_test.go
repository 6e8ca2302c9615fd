package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	clock := config.NewFixedClock(time.Unix(0, 0))
	cfg := DefaultConfig("test")
	return New(cfg, clock, zerolog.Nop())
}

func connect(t *testing.T, tr *Transport) {
	t.Helper()
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
}

func TestOperationsFailWhenNotConnected(t *testing.T) {
	tr := newTestTransport(t)
	env := message.TransportEnvelope{MessageType: "thing", MessageID: message.NewMessageID().String()}

	if err := tr.Send(context.Background(), message.QueueAddress("q"), env); err == nil {
		t.Fatal("expected Send to fail before Connect")
	}
}

func TestConnectTransitionsDisconnectedToConnected(t *testing.T) {
	tr := newTestTransport(t)
	var observed []State
	tr.OnStateChange(func(o StateObservation) { observed = append(observed, o.Current) })

	connect(t, tr)

	if tr.State() != StateConnected {
		t.Fatalf("expected Connected, got %v", tr.State())
	}
	if len(observed) != 2 || observed[0] != StateConnecting || observed[1] != StateConnected {
		t.Fatalf("expected Connecting then Connected observations, got %v", observed)
	}
}

func TestSendAndQueueConsumerDelivers(t *testing.T) {
	tr := newTestTransport(t)
	connect(t, tr)

	var got message.TransportEnvelope
	var mu sync.Mutex
	done := make(chan struct{})

	_, err := tr.Subscribe(message.QueueAddress("orders"), func(ctx context.Context, dc DeliveryContext, env message.TransportEnvelope) error {
		mu.Lock()
		got = env
		mu.Unlock()
		close(done)
		return nil
	}, SubscribeOptions{AutoAcknowledge: true, StartImmediately: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	env := message.TransportEnvelope{MessageType: "order.placed", MessageID: message.NewMessageID().String()}
	if err := tr.Send(context.Background(), message.QueueAddress("orders"), env); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.MessageType != "order.placed" {
		t.Fatalf("expected delivered envelope to match, got %+v", got)
	}
}

func TestPublishFanOutSkipsLateSubscribers(t *testing.T) {
	tr := newTestTransport(t)
	connect(t, tr)

	var earlyCount, lateCount int
	var mu sync.Mutex
	earlyDone := make(chan struct{})

	_, err := tr.Subscribe(message.TopicAddress("events"), func(ctx context.Context, dc DeliveryContext, env message.TransportEnvelope) error {
		mu.Lock()
		earlyCount++
		mu.Unlock()
		close(earlyDone)
		return nil
	}, SubscribeOptions{AutoAcknowledge: true, StartImmediately: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	env := message.TransportEnvelope{MessageType: "thing.happened", MessageID: message.NewMessageID().String()}
	if err := tr.Publish(context.Background(), message.TopicAddress("events"), env); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-earlyDone:
	case <-time.After(time.Second):
		t.Fatal("early subscriber never received publish")
	}

	_, err = tr.Subscribe(message.TopicAddress("events"), func(ctx context.Context, dc DeliveryContext, env message.TransportEnvelope) error {
		mu.Lock()
		lateCount++
		mu.Unlock()
		return nil
	}, SubscribeOptions{AutoAcknowledge: true, StartImmediately: true})
	if err != nil {
		t.Fatalf("late Subscribe failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if earlyCount != 1 {
		t.Fatalf("expected early subscriber to receive exactly one message, got %d", earlyCount)
	}
	if lateCount != 0 {
		t.Fatalf("expected late subscriber to receive nothing, got %d", lateCount)
	}
}

func TestSubscribeDuplicateConsumerIDFails(t *testing.T) {
	tr := newTestTransport(t)
	connect(t, tr)

	noop := func(ctx context.Context, dc DeliveryContext, env message.TransportEnvelope) error { return nil }

	if _, err := tr.Subscribe(message.QueueAddress("q"), noop, SubscribeOptions{ConsumerID: "dup"}); err != nil {
		t.Fatalf("first Subscribe failed: %v", err)
	}
	if _, err := tr.Subscribe(message.QueueAddress("q"), noop, SubscribeOptions{ConsumerID: "dup"}); err == nil {
		t.Fatal("expected duplicate ConsumerId to fail")
	}
}

func TestGetHealthMapsStateToStatus(t *testing.T) {
	tr := newTestTransport(t)

	if got := tr.GetHealth().Status; got != HealthUnhealthy {
		t.Fatalf("expected Unhealthy while Disconnected, got %v", got)
	}

	connect(t, tr)
	if got := tr.GetHealth().Status; got != HealthHealthy {
		t.Fatalf("expected Healthy while Connected, got %v", got)
	}
}

func TestDisconnectStopsConsumersAndDropsQueues(t *testing.T) {
	tr := newTestTransport(t)
	connect(t, tr)

	noop := func(ctx context.Context, dc DeliveryContext, env message.TransportEnvelope) error { return nil }
	c, err := tr.Subscribe(message.QueueAddress("q"), noop, SubscribeOptions{AutoAcknowledge: true, StartImmediately: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	tr.Disconnect()

	if c.IsActive() {
		t.Fatal("expected consumer to be stopped after Disconnect")
	}
	if tr.State() != StateDisconnected {
		t.Fatalf("expected Disconnected, got %v", tr.State())
	}
}
