package instrumentation

import (
	"context"
	"time"

	"go.heromessaging.dev/internal/message"
)

type noopSpan struct{}

func (noopSpan) End() {}

// Noop satisfies Instrumentation with every method a no-op — the default
// when no telemetry backend is configured (§4.11 "implementations may be
// no-ops").
type Noop struct{}

func (Noop) StartSendActivity(ctx context.Context, env message.TransportEnvelope, destination string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (Noop) StartPublishActivity(ctx context.Context, env message.TransportEnvelope, destination string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (Noop) StartReceiveActivity(ctx context.Context, env message.TransportEnvelope, endpoint, transport, consumerID string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (Noop) RecordSendDuration(destination string, d time.Duration)           {}
func (Noop) RecordReceiveDuration(endpoint string, d time.Duration)           {}
func (Noop) RecordSerializationDuration(messageType string, d time.Duration)  {}
func (Noop) RecordOperation(name string, op Operation, status Status)        {}
func (Noop) RecordError(span Span, err error)                                {}
func (Noop) AddEvent(span Span, name string, attrs map[string]string)        {}

func (Noop) InjectTraceContext(ctx context.Context, span Span, env message.TransportEnvelope) message.TransportEnvelope {
	return env
}

func (Noop) ExtractTraceContext(ctx context.Context, env message.TransportEnvelope) context.Context {
	return ctx
}
