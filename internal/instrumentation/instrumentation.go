// Package instrumentation defines the single telemetry surface consumed by
// transport, consumer, and pipeline (§4.11). Implementations may be no-ops;
// nothing upstream depends on a specific backend.
package instrumentation

import (
	"context"
	"time"

	"go.heromessaging.dev/internal/message"
)

// Operation classifies a recorded span/metric for RecordOperation.
type Operation string

const (
	OperationSend    Operation = "send"
	OperationPublish Operation = "publish"
	OperationReceive Operation = "receive"
	OperationHandle  Operation = "handle"
)

// Status is the terminal state of a recorded operation.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Span is an opaque handle returned by the Start*Activity methods. A nil
// Span is valid input to every Record/AddEvent/End call — callers never
// need to nil-check before using one.
type Span interface {
	// End finalizes the span. Implementations that track open spans must
	// make End idempotent.
	End()
}

// Instrumentation is the abstraction surface Instrumentation implementations
// satisfy (§4.11).
type Instrumentation interface {
	StartSendActivity(ctx context.Context, env message.TransportEnvelope, destination string) (context.Context, Span)
	StartPublishActivity(ctx context.Context, env message.TransportEnvelope, destination string) (context.Context, Span)
	StartReceiveActivity(ctx context.Context, env message.TransportEnvelope, endpoint, transport, consumerID string) (context.Context, Span)

	RecordSendDuration(destination string, d time.Duration)
	RecordReceiveDuration(endpoint string, d time.Duration)
	RecordSerializationDuration(messageType string, d time.Duration)
	RecordOperation(name string, op Operation, status Status)
	RecordError(span Span, err error)
	AddEvent(span Span, name string, attrs map[string]string)

	// InjectTraceContext writes trace headers into env, returning the
	// updated (copy-on-write) envelope.
	InjectTraceContext(ctx context.Context, span Span, env message.TransportEnvelope) message.TransportEnvelope
	// ExtractTraceContext parses env's trace headers into a parent context.
	ExtractTraceContext(ctx context.Context, env message.TransportEnvelope) context.Context
}
