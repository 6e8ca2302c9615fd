package instrumentation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"go.heromessaging.dev/internal/common/metrics"
	"go.heromessaging.dev/internal/message"
	"go.heromessaging.dev/internal/tracecontext"
)

const instrumentationName = "go.heromessaging.dev/internal/transport"

type otelSpan struct{ span trace.Span }

func (s otelSpan) End() { s.span.End() }

func asOtelSpan(s Span) (trace.Span, bool) {
	os, ok := s.(otelSpan)
	if !ok {
		return nil, false
	}
	return os.span, true
}

// Otel wraps go.opentelemetry.io/otel spans and internal/common/metrics
// Prometheus vectors — the two telemetry backends the teacher's stack
// already carries (OTel traces, Prometheus metrics).
type Otel struct {
	tracer trace.Tracer
}

func NewOtel() *Otel {
	return &Otel{tracer: otel.Tracer(instrumentationName)}
}

func (o *Otel) StartSendActivity(ctx context.Context, env message.TransportEnvelope, destination string) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, "process_message", trace.WithAttributes(
		attribute.String("message_type", env.MessageType),
		attribute.String("destination", destination),
	))
	return ctx, otelSpan{span}
}

func (o *Otel) StartPublishActivity(ctx context.Context, env message.TransportEnvelope, destination string) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, "process_message")
	return ctx, otelSpan{span}
}

func (o *Otel) StartReceiveActivity(ctx context.Context, env message.TransportEnvelope, endpoint, transportName, consumerID string) (context.Context, Span) {
	ctx, span := o.tracer.Start(ctx, "process_message")
	return ctx, otelSpan{span}
}

func (o *Otel) RecordSendDuration(destination string, d time.Duration) {
	metrics.PipelineDuration.WithLabelValues(string(OperationSend)).Observe(d.Seconds())
}

func (o *Otel) RecordReceiveDuration(endpoint string, d time.Duration) {
	metrics.PipelineDuration.WithLabelValues(string(OperationReceive)).Observe(d.Seconds())
}

func (o *Otel) RecordSerializationDuration(messageType string, d time.Duration) {
	metrics.PipelineDuration.WithLabelValues("serialize").Observe(d.Seconds())
}

func (o *Otel) RecordOperation(name string, op Operation, status Status) {
	if status == StatusError {
		metrics.PipelineFailures.WithLabelValues(name, string(op)).Inc()
	}
}

func (o *Otel) RecordError(span Span, err error) {
	if err == nil {
		return
	}
	if s, ok := asOtelSpan(span); ok {
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
	}
}

func (o *Otel) AddEvent(span Span, name string, attrs map[string]string) {
	s, ok := asOtelSpan(span)
	if !ok {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	s.AddEvent(name, trace.WithAttributes(kvs...))
}

// InjectTraceContext writes the active span's context as a traceparent
// header (§4.12).
func (o *Otel) InjectTraceContext(ctx context.Context, span Span, env message.TransportEnvelope) message.TransportEnvelope {
	s, ok := asOtelSpan(span)
	if !ok {
		return env
	}
	sc := s.SpanContext()
	if !sc.IsValid() {
		return env
	}
	header := tracecontext.Encode(tracecontext.TraceParent{TraceID: sc.TraceID(), SpanID: sc.SpanID(), Flags: sc.TraceFlags()})
	out := env.WithHeader("traceparent", header)
	if sc.TraceState().String() != "" {
		out = out.WithHeader("tracestate", sc.TraceState().String())
	}
	return out
}

// ExtractTraceContext parses env's traceparent header into a parent
// context. An absent or malformed header yields ctx unchanged (no error).
func (o *Otel) ExtractTraceContext(ctx context.Context, env message.TransportEnvelope) context.Context {
	header, ok := env.Header("traceparent")
	if !ok {
		return ctx
	}
	tp, ok := tracecontext.Decode(header)
	if !ok {
		return ctx
	}

	config := trace.SpanContextConfig{TraceID: tp.TraceID, SpanID: tp.SpanID, TraceFlags: tp.Flags, Remote: true}
	if tracestate, ok := env.Header("tracestate"); ok {
		if ts, err := trace.ParseTraceState(tracestate); err == nil {
			config.TraceState = ts
		}
	}
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(config))
}
