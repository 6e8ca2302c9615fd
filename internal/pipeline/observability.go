package pipeline

import (
	"context"
	"strconv"
	"time"

	"go.heromessaging.dev/internal/instrumentation"
	"go.heromessaging.dev/internal/message"
)

// Observability starts a span for the message type and adds an event tagged
// with component and retry count; records duration and failure metrics on every exit path,
// including when the inner handler returns an error (§4.9).
func Observability(instr instrumentation.Instrumentation) Decorator {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
			env := message.NewTransportEnvelope(messageTypeOf(msg), nil, msg)
			ctx, span := instr.StartSendActivity(ctx, env, pctx.Component)
			defer span.End()

			instr.AddEvent(span, "process_message", map[string]string{
				"component":   pctx.Component,
				"retry_count": strconv.Itoa(pctx.RetryCount),
			})

			start := time.Now()
			result, err := next(ctx, msg, pctx)
			duration := time.Since(start)

			instr.RecordSendDuration(pctx.Component, duration)

			status := instrumentation.StatusOK
			if err != nil || !result.Success {
				status = instrumentation.StatusError
			}
			instr.RecordOperation(pctx.Component, instrumentation.OperationHandle, status)

			if err != nil {
				instr.RecordError(span, err)
			} else if !result.Success {
				instr.AddEvent(span, "processing_failed", map[string]string{"message": result.Message})
			}

			return result, err
		}
	}
}

// messageTypeOf recovers the concrete routing name set on Command/Query/
// Event (the "Name" field used by the registry described in §9's dynamic
// dispatch by message type) rather than the coarse Kind.
func messageTypeOf(msg message.Message) string {
	switch m := msg.(type) {
	case *message.Command:
		return m.Name
	case *message.Event:
		return m.Name
	default:
		if n, ok := msg.(interface{ MessageName() string }); ok {
			return n.MessageName()
		}
		return msg.Kind().String()
	}
}
