// Package pipeline composes an ordered decorator chain around a terminal
// message handler (§4.9): observability, authorization, validation, and
// retry, each wrapping the next without changing the handler's signature.
package pipeline

import (
	"context"
	"time"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
	"go.heromessaging.dev/internal/security"
)

// ProcessingContext flows through a single message's decorator chain. It is
// owned by that flow and never shared across goroutines; every field but
// RetryCount is read-only by convention outside the decorator that owns it.
type ProcessingContext struct {
	Component  string
	RetryCount int
	StartedAt  time.Time
	Principal  security.Principal
}

// ProcessingResult is what a Handler or decorator returns: either a success
// with an optional free-form result, or an expected failure description.
// Unexpected failures are surfaced as a returned error instead (see Handler).
type ProcessingResult struct {
	Success bool
	Message string
	Result  any
}

func Succeed(result any) ProcessingResult { return ProcessingResult{Success: true, Result: result} }

func Fail(message string) ProcessingResult { return ProcessingResult{Success: false, Message: message} }

// Handler processes a message. A non-nil error is an unexpected failure
// (bubbles to the caller after instrumentation records it); a
// ProcessingResult with Success=false is an expected failure and never an
// error.
type Handler func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error)

// Decorator wraps a Handler, producing a new Handler that layers behavior
// around it.
type Decorator func(Handler) Handler

// Chain composes decorators around a terminal handler. decorators is given
// outermost-first (matching the spec's "observability → authorization →
// validation → retry → handler" default ordering), so the first decorator
// in the slice is the first to see a call and the last to see its result.
func Chain(handler Handler, decorators ...Decorator) Handler {
	for i := len(decorators) - 1; i >= 0; i-- {
		handler = decorators[i](handler)
	}
	return handler
}

// Pipeline is a named, reusable decorator chain for one component.
type Pipeline struct {
	component string
	handler   Handler
	clock     config.TimeSource
}

// New builds a Pipeline for component, wrapping terminal with decorators in
// outermost-first order. clock stamps ProcessingContext.StartedAt, matching
// the TimeSource-injection pattern used by queue, outbox, and inbox so tests
// can supply a deterministic clock instead of time.Now.
func New(component string, clock config.TimeSource, terminal Handler, decorators ...Decorator) *Pipeline {
	return &Pipeline{component: component, handler: Chain(terminal, decorators...), clock: clock}
}

// Run invokes the chain for msg, installing a fresh ProcessingContext with
// an anonymous Principal.
func (p *Pipeline) Run(ctx context.Context, msg message.Message) (ProcessingResult, error) {
	return p.RunAs(ctx, msg, security.Principal{})
}

// RunAs is Run with an already-authenticated Principal attached to the
// ProcessingContext, for callers that perform authentication ahead of the
// chain (e.g. an HTTP handler that validates a bearer token first).
func (p *Pipeline) RunAs(ctx context.Context, msg message.Message, principal security.Principal) (ProcessingResult, error) {
	pctx := &ProcessingContext{Component: p.component, StartedAt: p.clock.Now(), Principal: principal}
	return p.handler(ctx, msg, pctx)
}
