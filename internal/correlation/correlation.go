// Package correlation realizes the ambient per-flow correlation state
// (§4.10) the only way Go allows without a hidden task-local primitive: as
// an explicit value carried on context.Context. BeginScope returns a child
// context plus a Scope handle; because context.Context is immutable,
// "restoring the prior state on disposal" falls out for free once the
// caller stops using the child and resumes using the parent.
package correlation

import (
	"context"
	"fmt"

	"go.heromessaging.dev/internal/message"
)

// State is the ambient (CorrelationID, MessageID) pair threaded through a
// flow (§3 "CorrelationState").
type State struct {
	CorrelationID string
	MessageID     string
}

type contextKey struct{}

// Scope is the handle returned by BeginScope. Its End method exists for API
// symmetry with the spec's dispose-to-restore model; it does nothing,
// because the parent context (still held by the caller) already reflects
// the prior state.
type Scope struct {
	state State
}

func (s *Scope) State() State { return s.state }
func (s *Scope) End()         {}

// BeginScope pushes (correlationID, messageID) as the active state for ctx's
// descendants.
func BeginScope(ctx context.Context, correlationID, messageID string) (context.Context, *Scope) {
	scope := &Scope{state: State{CorrelationID: correlationID, MessageID: messageID}}
	return context.WithValue(ctx, contextKey{}, scope), scope
}

// BeginScopeFromMessage derives the scope from msg per §4.10: CorrelationID
// if non-empty, else the message's own id; causation source is always the
// message's own id.
func BeginScopeFromMessage(ctx context.Context, msg message.Message) (context.Context, *Scope) {
	correlationID := msg.CorrelationID()
	if correlationID == "" {
		correlationID = msg.ID().String()
	}
	return BeginScope(ctx, correlationID, msg.ID().String())
}

// Current returns the active scope state, if any.
func Current(ctx context.Context) (State, bool) {
	scope, ok := ctx.Value(contextKey{}).(*Scope)
	if !ok {
		return State{}, false
	}
	return scope.state, true
}

// CurrentCorrelationID returns the active CorrelationID, or "" if no scope
// is active.
func CurrentCorrelationID(ctx context.Context) string {
	state, _ := Current(ctx)
	return state.CorrelationID
}

// CurrentMessageID returns the active scope's MessageID, or "" if no scope
// is active.
func CurrentMessageID(ctx context.Context) string {
	state, _ := Current(ctx)
	return state.MessageID
}

// ApplyScope realizes "WithCorrelation() on a message applies the active
// scope" (§4.10): the new CorrelationID comes from the scope, the new
// CausationID is the scope's MessageID, and the message's own MessageID is
// preserved. With no active scope (or an empty CorrelationID), msg is
// returned unchanged — reference-equal, per Message.WithCorrelation's
// contract.
func ApplyScope(ctx context.Context, msg message.Message) message.Message {
	state, ok := Current(ctx)
	if !ok || state.CorrelationID == "" {
		return msg
	}
	return msg.WithCorrelation(state.CorrelationID, state.MessageID)
}

// CorrelationChain renders "Correlation=X → Causation=Y → Message=Z",
// omitting empty components; the message component is always present.
func CorrelationChain(msg message.Message) string {
	chain := ""
	if cid := msg.CorrelationID(); cid != "" {
		chain += fmt.Sprintf("Correlation=%s → ", cid)
	}
	if causeID := msg.CausationID(); causeID != "" {
		chain += fmt.Sprintf("Causation=%s → ", causeID)
	}
	return chain + fmt.Sprintf("Message=%s", msg.ID().String())
}
