package correlation

import (
	"context"
	"testing"

	"go.heromessaging.dev/internal/message"
)

func TestBeginScopeFromMessageUsesCorrelationIDWhenPresent(t *testing.T) {
	cmd := message.NewCommand("thing", nil).WithCorrelation("corr-1", "cause-1").(*message.Command)
	ctx, scope := BeginScopeFromMessage(context.Background(), cmd)
	defer scope.End()

	if CurrentCorrelationID(ctx) != "corr-1" {
		t.Fatalf("expected scope correlation id corr-1, got %s", CurrentCorrelationID(ctx))
	}
	if CurrentMessageID(ctx) != cmd.ID().String() {
		t.Fatal("expected scope message id to be the message's own id")
	}
}

func TestBeginScopeFromMessageFallsBackToMessageID(t *testing.T) {
	cmd := message.NewCommand("thing", nil)
	ctx, _ := BeginScopeFromMessage(context.Background(), cmd)

	if CurrentCorrelationID(ctx) != cmd.ID().String() {
		t.Fatal("expected correlation id to fall back to the message's own id")
	}
}

func TestApplyScopeUnchangedWithoutActiveScope(t *testing.T) {
	cmd := message.NewCommand("thing", nil)
	got := ApplyScope(context.Background(), cmd)
	if got != message.Message(cmd) {
		t.Fatal("expected ApplyScope with no active scope to return the same reference")
	}
}

func TestApplyScopeDerivesCorrelationAndCausationFromScope(t *testing.T) {
	ctx, _ := BeginScope(context.Background(), "corr-x", "cause-x")
	cmd := message.NewCommand("thing", nil)

	got := ApplyScope(ctx, cmd)
	if got.CorrelationID() != "corr-x" {
		t.Fatalf("expected derived correlation id corr-x, got %s", got.CorrelationID())
	}
	if got.CausationID() != "cause-x" {
		t.Fatalf("expected derived causation id cause-x, got %s", got.CausationID())
	}
	if got.ID() != cmd.ID() {
		t.Fatal("expected original MessageID to be preserved")
	}
}

func TestCorrelationChainOmitsEmptyComponents(t *testing.T) {
	cmd := message.NewCommand("thing", nil)
	chain := CorrelationChain(cmd)
	if chain != "Message="+cmd.ID().String() {
		t.Fatalf("expected bare message chain, got %q", chain)
	}

	withCorr := cmd.WithCorrelation("corr-1", "cause-1").(*message.Command)
	chain = CorrelationChain(withCorr)
	want := "Correlation=corr-1 → Causation=cause-1 → Message=" + cmd.ID().String()
	if chain != want {
		t.Fatalf("expected full chain, got %q want %q", chain, want)
	}
}
