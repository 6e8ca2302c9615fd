package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/instrumentation"
	"go.heromessaging.dev/internal/message"
	"go.heromessaging.dev/internal/security"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestChainOrderingOutermostFirst(t *testing.T) {
	var order []string
	record := func(name string) Decorator {
		return func(next Handler) Handler {
			return func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
				order = append(order, name)
				return next(ctx, msg, pctx)
			}
		}
	}
	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		order = append(order, "handler")
		return Succeed(nil), nil
	}

	handler := Chain(terminal, record("observability"), record("authorization"), record("validation"))
	_, err := handler(context.Background(), message.NewCommand("do-thing", nil), &ProcessingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"observability", "authorization", "validation", "handler"}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestValidationShortCircuitsOnFailure(t *testing.T) {
	registry := NewValidatorRegistry()
	registry.Register("do-thing", ValidatorFunc(func(ctx context.Context, msg message.Message) ValidationOutcome {
		return Invalid("missing field")
	}))

	called := false
	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		called = true
		return Succeed(nil), nil
	}

	handler := Chain(terminal, Validation(registry))
	result, err := handler(context.Background(), message.NewCommand("do-thing", nil), &ProcessingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected validation failure to surface as Success=false")
	}
	if called {
		t.Fatal("expected terminal handler not to run after validation failure")
	}
}

func TestAuthorizationDeniesWithoutCallingHandler(t *testing.T) {
	provider := security.NewRoleAuthorizationProvider()
	called := false
	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		called = true
		return Succeed(nil), nil
	}

	handler := Chain(terminal, Authorization(provider, security.OperationSend))
	result, err := handler(context.Background(), message.NewCommand("do-thing", nil), &ProcessingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected denial to surface as Success=false")
	}
	if called {
		t.Fatal("expected terminal handler not to run after denial")
	}
}

func TestAuthorizationAllowsGrantedPermission(t *testing.T) {
	provider := security.NewRoleAuthorizationProvider()
	provider.Grant("admin", security.PermissionName("do-thing", security.OperationSend))

	handler := Chain(func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		return Succeed(nil), nil
	}, Authorization(provider, security.OperationSend))

	pctx := &ProcessingContext{Principal: security.Principal{Subject: "user-1", Claims: map[string]any{"roles": []any{"admin"}}}}
	result, err := handler(context.Background(), message.NewCommand("do-thing", nil), pctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected allowed principal to succeed, got %+v", result)
	}
}

func TestRetryRetriesTransientThenSucceeds(t *testing.T) {
	attempts := 0
	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		attempts++
		if attempts < 3 {
			return ProcessingResult{}, message.NewError(message.ErrorKindTransient, "handler", "backpressure", nil)
		}
		return Succeed(nil), nil
	}

	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.CircuitBreakerEnabled = false
	cfg.Sleep = noSleep

	handler := Chain(terminal, Retry(cfg, zerolog.Nop()))
	result, err := handler(context.Background(), message.NewCommand("do-thing", nil), &ProcessingContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected eventual success")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryPermanentFailure(t *testing.T) {
	attempts := 0
	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		attempts++
		return ProcessingResult{}, message.NewError(message.ErrorKindPermanent, "handler", "bad payload", nil)
	}

	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.CircuitBreakerEnabled = false
	cfg.Sleep = noSleep

	handler := Chain(terminal, Retry(cfg, zerolog.Nop()))
	_, err := handler(context.Background(), message.NewCommand("do-thing", nil), &ProcessingContext{})
	if err == nil {
		t.Fatal("expected permanent failure to propagate as an error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		attempts++
		return ProcessingResult{}, message.NewError(message.ErrorKindTransient, "handler", "still failing", nil)
	}

	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.CircuitBreakerEnabled = false
	cfg.Sleep = noSleep

	handler := Chain(terminal, Retry(cfg, zerolog.Nop()))
	_, err := handler(context.Background(), message.NewCommand("do-thing", nil), &ProcessingContext{})
	if err == nil {
		t.Fatal("expected retries to exhaust and return the last error")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly MaxAttempts attempts, got %d", attempts)
	}
}

func TestObservabilityPropagatesError(t *testing.T) {
	instr := instrumentation.Noop{}
	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		return ProcessingResult{}, errors.New("boom")
	}

	handler := Chain(terminal, Observability(instr))
	_, err := handler(context.Background(), message.NewCommand("do-thing", nil), &ProcessingContext{Component: "test"})
	if err == nil {
		t.Fatal("expected error to propagate after instrumentation")
	}
}

// allowAllAuthorizer grants every request; used where the test exercises
// chain ordering rather than authorization outcomes.
type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Authorize(ctx context.Context, principal security.Principal, messageType string, operation security.Operation) security.AuthorizationOutcome {
	return security.AuthorizationOutcome{Allowed: true}
}

func (allowAllAuthorizer) HasPermission(ctx context.Context, principal security.Principal, permission string) bool {
	return true
}

func TestPipelineRunDefaultChain(t *testing.T) {
	validators := NewValidatorRegistry()

	retryCfg := DefaultRetryConfig()
	retryCfg.CircuitBreakerEnabled = false
	retryCfg.Sleep = noSleep

	terminal := func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
		return Succeed("done"), nil
	}

	p := New("test-component", config.NewFixedClock(time.Unix(0, 0)), terminal,
		Observability(instrumentation.Noop{}),
		Authorization(allowAllAuthorizer{}, security.OperationHandle),
		Validation(validators),
		Retry(retryCfg, zerolog.Nop()),
	)

	cmd := message.NewCommand("do-thing", nil)
	result, err := p.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success through the default chain, got %+v", result)
	}
}
