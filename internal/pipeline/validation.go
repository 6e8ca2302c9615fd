package pipeline

import (
	"context"
	"sync"

	"go.heromessaging.dev/internal/message"
)

// ValidationOutcome is what a Validator returns: either valid, or invalid
// with a human-readable reason. Validators never return an error for
// ordinary validation failures (§4.9 "never throws for user validation
// errors") — a malformed Validator implementation is the only case that
// would.
type ValidationOutcome struct {
	Valid  bool
	Reason string
}

func Valid() ValidationOutcome { return ValidationOutcome{Valid: true} }

func Invalid(reason string) ValidationOutcome { return ValidationOutcome{Reason: reason} }

// Validator checks a single message for structural or business-rule
// correctness.
type Validator interface {
	Validate(ctx context.Context, msg message.Message) ValidationOutcome
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(ctx context.Context, msg message.Message) ValidationOutcome

func (f ValidatorFunc) Validate(ctx context.Context, msg message.Message) ValidationOutcome {
	return f(ctx, msg)
}

// ValidatorRegistry maps a message type name to the validators registered
// for it. A type with no registered validators is considered valid by
// default — validation is opt-in per type.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	validators map[string][]Validator
}

func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{validators: make(map[string][]Validator)}
}

func (r *ValidatorRegistry) Register(messageType string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[messageType] = append(r.validators[messageType], v)
}

func (r *ValidatorRegistry) For(messageType string) []Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Validator, len(r.validators[messageType]))
	copy(out, r.validators[messageType])
	return out
}

// Validation runs every validator registered for the concrete message
// type; the first failing outcome short-circuits the chain and surfaces
// as Success=false (§4.9), never as an error.
func Validation(registry *ValidatorRegistry) Decorator {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
			messageType := messageTypeOf(msg)
			for _, v := range registry.For(messageType) {
				if outcome := v.Validate(ctx, msg); !outcome.Valid {
					return Fail(outcome.Reason), nil
				}
			}
			return next(ctx, msg, pctx)
		}
	}
}
