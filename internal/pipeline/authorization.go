package pipeline

import (
	"context"

	"go.heromessaging.dev/internal/message"
	"go.heromessaging.dev/internal/security"
)

// Authorization consults provider with (principal, messageType, operation)
// before invoking the inner handler; a denial surfaces as Success=false
// with an InsufficientPermissions-flavored reason rather than an error
// (§4.9). pctx.Principal must already be populated by an upstream
// authentication step — an unset Principal is treated as anonymous and
// will fail any provider that requires a subject.
func Authorization(provider security.AuthorizationProvider, operation security.Operation) Decorator {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
			messageType := messageTypeOf(msg)
			outcome := provider.Authorize(ctx, pctx.Principal, messageType, operation)
			if !outcome.Allowed {
				reason := outcome.Reason
				if reason == "" {
					reason = "insufficient permissions"
				}
				return Fail(reason), nil
			}
			return next(ctx, msg, pctx)
		}
	}
}
