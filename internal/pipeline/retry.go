package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"go.heromessaging.dev/internal/common/metrics"
	"go.heromessaging.dev/internal/message"
)

// RetryConfig parameterizes the retry decorator (§6 "Retry decorator").
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	Jitter      bool

	// CircuitBreakerEnabled wraps the retry loop in a sony/gobreaker
	// breaker, tripping after a failure ratio within a stats window —
	// the same guard the teacher's HTTP mediator puts around a risky
	// downstream call, generalized here to any handler.
	CircuitBreakerEnabled     bool
	CircuitBreakerMinRequests uint32
	CircuitBreakerRatio       float64
	CircuitBreakerInterval    time.Duration
	CircuitBreakerTimeout     time.Duration

	// Sleep blocks for d or returns early with ctx.Err() if ctx is
	// cancelled first. Defaults to a real timer; tests substitute a
	// no-op to make backoff schedules deterministic and fast.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:               3,
		BaseDelay:                 100 * time.Millisecond,
		Factor:                    2.0,
		MaxDelay:                  10 * time.Second,
		Jitter:                    true,
		CircuitBreakerEnabled:     true,
		CircuitBreakerMinRequests: 10,
		CircuitBreakerRatio:       0.5,
		CircuitBreakerInterval:    60 * time.Second,
		CircuitBreakerTimeout:     5 * time.Second,
	}
}

func sleepRealtime(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoffFor computes base*factor^attempt clamped to maxDelay, optionally
// jittered by a uniform random factor in [0.5, 1.5) — grounded on the
// teacher's HTTPMediator.executeWithRetry backoff schedule, generalized
// from a flat attempt*baseBackoff curve to the spec's exponential-with-
// jitter curve.
func backoffFor(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * mathPow(cfg.Factor, attempt)
	if max := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && delay > max {
		delay = max
	}
	if cfg.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

func mathPow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Retry re-invokes the inner handler up to cfg.MaxAttempts on errors
// classified as transient, backing off exponentially between attempts
// (§4.9). Terminal (non-retryable) errors and expected ProcessingResult
// failures are returned immediately without retrying. RetryCount on the
// ProcessingContext is owned exclusively by this decorator.
func Retry(cfg RetryConfig, log zerolog.Logger) Decorator {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepRealtime
	}

	var breaker *gobreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "pipeline-retry",
			Interval: cfg.CircuitBreakerInterval,
			Timeout:  cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.CircuitBreakerMinRequests {
					return false
				}
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.CircuitBreakerRatio
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")

				var stateValue float64
				switch to {
				case gobreaker.StateClosed:
					stateValue = metrics.CircuitBreakerClosed
				case gobreaker.StateOpen:
					stateValue = metrics.CircuitBreakerOpen
					metrics.PipelineCircuitBreakerTrips.WithLabelValues(name).Inc()
				case gobreaker.StateHalfOpen:
					stateValue = metrics.CircuitBreakerHalfOpen
				}
				metrics.PipelineCircuitBreakerState.WithLabelValues(name).Set(stateValue)
			},
		})
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, msg message.Message, pctx *ProcessingContext) (ProcessingResult, error) {
			attempt := func() (ProcessingResult, error) {
				return runWithRetry(ctx, next, msg, pctx, cfg, sleep, log)
			}

			if breaker == nil {
				return attempt()
			}

			out, err := breaker.Execute(func() (interface{}, error) {
				result, innerErr := attempt()
				if innerErr != nil {
					return result, innerErr
				}
				return result, nil
			})
			if err != nil {
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					return Fail("circuit breaker open"), nil
				}
				if result, ok := out.(ProcessingResult); ok {
					return result, err
				}
				return ProcessingResult{}, err
			}
			return out.(ProcessingResult), nil
		}
	}
}

func runWithRetry(ctx context.Context, next Handler, msg message.Message, pctx *ProcessingContext, cfg RetryConfig, sleep func(context.Context, time.Duration) error, log zerolog.Logger) (ProcessingResult, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastResult ProcessingResult
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		pctx.RetryCount = attempt
		result, err := next(ctx, msg, pctx)
		if err == nil {
			return result, nil
		}

		lastResult, lastErr = result, err

		if !message.IsRetryable(err) {
			return result, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := backoffFor(cfg, attempt)
		log.Debug().Int("attempt", attempt+1).Dur("backoff", delay).Msg("retrying after transient failure")
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return ProcessingResult{}, fmt.Errorf("retry cancelled: %w", sleepErr)
		}
	}

	return lastResult, lastErr
}
