package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/livepulse/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultFailureThreshold = 5
	defaultBreakerDelay     = 30 * time.Second
)

// CircuitBreakerHook fails Redis commands fast while the store is unreachable.
// There is no cached fallback: hub counters must come from the store or not at all.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

type CircuitBreakerOption func(*breakerSettings)

type breakerSettings struct {
	failureThreshold uint
	delay            time.Duration
}

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n uint) CircuitBreakerOption {
	return func(s *breakerSettings) { s.failureThreshold = n }
}

// WithDelay sets how long the circuit stays open before a trial request is let through.
func WithDelay(d time.Duration) CircuitBreakerOption {
	return func(s *breakerSettings) { s.delay = d }
}

// NewCircuitBreakerHook builds a breaker that opens after 5 consecutive failures,
// half-opens after 30s and closes again on the first success.
func NewCircuitBreakerHook(m *metrics.RedisMetrics, opts ...CircuitBreakerOption) *CircuitBreakerHook {
	settings := breakerSettings{failureThreshold: defaultFailureThreshold, delay: defaultBreakerDelay}
	for _, opt := range opts {
		opt(&settings)
	}

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(settings.failureThreshold).
		WithDelay(settings.delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.CircuitStateChanges.WithLabelValues(e.NewState.String()).Inc()
			m.CircuitState.Set(stateToFloat(e.NewState))
		}).
		Build()

	m.CircuitState.Set(stateToFloat(circuitbreaker.ClosedState))
	return &CircuitBreakerHook{cb: cb}
}

// State reports the current breaker state.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, fmt.Errorf("circuit breaker dial failed: %w", err)
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
			cmd.SetErr(err)
			return err
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			err := fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
			for _, cmd := range cmds {
				cmd.SetErr(err)
			}
			return err
		}

		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return err
		}
		h.cb.RecordSuccess()
		return err
	}
}
