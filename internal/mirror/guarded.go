package mirror

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	mirrorOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mlserve",
			Subsystem: "mirror",
			Name:      "operations_total",
			Help:      "Remote mirror calls by operation and result",
		},
		[]string{"op", "result"},
	)

	mirrorBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mlserve",
			Subsystem: "mirror",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

func init() {
	prometheus.MustRegister(mirrorOpsTotal, mirrorBreakerState)
}

// BreakerSettings tunes the circuit breaker in front of a mirror.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures opens the breaker. Zero means 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing. Zero means 30s.
	OpenTimeout time.Duration
}

// Guarded wraps a Mirror with a circuit breaker so a dead remote fails fast
// instead of stalling every queued transfer on its own timeout.
type Guarded struct {
	next Mirror
	cb   *gobreaker.CircuitBreaker[any]
	name string
	log  zerolog.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Mirror, s BreakerSettings, log zerolog.Logger) *Guarded {
	if s.Name == "" {
		s.Name = "mirror"
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	threshold := s.ConsecutiveFailures
	g := &Guarded{next: next, name: s.Name, log: log}
	mirrorBreakerState.WithLabelValues(s.Name).Set(0)
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			mirrorBreakerState.WithLabelValues(name).Set(stateValue(to))
			g.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("mirror breaker state change")
		},
	})
	return g
}

// State reports the breaker state as closed, half-open or open.
func (g *Guarded) State() string { return g.cb.State().String() }

func (g *Guarded) execute(op string, fn func() (any, error)) (any, error) {
	v, err := g.cb.Execute(fn)
	switch {
	case err == nil:
		mirrorOpsTotal.WithLabelValues(op, "success").Inc()
	case errors.Is(err, ErrNotFound):
		mirrorOpsTotal.WithLabelValues(op, "not_found").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		mirrorOpsTotal.WithLabelValues(op, "rejected").Inc()
	default:
		mirrorOpsTotal.WithLabelValues(op, "failure").Inc()
	}
	return v, err
}

func (g *Guarded) Upload(ctx context.Context, localPath, key string) error {
	_, err := g.execute("upload", func() (any, error) {
		return nil, g.next.Upload(ctx, localPath, key)
	})
	return err
}

func (g *Guarded) Download(ctx context.Context, key, localPath string) error {
	_, err := g.execute("download", func() (any, error) {
		return nil, g.next.Download(ctx, key, localPath)
	})
	return err
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	_, err := g.execute("delete", func() (any, error) {
		return nil, g.next.Delete(ctx, key)
	})
	return err
}

func (g *Guarded) List(ctx context.Context, prefix string) ([]string, error) {
	v, err := g.execute("list", func() (any, error) {
		return g.next.List(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	keys, _ := v.([]string)
	return keys, nil
}

func (g *Guarded) Exists(ctx context.Context, key string) (bool, error) {
	v, err := g.execute("exists", func() (any, error) {
		return g.next.Exists(ctx, key)
	})
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
