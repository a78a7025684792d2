// Package probe implements the dependency checks used by the wait gate and
// by the status API's deep health endpoint.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"plexident/launchpad/internal/config"
	"plexident/launchpad/internal/sequencer"
)

// New returns the prober for the configured dependency kind.
func New(cfg config.DependencyConfig) (sequencer.Prober, error) {
	switch cfg.Kind {
	case config.KindTCP, "":
		return NewTCPProber(cfg.DialTimeout), nil
	case config.KindPostgres:
		return NewPostgresProber(cfg), nil
	case config.KindRedis:
		return NewRedisProber(cfg), nil
	default:
		return nil, fmt.Errorf("unknown dependency kind %q", cfg.Kind)
	}
}

// Result is returned by Check for each probed dependency.
type Result struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// NewCircuitBreaker returns the breaker guarding deep-health checks of one
// dependency: it opens after 3 consecutive failures and half-opens after 30s.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("health check breaker state changed", "dependency", name, "from", from.String(), "to", to.String())
		},
	})
}

// Check runs one probe through cb and reports the outcome with its latency.
// The wait gate never goes through a breaker: it must keep dialling.
func Check(ctx context.Context, name string, p sequencer.Prober, ep sequencer.Endpoint, cb *gobreaker.CircuitBreaker) Result {
	start := time.Now()

	_, err := cb.Execute(func() (any, error) {
		return nil, p.Probe(ctx, ep)
	})

	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		return Result{Name: name, OK: false, LatencyMs: latency, Error: errMsg}
	}
	return Result{Name: name, OK: true, LatencyMs: latency}
}
