package automation

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Action names a remote operation automation can perform.
type Action string

const (
	ActionPasswordReset      Action = "password_reset"
	ActionAccessProvisioning Action = "access_provisioning"
	ActionLogRetrieval       Action = "log_retrieval"
)

// Simulator stands in for the services that perform automated actions. One call
// is one attempt; callers never retry.
type Simulator interface {
	Execute(ctx context.Context, action Action, ticketID string) (bool, error)
}

// RandomSimulator succeeds with a fixed probability after a fixed latency.
type RandomSimulator struct {
	successRate float64
	latency     time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSimulator builds a simulator. seed 0 picks a time-based seed.
func NewRandomSimulator(successRate float64, latency time.Duration, seed int64) *RandomSimulator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomSimulator{
		successRate: successRate,
		latency:     latency,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Execute waits out the latency, honoring ctx, then draws the outcome.
func (s *RandomSimulator) Execute(ctx context.Context, _ Action, _ string) (bool, error) {
	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	draw := s.rng.Float64()
	s.mu.Unlock()
	return draw < s.successRate, nil
}

// SimulatorFunc adapts a function to Simulator.
type SimulatorFunc func(ctx context.Context, action Action, ticketID string) (bool, error)

func (f SimulatorFunc) Execute(ctx context.Context, action Action, ticketID string) (bool, error) {
	return f(ctx, action, ticketID)
}
