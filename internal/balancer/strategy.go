package balancer

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/errors"
)

// Candidate is a read-only view of a healthy instance at selection time.
// Callers pass candidates in creation order, so "first wins" ties resolve
// to the earliest-created instance.
type Candidate struct {
	ID              string
	ActiveRequests  int
	AvgResponseTime time.Duration
	HasStats        bool // False until the instance has completed a request
}

// Strategy selects an instance from the current healthy candidates.
// The set of strategies is closed; use ByName to construct one from its
// configured name. Implementations must be safe for concurrent use.
type Strategy interface {
	// Name returns the strategy's configuration name.
	Name() string

	// Select picks a candidate ID. It returns false when the candidate
	// list is empty.
	Select(candidates []Candidate) (string, bool)
}

// ByName constructs the strategy registered under the given name.
// It fails with ErrUnknownStrategy rather than silently falling back.
func ByName(name string) (Strategy, error) {
	switch name {
	case "round_robin":
		return NewRoundRobin(), nil
	case "least_busy":
		return NewLeastBusy(), nil
	case "response_time":
		return NewResponseTime(), nil
	case "random":
		return NewRandom(), nil
	case "weighted_round_robin":
		return NewWeightedRoundRobin(), nil
	default:
		return nil, errors.Wrapf(errors.ErrUnknownStrategy, "%q", name)
	}
}

// AvailableStrategies returns the names of all selection strategies.
func AvailableStrategies() []string {
	return []string{"round_robin", "least_busy", "response_time", "random", "weighted_round_robin"}
}

// RoundRobin cycles through the candidates in order. Over a fixed healthy
// set of size K, K selections visit each instance exactly once.
type RoundRobin struct {
	mu    sync.Mutex
	index int
}

// NewRoundRobin creates a round-robin strategy.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Name implements Strategy.
func (s *RoundRobin) Name() string { return "round_robin" }

// Select implements Strategy.
func (s *RoundRobin) Select(candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := candidates[s.index%len(candidates)].ID
	s.index++
	return id, true
}

// LeastBusy picks the candidate with the fewest in-flight requests.
type LeastBusy struct{}

// NewLeastBusy creates a least-busy strategy.
func NewLeastBusy() *LeastBusy {
	return &LeastBusy{}
}

// Name implements Strategy.
func (s *LeastBusy) Name() string { return "least_busy" }

// Select implements Strategy.
func (s *LeastBusy) Select(candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.ActiveRequests < best.ActiveRequests {
			best = c
		}
	}
	return best.ID, true
}

// ResponseTime picks the candidate with the lowest average response time.
// Candidates with no completed requests rank last; if no candidate has
// stats yet, the earliest-created wins.
type ResponseTime struct{}

// NewResponseTime creates a response-time strategy.
func NewResponseTime() *ResponseTime {
	return &ResponseTime{}
}

// Name implements Strategy.
func (s *ResponseTime) Name() string { return "response_time" }

// Select implements Strategy.
func (s *ResponseTime) Select(candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	best := -1
	for i, c := range candidates {
		if !c.HasStats {
			continue
		}
		if best == -1 || c.AvgResponseTime < candidates[best].AvgResponseTime {
			best = i
		}
	}
	if best == -1 {
		return candidates[0].ID, true
	}
	return candidates[best].ID, true
}

// Random picks a candidate uniformly at random.
type Random struct{}

// NewRandom creates a random strategy.
func NewRandom() *Random {
	return &Random{}
}

// Name implements Strategy.
func (s *Random) Name() string { return "random" }

// Select implements Strategy.
func (s *Random) Select(candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.IntN(len(candidates))].ID, true
}

// WeightedRoundRobin picks candidates with probability proportional to the
// inverse of their average response time, so faster instances receive more
// traffic. Candidates with no stats are weighted as if they averaged one
// second; averages are floored at 100ms to keep weights bounded.
type WeightedRoundRobin struct{}

// NewWeightedRoundRobin creates a weighted round-robin strategy.
func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{}
}

// Name implements Strategy.
func (s *WeightedRoundRobin) Name() string { return "weighted_round_robin" }

// Select implements Strategy.
func (s *WeightedRoundRobin) Select(candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	weights := make([]float64, len(candidates))
	total := 0.0
	for i, c := range candidates {
		avg := 1.0
		if c.HasStats {
			avg = c.AvgResponseTime.Seconds()
		}
		if avg < 0.1 {
			avg = 0.1
		}
		weights[i] = 1.0 / avg
		total += weights[i]
	}

	target := rand.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if target <= cumulative {
			return candidates[i].ID, true
		}
	}
	return candidates[len(candidates)-1].ID, true
}
