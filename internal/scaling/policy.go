package scaling

import (
	"fmt"
	"sync"
	"time"
)

// Default policy values.
const (
	defaultMinInstances       = 1
	defaultMaxInstances       = 5
	defaultScaleUpThreshold   = 0.8
	defaultScaleDownThreshold = 0.3
	defaultCooldownPeriod     = 60 * time.Second
)

// Option configures a Policy.
type Option func(*Policy)

// WithMinInstances sets the minimum number of instances to maintain.
func WithMinInstances(n int) Option {
	return func(p *Policy) { p.minInstances = n }
}

// WithMaxInstances sets the maximum number of instances allowed.
func WithMaxInstances(n int) Option {
	return func(p *Policy) { p.maxInstances = n }
}

// WithScaleUpThreshold sets the load factor above which to scale up.
func WithScaleUpThreshold(f float64) Option {
	return func(p *Policy) { p.scaleUpThreshold = f }
}

// WithScaleDownThreshold sets the load factor below which to scale down.
func WithScaleDownThreshold(f float64) Option {
	return func(p *Policy) { p.scaleDownThreshold = f }
}

// WithCooldownPeriod sets the minimum time between scaling decisions.
func WithCooldownPeriod(d time.Duration) Option {
	return func(p *Policy) { p.cooldownPeriod = d }
}

// Policy defines the rules for elastic scaling decisions.
// It is safe for concurrent use.
type Policy struct {
	mu                 sync.Mutex
	minInstances       int
	maxInstances       int
	scaleUpThreshold   float64
	scaleDownThreshold float64
	cooldownPeriod     time.Duration
	lastDecisionTime   time.Time
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		minInstances:       defaultMinInstances,
		maxInstances:       defaultMaxInstances,
		scaleUpThreshold:   defaultScaleUpThreshold,
		scaleDownThreshold: defaultScaleDownThreshold,
		cooldownPeriod:     defaultCooldownPeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate inspects the load factor and healthy instance count, returning
// a scaling decision. The cooldown period prevents rapid scaling thrash.
// One instance is added or removed per decision. Evaluate does not start
// the cooldown window; callers stamp it with Commit once the decision has
// actually been executed, so a refused or deferred action does not block
// the next legitimate one.
func (p *Policy) Evaluate(loadFactor float64, healthyInstances int) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Check cooldown
	if !p.lastDecisionTime.IsZero() && time.Since(p.lastDecisionTime) < p.cooldownPeriod {
		return Decision{
			Action: ActionNone,
			Reason: "cooldown period active",
		}
	}

	if loadFactor > p.scaleUpThreshold && healthyInstances < p.maxInstances {
		return Decision{
			Action: ActionScaleUp,
			Delta:  1,
			Reason: fmt.Sprintf("load factor %.2f above threshold %.2f", loadFactor, p.scaleUpThreshold),
		}
	}

	if loadFactor < p.scaleDownThreshold && healthyInstances > p.minInstances {
		return Decision{
			Action: ActionScaleDown,
			Delta:  -1,
			Reason: fmt.Sprintf("load factor %.2f below threshold %.2f", loadFactor, p.scaleDownThreshold),
		}
	}

	return Decision{
		Action: ActionNone,
		Reason: "no scaling needed",
	}
}

// Commit records that a scaling action was executed, starting the
// cooldown window.
func (p *Policy) Commit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastDecisionTime = time.Now()
}

// LastDecisionTime returns when the last scaling action was committed.
// The zero time means no action has been executed yet.
func (p *Policy) LastDecisionTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDecisionTime
}

// MinInstances returns the configured pool floor.
func (p *Policy) MinInstances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minInstances
}

// MaxInstances returns the configured pool ceiling.
func (p *Policy) MaxInstances() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxInstances
}
