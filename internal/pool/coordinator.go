// Package pool provides the instance coordinator: the single owner of the
// pool's healthy/unhealthy membership sets, per-instance active-request
// counts, and autoscaling policy. The health monitor and load balancer
// never mutate this state directly; they go through the coordinator's
// methods, which serialize every change under one mutex.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/config"
	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/logging"
	"github.com/Iron-Ham/sessionpool/internal/scaling"
	"github.com/Iron-Ham/sessionpool/internal/worker"
)

// Coordinator owns the registry plus the authoritative healthy/unhealthy
// membership and active-request bookkeeping. It is safe for concurrent use.
type Coordinator struct {
	registry *worker.Registry
	policy   *scaling.Policy
	bus      *event.Bus
	logger   *logging.Logger

	minInstances int
	initialCount int
	autoScale    bool

	mu          sync.Mutex
	healthy     map[string]struct{}
	unhealthy   map[string]time.Time // instance ID -> when it became unhealthy
	active      map[string]int       // instance ID -> in-flight request count
	totalActive int
}

// Status is a read-only projection of the coordinator's state.
type Status struct {
	TotalInstances     int        `json:"total_instances"`
	HealthyInstances   int        `json:"healthy_instances"`
	UnhealthyInstances int        `json:"unhealthy_instances"`
	ActiveRequests     int        `json:"active_requests"`
	LoadFactor         float64    `json:"load_factor"`
	MinInstances       int        `json:"min_instances"`
	MaxInstances       int        `json:"max_instances"`
	AutoScale          bool       `json:"auto_scale"`
	LastScaleAction    *time.Time `json:"last_scale_action,omitempty"`
}

// InstanceInfo combines an instance snapshot with the coordinator's view
// of it.
type InstanceInfo struct {
	worker.Snapshot
	Healthy        bool `json:"is_healthy"`
	ActiveRequests int  `json:"active_requests"`
}

// NewCoordinator creates a coordinator over the given registry.
func NewCoordinator(registry *worker.Registry, cfg config.PoolConfig, bus *event.Bus, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	policy := scaling.NewPolicy(
		scaling.WithMinInstances(cfg.MinInstances),
		scaling.WithMaxInstances(cfg.MaxInstances),
		scaling.WithScaleUpThreshold(cfg.ScaleUpThreshold),
		scaling.WithScaleDownThreshold(cfg.ScaleDownThreshold),
		scaling.WithCooldownPeriod(cfg.ScaleCooldown()),
	)
	return &Coordinator{
		registry:     registry,
		policy:       policy,
		bus:          bus,
		logger:       logger.WithComponent("coordinator"),
		minInstances: cfg.MinInstances,
		initialCount: cfg.InitialCount,
		autoScale:    cfg.AutoScale,
		healthy:      make(map[string]struct{}),
		unhealthy:    make(map[string]time.Time),
		active:       make(map[string]int),
	}
}

// Bootstrap creates the configured initial instances. Partial failure is
// tolerated; zero successes is fatal and returns a bootstrap error carrying
// every per-instance failure.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	c.logger.Info("bootstrapping pool", "initial_count", c.initialCount)

	var failures []error
	created := 0
	for i := 0; i < c.initialCount; i++ {
		if _, err := c.Create(ctx); err != nil {
			c.logger.Error("failed to create initial instance", "index", i, "error", err)
			failures = append(failures, err)
			continue
		}
		created++
	}

	if created == 0 {
		return errors.NewBootstrapError(c.initialCount, failures)
	}

	c.logger.Info("pool bootstrapped", "created", created, "failed", len(failures))
	return nil
}

// Create builds a new instance. The registry enforces the pool ceiling.
// The instance joins neither membership set; its first successful health
// probe admits it to the healthy set via MarkHealthy.
func (c *Coordinator) Create(ctx context.Context) (*worker.Instance, error) {
	inst, err := c.registry.Create(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrPoolAtCapacity) {
			return nil, err
		}
		return nil, errors.NewScalingError("create", err)
	}

	c.mu.Lock()
	c.active[inst.ID()] = 0
	total := c.registry.Count()
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(event.NewInstanceCreatedEvent(inst.ID(), total))
	}
	return inst, nil
}

// Remove takes an instance out of the pool. A healthy instance is refused
// while the healthy set is at the configured floor; an unhealthy instance
// never trips the floor check. Any instance with in-flight requests is
// refused, so the pool never silently drops work.
func (c *Coordinator) Remove(id string, reason string) error {
	c.mu.Lock()
	_, isHealthy := c.healthy[id]
	if isHealthy && len(c.healthy) <= c.minInstances {
		c.mu.Unlock()
		return errors.ErrPoolAtFloor
	}
	if c.active[id] > 0 {
		c.mu.Unlock()
		return errors.ErrInstanceBusy
	}
	delete(c.healthy, id)
	delete(c.unhealthy, id)
	delete(c.active, id)
	c.mu.Unlock()

	if err := c.registry.Remove(id); err != nil {
		return err
	}

	if c.bus != nil {
		c.bus.Publish(event.NewInstanceRemovedEvent(id, c.registry.Count(), reason))
	}
	c.logger.Info("instance removed", "instance_id", id, "reason", reason)
	return nil
}

// MarkHealthy moves an instance into the healthy set. A newly created
// instance is admitted here by its first successful probe. It returns
// whether this was a recovery edge (the instance was previously
// unhealthy) and, if so, how long it had been down. Marking an
// already-healthy instance again is a no-op.
func (c *Coordinator) MarkHealthy(id string) (recovered bool, downtime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registry.Get(id); !ok {
		return false, 0
	}

	since, wasUnhealthy := c.unhealthy[id]
	delete(c.unhealthy, id)
	c.healthy[id] = struct{}{}

	if wasUnhealthy {
		return true, time.Since(since)
	}
	return false, 0
}

// MarkUnhealthy moves an instance into the unhealthy set. It returns
// whether this was a failure edge (the instance entered the unhealthy set
// just now, whether from healthy or from its pre-admission state).
// Marking an already-unhealthy instance again is a no-op.
func (c *Coordinator) MarkUnhealthy(id string) (failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.registry.Get(id); !ok {
		return false
	}

	delete(c.healthy, id)
	if _, ok := c.unhealthy[id]; ok {
		return false
	}
	c.unhealthy[id] = time.Now()
	return true
}

// Healthy returns the healthy instance IDs ordered by creation sequence,
// which makes selection tie-breaking deterministic.
func (c *Coordinator) Healthy() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthyLocked()
}

// healthyLocked returns healthy IDs in creation order. The caller must
// hold the mutex.
func (c *Coordinator) healthyLocked() []string {
	ids := make([]string, 0, len(c.healthy))
	for _, inst := range c.registry.All() {
		if _, ok := c.healthy[inst.ID()]; ok {
			ids = append(ids, inst.ID())
		}
	}
	return ids
}

// Unhealthy returns the unhealthy instance IDs ordered by creation sequence.
func (c *Coordinator) Unhealthy() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.unhealthy))
	for _, inst := range c.registry.All() {
		if _, ok := c.unhealthy[inst.ID()]; ok {
			ids = append(ids, inst.ID())
		}
	}
	return ids
}

// Assign books an in-flight request against an instance. It fails unless
// the instance is currently in the healthy set and accepting work, so a
// selection made from a stale view is revalidated here.
func (c *Coordinator) Assign(id string) error {
	inst, ok := c.registry.Get(id)
	if !ok {
		return errors.ErrInstanceNotFound
	}
	if !inst.Status().Accepting() {
		return errors.NewValidationError(id, "instance not accepting work")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.healthy[id]; !ok {
		return errors.NewValidationError(id, "instance no longer healthy")
	}
	c.active[id]++
	c.totalActive++
	return nil
}

// Release clears one in-flight booking for an instance. Releasing an
// instance with no bookings is a no-op; the instance may already have been
// removed, which is expected during failover.
func (c *Coordinator) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active[id] > 0 {
		c.active[id]--
		c.totalActive--
	}
}

// ActiveCount returns the in-flight request count for an instance.
func (c *Coordinator) ActiveCount(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[id]
}

// TotalActive returns the pool-wide in-flight request count.
func (c *Coordinator) TotalActive() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalActive
}

// LoadFactor returns the pool load in [0.0, 1.0]: in-flight requests over
// healthy instances, clamped at 1.0. An empty healthy set reports maximum
// load.
func (c *Coordinator) LoadFactor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadFactorLocked()
}

// loadFactorLocked computes the load factor. The caller must hold the mutex.
func (c *Coordinator) loadFactorLocked() float64 {
	if len(c.healthy) == 0 {
		return 1.0
	}
	load := float64(c.totalActive) / float64(len(c.healthy))
	if load > 1.0 {
		return 1.0
	}
	return load
}

// EvaluateScaling applies the scaling policy to the current load factor
// and healthy instance count, then executes the resulting decision.
// Scale-down targets the least-loaded healthy instance (ties resolve to
// the earliest-created) and is skipped when every instance has in-flight
// work. The cooldown starts only when an action actually executes, so a
// refused or deferred removal does not block the next cycle's decision.
// Errors are recovered locally; the next cycle retries.
func (c *Coordinator) EvaluateScaling(ctx context.Context) scaling.Decision {
	if !c.autoScale {
		return scaling.Decision{Action: scaling.ActionNone, Reason: "autoscaling disabled"}
	}

	c.mu.Lock()
	load := c.loadFactorLocked()
	healthyCount := len(c.healthy)
	c.mu.Unlock()

	decision := c.policy.Evaluate(load, healthyCount)

	switch decision.Action {
	case scaling.ActionScaleUp:
		c.logger.Info("scaling up", "load_factor", load, "reason", decision.Reason)
		if _, err := c.Create(ctx); err != nil {
			c.logger.Error("scale up failed", "error", err)
			return decision
		}
	case scaling.ActionScaleDown:
		id, ok := c.scaleDownCandidate()
		if !ok {
			c.logger.Info("scale down deferred: all instances have in-flight work")
			return decision
		}
		c.logger.Info("scaling down", "instance_id", id, "load_factor", load, "reason", decision.Reason)
		if err := c.Remove(id, "scale_down"); err != nil {
			c.logger.Error("scale down failed", "instance_id", id, "error", err)
			return decision
		}
	default:
		return decision
	}

	c.policy.Commit()
	if c.bus != nil {
		c.bus.Publish(event.NewPoolScaledEvent(decision.Action.String(), decision.Delta, c.registry.Count(), load))
	}
	return decision
}

// scaleDownCandidate picks the least-loaded healthy instance with no
// in-flight requests, earliest-created on ties.
func (c *Coordinator) scaleDownCandidate() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.healthyLocked() {
		if c.active[id] == 0 {
			return id, true
		}
	}
	return "", false
}

// EnsureMinimum creates replacement instances until the pool, counting
// instances still awaiting admission, is back at the configured floor, or
// creation fails. Used by the health monitor when failures shrink the
// pool.
func (c *Coordinator) EnsureMinimum(ctx context.Context) int {
	created := 0
	for {
		// Instances awaiting their first probe count as capacity on the
		// way, so replacements are not over-created across cycles.
		c.mu.Lock()
		need := c.minInstances - (c.registry.Count() - len(c.unhealthy))
		c.mu.Unlock()
		if need <= 0 {
			return created
		}

		inst, err := c.Create(ctx)
		if err != nil {
			c.logger.Error("failed to create replacement instance", "error", err)
			return created
		}
		c.logger.Info("created replacement instance", "instance_id", inst.ID())
		created++
	}
}

// Instance returns the underlying instance for an ID.
func (c *Coordinator) Instance(id string) (*worker.Instance, bool) {
	return c.registry.Get(id)
}

// Instances returns all registered instances in creation order.
func (c *Coordinator) Instances() []*worker.Instance {
	return c.registry.All()
}

// MinInstances returns the configured pool floor.
func (c *Coordinator) MinInstances() int {
	return c.minInstances
}

// Status returns a snapshot of the coordinator's state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		TotalInstances:     c.registry.Count(),
		HealthyInstances:   len(c.healthy),
		UnhealthyInstances: len(c.unhealthy),
		ActiveRequests:     c.totalActive,
		LoadFactor:         c.loadFactorLocked(),
		MinInstances:       c.minInstances,
		MaxInstances:       c.registry.MaxInstances(),
		AutoScale:          c.autoScale,
	}
	if t := c.policy.LastDecisionTime(); !t.IsZero() {
		s.LastScaleAction = &t
	}
	return s
}

// InstanceList returns a detailed view of every instance.
func (c *Coordinator) InstanceList() []InstanceInfo {
	instances := c.registry.All()

	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]InstanceInfo, 0, len(instances))
	for _, inst := range instances {
		_, healthy := c.healthy[inst.ID()]
		list = append(list, InstanceInfo{
			Snapshot:       inst.Snapshot(),
			Healthy:        healthy,
			ActiveRequests: c.active[inst.ID()],
		})
	}
	return list
}

// Cleanup releases every instance and clears all membership state.
func (c *Coordinator) Cleanup() {
	c.registry.CleanupAll()

	c.mu.Lock()
	c.healthy = make(map[string]struct{})
	c.unhealthy = make(map[string]time.Time)
	c.active = make(map[string]int)
	c.totalActive = 0
	c.mu.Unlock()

	c.logger.Info("coordinator cleaned up")
}
