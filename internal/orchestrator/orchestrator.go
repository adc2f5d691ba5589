// Package orchestrator composes the registry, coordinator, health monitor
// and load balancer into a single pool with one lifecycle. Callers route
// requests through it and observe the pool through its status and
// statistics surface.
package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/sessionpool/internal/balancer"
	"github.com/Iron-Ham/sessionpool/internal/config"
	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/health"
	"github.com/Iron-Ham/sessionpool/internal/logging"
	"github.com/Iron-Ham/sessionpool/internal/pool"
	"github.com/Iron-Ham/sessionpool/internal/worker"
)

// Orchestrator owns the full pool stack. Create one with New, call Start
// to bootstrap instances and begin health monitoring, and Stop to drain
// and tear everything down.
type Orchestrator struct {
	cfg         *config.Config
	bus         *event.Bus
	logger      *logging.Logger
	registry    *worker.Registry
	coordinator *pool.Coordinator
	balancer    *balancer.LoadBalancer
	monitor     *health.Monitor

	mu      sync.Mutex
	started bool
	stopped bool
}

// New wires up the pool stack from configuration. The factory produces
// the session driver behind each worker instance. The configuration must
// already be validated.
func New(cfg *config.Config, factory worker.Factory, logger *logging.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	strategy, err := balancer.ByName(cfg.Balancer.Strategy)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	expiry := worker.ExpiryPolicy{
		MaxRequests: cfg.Session.MaxRequestsPerSession,
		Lifetime:    cfg.Session.Lifetime(),
	}
	registry := worker.NewRegistry(factory, expiry, cfg.Pool.MaxInstances, bus, logger)
	coordinator := pool.NewCoordinator(registry, cfg.Pool, bus, logger)
	lb := balancer.New(coordinator, strategy, cfg.Balancer.MaxRetries, cfg.Balancer.RetryDelay(), bus, logger)
	monitor := health.NewMonitor(coordinator, lb, cfg.Health, bus, logger)

	return &Orchestrator{
		cfg:         cfg,
		bus:         bus,
		logger:      logger.WithComponent("orchestrator"),
		registry:    registry,
		coordinator: coordinator,
		balancer:    lb,
		monitor:     monitor,
	}, nil
}

// Start bootstraps the initial instances and launches health monitoring.
// A pool where every initial instance fails to start is fatal; a partial
// bootstrap starts with what came up.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	if err := o.coordinator.Bootstrap(ctx); err != nil {
		return err
	}
	// Instances join the healthy set only through a successful probe, so
	// run one cycle now and have the pool routable before Start returns.
	o.monitor.RunCycle(ctx)
	if err := o.monitor.Start(ctx); err != nil {
		return err
	}

	status := o.coordinator.Status()
	o.logger.Info("pool started",
		"instances", status.TotalInstances,
		"healthy", status.HealthyInstances,
		"strategy", o.balancer.StrategyName())
	return nil
}

// Stop drains in-flight requests, halts monitoring, and tears down every
// instance. Safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	o.balancer.Cleanup()
	o.monitor.Stop()
	o.coordinator.Cleanup()
	o.bus.Clear()
	o.logger.Info("pool stopped")
}

// Route assigns a request to a healthy instance and returns the request ID
// and the chosen instance ID. An empty requestID gets a generated one.
func (o *Orchestrator) Route(ctx context.Context, requestID, payload string) (string, string, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	instanceID, err := o.balancer.Route(ctx, requestID, payload)
	if err != nil {
		return requestID, "", err
	}
	return requestID, instanceID, nil
}

// Complete finishes a previously routed request.
func (o *Orchestrator) Complete(requestID string, success bool, responseSize int) {
	o.balancer.Complete(requestID, success, responseSize)
}

// Send routes a request, delivers the payload to the chosen instance, and
// completes the booking. The common path for callers that do not need to
// manage the request lifecycle themselves.
func (o *Orchestrator) Send(ctx context.Context, payload string, attachments []string) (string, error) {
	requestID, instanceID, err := o.Route(ctx, "", payload)
	if err != nil {
		return "", err
	}

	inst, ok := o.coordinator.Instance(instanceID)
	if !ok {
		o.balancer.Complete(requestID, false, 0)
		return instanceID, errors.ErrInstanceNotFound
	}
	if err := inst.Send(ctx, payload, attachments); err != nil {
		o.balancer.Complete(requestID, false, 0)
		return instanceID, err
	}
	o.balancer.Complete(requestID, true, 0)
	return instanceID, nil
}

// AddInstance grows the pool by one instance.
func (o *Orchestrator) AddInstance(ctx context.Context) (string, error) {
	inst, err := o.coordinator.Create(ctx)
	if err != nil {
		return "", err
	}
	return inst.ID(), nil
}

// RemoveInstance shrinks the pool by removing the named instance. Busy
// instances and removals below the healthy floor are refused.
func (o *Orchestrator) RemoveInstance(id string) error {
	return o.coordinator.Remove(id, "manual")
}

// SetStrategy switches the balancing strategy by name.
func (o *Orchestrator) SetStrategy(name string) error {
	return o.balancer.SetStrategyName(name)
}

// StrategyName returns the balancing strategy in effect.
func (o *Orchestrator) StrategyName() string {
	return o.balancer.StrategyName()
}

// Status returns the coordinator's pool summary.
func (o *Orchestrator) Status() pool.Status {
	return o.coordinator.Status()
}

// InstanceList returns per-instance detail in creation order.
func (o *Orchestrator) InstanceList() []pool.InstanceInfo {
	return o.coordinator.InstanceList()
}

// RoutingStats returns the balancer's routing statistics.
func (o *Orchestrator) RoutingStats() balancer.RoutingStats {
	return o.balancer.Stats()
}

// InstancePerformance returns performance records for every instance.
func (o *Orchestrator) InstancePerformance() map[string]balancer.PerformanceRecord {
	return o.balancer.AllInstancePerformance()
}

// LoadDistribution returns the per-healthy-instance load view.
func (o *Orchestrator) LoadDistribution() map[string]balancer.LoadInfo {
	return o.balancer.LoadDistribution()
}

// HealthHistory returns the recorded health checks for one instance.
func (o *Orchestrator) HealthHistory(instanceID string) []health.CheckRecord {
	return o.monitor.History(instanceID)
}

// HealthMetrics returns the monitor's own counters.
func (o *Orchestrator) HealthMetrics() health.Metrics {
	return o.monitor.Metrics()
}

// Subscribe registers a handler for one event type and returns the
// subscription ID.
func (o *Orchestrator) Subscribe(eventType string, handler event.Handler) string {
	return o.bus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event.
func (o *Orchestrator) SubscribeAll(handler event.Handler) string {
	return o.bus.SubscribeAll(handler)
}

// Unsubscribe removes a subscription by ID.
func (o *Orchestrator) Unsubscribe(id string) bool {
	return o.bus.Unsubscribe(id)
}
