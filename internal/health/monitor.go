// Package health runs the periodic health-check loop for the pool. Each
// cycle probes every registered instance concurrently, applies the results
// through the coordinator one at a time, raises threshold alerts on the
// event bus, and asks the coordinator to evaluate scaling.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/balancer"
	"github.com/Iron-Ham/sessionpool/internal/config"
	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/logging"
	"github.com/Iron-Ham/sessionpool/internal/pool"
	"github.com/Iron-Ham/sessionpool/internal/worker"
)

const (
	// maxChecksPerInstance caps the per-instance check history.
	maxChecksPerInstance = 100

	// historyRetention is how long check records are kept.
	historyRetention = 24 * time.Hour

	// responseTimeWindow is how many recent successful checks feed the
	// average compared against the response-time threshold.
	responseTimeWindow = 10

	// restartPause is how long the loop waits after a panic before
	// restarting.
	restartPause = time.Second
)

// CheckRecord is one health check outcome for one instance.
type CheckRecord struct {
	Timestamp    time.Time     `json:"timestamp"`
	Healthy      bool          `json:"healthy"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
}

// Metrics summarizes the monitor's own activity.
type Metrics struct {
	TotalChecks        int           `json:"total_checks"`
	FailedChecks       int           `json:"failed_checks"`
	InstancesFailed    int           `json:"instances_failed"`
	InstancesRecovered int           `json:"instances_recovered"`
	Cycles             int           `json:"cycles"`
	LastCycleTime      time.Time     `json:"last_cycle_time"`
	LastCycleDuration  time.Duration `json:"last_cycle_duration"`
}

// Monitor probes instances on a fixed interval. Probes fan out
// concurrently, each bounded by the instance timeout; results are applied
// serially so the coordinator sees one membership transition at a time.
//
// Monitor is safe for concurrent use.
type Monitor struct {
	coordinator *pool.Coordinator
	balancer    *balancer.LoadBalancer
	bus         *event.Bus
	logger      *logging.Logger
	cfg         config.HealthConfig

	mu      sync.Mutex
	history map[string][]CheckRecord
	metrics Metrics
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a Monitor. The balancer may be nil; failover of
// in-flight requests is then skipped on failure transitions.
func NewMonitor(coordinator *pool.Coordinator, lb *balancer.LoadBalancer, cfg config.HealthConfig, bus *event.Bus, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Monitor{
		coordinator: coordinator,
		balancer:    lb,
		bus:         bus,
		logger:      logger.WithComponent("health_monitor"),
		cfg:         cfg,
		history:     make(map[string][]CheckRecord),
	}
}

// Start launches the check loop in the background. Starting a running
// monitor is an error.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("health monitor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
	m.logger.Info("health monitoring started", "interval", m.cfg.CheckInterval())
	return nil
}

// Stop halts the loop and waits for the current cycle to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("health monitoring stopped")
}

// run drives the loop, restarting it after a pause if a cycle panics.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for {
		if m.loop(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartPause):
		}
	}
}

// loop ticks until the context is done. It reports true on clean exit and
// false when it was torn down by a panic and should be restarted.
func (m *Monitor) loop(ctx context.Context) (clean bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health check loop panicked", "panic", r)
			clean = false
		}
	}()

	ticker := time.NewTicker(m.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// probeResult pairs an instance with its check outcome.
type probeResult struct {
	instanceID string
	record     CheckRecord
	err        error
}

// RunCycle performs one full check cycle: probe every instance, apply the
// results, analyze aggregates, then let the coordinator evaluate scaling.
// Exposed so callers can force a cycle outside the timer.
func (m *Monitor) RunCycle(ctx context.Context) {
	start := time.Now()
	instances := m.coordinator.Instances()

	results := make([]probeResult, len(instances))
	var wg sync.WaitGroup
	for i, inst := range instances {
		wg.Add(1)
		go func(i int, inst *worker.Instance) {
			defer wg.Done()
			results[i] = m.probe(ctx, inst)
		}(i, inst)
	}
	wg.Wait()

	for _, res := range results {
		m.apply(res)
	}
	m.analyze(ctx, results)

	m.mu.Lock()
	m.metrics.Cycles++
	m.metrics.TotalChecks += len(results)
	m.metrics.LastCycleTime = time.Now()
	m.metrics.LastCycleDuration = time.Since(start)
	m.mu.Unlock()
}

// probe runs one instance's health check, bounded by the configured
// instance timeout. A check that has not resolved by the deadline counts
// as failed even if its goroutine is still stuck in the session driver.
func (m *Monitor) probe(ctx context.Context, inst *worker.Instance) probeResult {
	id := inst.ID()
	timeout := m.cfg.InstanceTimeout()
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	checked := make(chan error, 1)
	go func() {
		checked <- inst.HealthCheck(pctx)
	}()

	select {
	case err := <-checked:
		elapsed := time.Since(start)
		rec := CheckRecord{Timestamp: time.Now(), Healthy: err == nil, ResponseTime: elapsed}
		if err != nil {
			probeErr := errors.NewProbeError(id, err)
			rec.Error = probeErr.Error()
			return probeResult{instanceID: id, record: rec, err: probeErr}
		}
		return probeResult{instanceID: id, record: rec}
	case <-pctx.Done():
		elapsed := time.Since(start)
		probeErr := errors.NewProbeTimeoutError(id, elapsed)
		rec := CheckRecord{Timestamp: time.Now(), Healthy: false, ResponseTime: elapsed, Error: probeErr.Error()}
		return probeResult{instanceID: id, record: rec, err: probeErr}
	}
}

// apply records one result and pushes the health transition, if any,
// through the coordinator. Transition alerts fire only on the edge.
func (m *Monitor) apply(res probeResult) {
	m.record(res.instanceID, res.record)

	if res.record.Healthy {
		recovered, downtime := m.coordinator.MarkHealthy(res.instanceID)
		if recovered {
			m.mu.Lock()
			m.metrics.InstancesRecovered++
			m.mu.Unlock()
			m.logger.Info("instance recovered", "instance_id", res.instanceID, "downtime", downtime)
			if m.bus != nil {
				m.bus.Publish(event.NewInstanceRecoveredEvent(res.instanceID, downtime))
			}
		}
		return
	}

	m.mu.Lock()
	m.metrics.FailedChecks++
	m.mu.Unlock()

	failed := m.coordinator.MarkUnhealthy(res.instanceID)
	if !failed {
		return
	}
	m.mu.Lock()
	m.metrics.InstancesFailed++
	m.mu.Unlock()
	m.logger.Warn("instance failed health check", "instance_id", res.instanceID, "error", res.err)
	if m.bus != nil {
		m.bus.Publish(event.NewInstanceFailedEvent(res.instanceID, res.record.Error))
	}
	if m.balancer != nil {
		m.balancer.HandleInstanceFailure(res.instanceID)
	}
}

// record appends a check record, trimming by count and age.
func (m *Monitor) record(instanceID string, rec CheckRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	checks := append(m.history[instanceID], rec)
	if len(checks) > maxChecksPerInstance {
		checks = checks[len(checks)-maxChecksPerInstance:]
	}
	cutoff := time.Now().Add(-historyRetention)
	for len(checks) > 0 && checks[0].Timestamp.Before(cutoff) {
		checks = checks[1:]
	}
	m.history[instanceID] = checks
}

// analyze raises aggregate alerts and asks for corrective action.
func (m *Monitor) analyze(ctx context.Context, results []probeResult) {
	total := len(results)
	if total == 0 {
		return
	}

	failed := 0
	for _, res := range results {
		if !res.record.Healthy {
			failed++
		}
	}

	failureRate := float64(failed) / float64(total)
	if threshold := m.cfg.AlertThresholds.InstanceFailureRate; failureRate > threshold {
		m.logger.Warn("high instance failure rate", "rate", failureRate, "threshold", threshold)
		if m.bus != nil {
			m.bus.Publish(event.NewHighFailureRateEvent(failureRate, threshold))
		}
	}

	threshold := m.cfg.AlertThresholds.ResponseTime()
	if avg := m.poolRecentAverage(); avg > threshold {
		m.logger.Warn("slow health checks", "avg", avg, "threshold", threshold)
		if m.bus != nil {
			m.bus.Publish(event.NewHighResponseTimeEvent(avg, threshold))
		}
	}

	if failed == total {
		m.logger.Error("no healthy instances remain", "total", total)
		if m.bus != nil {
			m.bus.Publish(event.NewNoHealthyInstancesEvent(total))
		}
	}

	// Replenish whenever the pool has dropped below the floor, not only
	// when it is completely dead.
	if created := m.coordinator.EnsureMinimum(ctx); created > 0 {
		m.logger.Info("replacement instances created", "count", created)
	}

	m.coordinator.EvaluateScaling(ctx)
}

// poolRecentAverage returns the mean response time over the last
// responseTimeWindow successful checks of every instance, pooled into one
// system-wide sample set. Zero when no successful checks are recorded.
func (m *Monitor) poolRecentAverage() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum time.Duration
	total := 0
	for _, checks := range m.history {
		n := 0
		for i := len(checks) - 1; i >= 0 && n < responseTimeWindow; i-- {
			if !checks[i].Healthy {
				continue
			}
			sum += checks[i].ResponseTime
			n++
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return sum / time.Duration(total)
}

// History returns a copy of the check records for one instance, oldest
// first.
func (m *Monitor) History(instanceID string) []CheckRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	checks := m.history[instanceID]
	out := make([]CheckRecord, len(checks))
	copy(out, checks)
	return out
}

// Metrics returns a snapshot of the monitor's own counters.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
