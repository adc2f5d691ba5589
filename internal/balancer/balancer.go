// Package balancer routes requests across the pool's healthy instances
// using a pluggable selection strategy, retries on failure, tracks
// per-instance performance, and fails over requests orphaned by a dead
// instance. It owns its active-request and performance maps; membership
// and active-count bookkeeping stay with the coordinator.
package balancer

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/logging"
	"github.com/Iron-Ham/sessionpool/internal/pool"
)

// maxHistory caps the completed-request history.
const maxHistory = 1000

// ActiveRequest tracks a routed request until completion.
type ActiveRequest struct {
	RequestID   string    `json:"request_id"`
	InstanceID  string    `json:"instance_id"`
	StartTime   time.Time `json:"start_time"`
	PayloadSize int       `json:"payload_size"`
}

// PerformanceRecord holds running totals for one instance. AvgResponseTime
// is the running mean over completed requests.
type PerformanceRecord struct {
	TotalRequests     int           `json:"total_requests"`
	TotalResponseTime time.Duration `json:"total_response_time"`
	AvgResponseTime   time.Duration `json:"avg_response_time"`
	SuccessCount      int           `json:"success_count"`
	ErrorCount        int           `json:"error_count"`
	LastRequestTime   time.Time     `json:"last_request_time"`
}

// RequestRecord is one completed request in the bounded history.
type RequestRecord struct {
	RequestID    string        `json:"request_id"`
	InstanceID   string        `json:"instance_id"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	PayloadSize  int           `json:"payload_size"`
	ResponseSize int           `json:"response_size"`
	CompletedAt  time.Time     `json:"completed_at"`
}

// RoutingStats summarizes routing outcomes.
type RoutingStats struct {
	TotalRequests       int            `json:"total_requests"`
	SuccessfulRoutes    int            `json:"successful_routes"`
	FailedRoutes        int            `json:"failed_routes"`
	Retries             int            `json:"retries"`
	StrategyUsage       map[string]int `json:"strategy_usage"`
	CurrentStrategy     string         `json:"current_strategy"`
	ActiveRequestsCount int            `json:"active_requests_count"`
	RequestHistoryCount int            `json:"request_history_count"`
}

// LoadInfo is one instance's entry in the load distribution view.
type LoadInfo struct {
	ActiveRequests  int           `json:"active_requests"`
	TotalRequests   int           `json:"total_requests"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	SuccessRate     float64       `json:"success_rate"`
	ErrorCount      int           `json:"error_count"`
}

// LoadBalancer routes requests to healthy instances. It is safe for
// concurrent use.
type LoadBalancer struct {
	coordinator *pool.Coordinator
	bus         *event.Bus
	logger      *logging.Logger
	maxRetries  int
	retryDelay  time.Duration

	mu       sync.Mutex
	strategy Strategy
	active   map[string]*ActiveRequest
	perf     map[string]*PerformanceRecord
	history  []RequestRecord
	stats    struct {
		totalRequests    int
		successfulRoutes int
		failedRoutes     int
		retries          int
		strategyUsage    map[string]int
	}
}

// New creates a LoadBalancer routing over the coordinator's healthy set.
// maxRetries is the number of additional routing attempts after the first;
// retryDelay is the base backoff, growing linearly per attempt.
func New(coordinator *pool.Coordinator, strategy Strategy, maxRetries int, retryDelay time.Duration, bus *event.Bus, logger *logging.Logger) *LoadBalancer {
	if logger == nil {
		logger = logging.NopLogger()
	}
	lb := &LoadBalancer{
		coordinator: coordinator,
		bus:         bus,
		logger:      logger.WithComponent("load_balancer"),
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		strategy:    strategy,
		active:      make(map[string]*ActiveRequest),
		perf:        make(map[string]*PerformanceRecord),
	}
	lb.stats.strategyUsage = make(map[string]int)
	return lb
}

// Route assigns a request to an instance, retrying up to maxRetries
// additional times with linearly growing backoff. Each attempt's selection
// is revalidated against the coordinator before the request is booked, so
// an instance that went unhealthy between selection and assignment just
// costs a retry. Exhausting all attempts returns a routing error; callers
// apply their own backoff.
func (l *LoadBalancer) Route(ctx context.Context, requestID string, payload string) (string, error) {
	strategy := l.currentStrategy()

	l.mu.Lock()
	l.stats.totalRequests++
	l.stats.strategyUsage[strategy.Name()]++
	l.mu.Unlock()

	attempts := l.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		id, ok := strategy.Select(l.candidates())
		if !ok {
			l.logger.Warn("no healthy instance available", "request_id", requestID, "attempt", attempt+1)
			if attempt < l.maxRetries {
				// Back off longer each time the pool comes up empty.
				if err := l.sleep(ctx, l.retryDelay*time.Duration(attempt+1)); err != nil {
					return "", l.failRoute(requestID, attempt+1, err)
				}
			}
			continue
		}

		if err := l.coordinator.Assign(id); err != nil {
			l.logger.Warn("instance failed validation", "request_id", requestID, "instance_id", id, "error", err)
			if attempt < l.maxRetries {
				l.mu.Lock()
				l.stats.retries++
				l.mu.Unlock()
				if err := l.sleep(ctx, l.retryDelay); err != nil {
					return "", l.failRoute(requestID, attempt+1, err)
				}
			}
			continue
		}

		l.track(requestID, id, payload)
		l.logger.Debug("request routed", "request_id", requestID, "instance_id", id,
			"strategy", strategy.Name(), "attempt", attempt+1)
		return id, nil
	}

	return "", l.failRoute(requestID, attempts, errors.ErrNoHealthyInstances)
}

// failRoute records a failed route and builds the caller-facing error.
func (l *LoadBalancer) failRoute(requestID string, attempts int, cause error) error {
	l.mu.Lock()
	l.stats.failedRoutes++
	l.mu.Unlock()
	l.logger.Error("failed to route request", "request_id", requestID, "attempts", attempts)
	return errors.NewRoutingError(requestID, attempts, cause)
}

// sleep waits for the backoff duration or until the context is done.
func (l *LoadBalancer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// candidates builds the strategy's view of the healthy set, in creation
// order so ties resolve to the earliest-created instance.
func (l *LoadBalancer) candidates() []Candidate {
	healthy := l.coordinator.Healthy()

	l.mu.Lock()
	defer l.mu.Unlock()

	cands := make([]Candidate, 0, len(healthy))
	for _, id := range healthy {
		c := Candidate{ID: id, ActiveRequests: l.coordinator.ActiveCount(id)}
		if p, ok := l.perf[id]; ok && p.TotalRequests > 0 {
			c.AvgResponseTime = p.AvgResponseTime
			c.HasStats = true
		}
		cands = append(cands, c)
	}
	return cands
}

// track books a successfully routed request.
func (l *LoadBalancer) track(requestID, instanceID, payload string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active[requestID] = &ActiveRequest{
		RequestID:   requestID,
		InstanceID:  instanceID,
		StartTime:   time.Now(),
		PayloadSize: len(payload),
	}

	p := l.perfLocked(instanceID)
	p.TotalRequests++
	p.LastRequestTime = time.Now()
	l.stats.successfulRoutes++
}

// perfLocked returns the performance record for an instance, creating it
// if needed. The caller must hold the mutex.
func (l *LoadBalancer) perfLocked(instanceID string) *PerformanceRecord {
	p, ok := l.perf[instanceID]
	if !ok {
		p = &PerformanceRecord{}
		l.perf[instanceID] = p
	}
	return p
}

// Complete finishes a routed request, releases its booking with the
// coordinator, and folds the elapsed time into the instance's running
// average. Completing an unknown request is a no-op.
func (l *LoadBalancer) Complete(requestID string, success bool, responseSize int) {
	l.mu.Lock()
	req, ok := l.active[requestID]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("completion for unknown request", "request_id", requestID)
		return
	}
	delete(l.active, requestID)

	responseTime := time.Since(req.StartTime)

	p := l.perfLocked(req.InstanceID)
	p.TotalResponseTime += responseTime
	if p.TotalRequests > 0 {
		p.AvgResponseTime = p.TotalResponseTime / time.Duration(p.TotalRequests)
	}
	if success {
		p.SuccessCount++
	} else {
		p.ErrorCount++
	}

	l.history = append(l.history, RequestRecord{
		RequestID:    requestID,
		InstanceID:   req.InstanceID,
		ResponseTime: responseTime,
		Success:      success,
		PayloadSize:  req.PayloadSize,
		ResponseSize: responseSize,
		CompletedAt:  time.Now(),
	})
	if len(l.history) > maxHistory {
		l.history = l.history[len(l.history)-maxHistory:]
	}
	l.mu.Unlock()

	l.coordinator.Release(req.InstanceID)
	l.logger.Debug("request completed", "request_id", requestID,
		"instance_id", req.InstanceID, "response_time", responseTime, "success", success)
}

// HandleInstanceFailure fails over every in-flight request on a dead
// instance: each is completed unsuccessfully and its booking released, so
// callers see a failure and can retry rather than hang.
func (l *LoadBalancer) HandleInstanceFailure(instanceID string) int {
	l.mu.Lock()
	var orphaned []string
	for id, req := range l.active {
		if req.InstanceID == instanceID {
			orphaned = append(orphaned, id)
		}
	}
	l.mu.Unlock()

	if len(orphaned) > 0 {
		l.logger.Info("failing over requests from dead instance",
			"instance_id", instanceID, "count", len(orphaned))
		for _, requestID := range orphaned {
			l.Complete(requestID, false, 0)
		}
	}
	return len(orphaned)
}

// SetStrategy switches the selection strategy at runtime.
func (l *LoadBalancer) SetStrategy(strategy Strategy) {
	l.mu.Lock()
	previous := l.strategy.Name()
	l.strategy = strategy
	l.mu.Unlock()

	if previous == strategy.Name() {
		return
	}
	l.logger.Info("strategy changed", "previous", previous, "current", strategy.Name())
	if l.bus != nil {
		l.bus.Publish(event.NewStrategyChangedEvent(previous, strategy.Name()))
	}
}

// SetStrategyName switches strategy by configuration name.
func (l *LoadBalancer) SetStrategyName(name string) error {
	strategy, err := ByName(name)
	if err != nil {
		return err
	}
	l.SetStrategy(strategy)
	return nil
}

// currentStrategy returns the strategy in effect.
func (l *LoadBalancer) currentStrategy() Strategy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.strategy
}

// StrategyName returns the name of the strategy in effect.
func (l *LoadBalancer) StrategyName() string {
	return l.currentStrategy().Name()
}

// Stats returns a snapshot of routing statistics.
func (l *LoadBalancer) Stats() RoutingStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	usage := make(map[string]int, len(l.stats.strategyUsage))
	for k, v := range l.stats.strategyUsage {
		usage[k] = v
	}
	return RoutingStats{
		TotalRequests:       l.stats.totalRequests,
		SuccessfulRoutes:    l.stats.successfulRoutes,
		FailedRoutes:        l.stats.failedRoutes,
		Retries:             l.stats.retries,
		StrategyUsage:       usage,
		CurrentStrategy:     l.strategy.Name(),
		ActiveRequestsCount: len(l.active),
		RequestHistoryCount: len(l.history),
	}
}

// InstancePerformance returns the performance record for one instance.
func (l *LoadBalancer) InstancePerformance(instanceID string) (PerformanceRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.perf[instanceID]
	if !ok {
		return PerformanceRecord{}, false
	}
	return *p, true
}

// AllInstancePerformance returns performance records for every instance
// the balancer has routed to.
func (l *LoadBalancer) AllInstancePerformance() map[string]PerformanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]PerformanceRecord, len(l.perf))
	for id, p := range l.perf {
		out[id] = *p
	}
	return out
}

// LoadDistribution returns the per-healthy-instance load view.
func (l *LoadBalancer) LoadDistribution() map[string]LoadInfo {
	healthy := l.coordinator.Healthy()

	l.mu.Lock()
	defer l.mu.Unlock()

	dist := make(map[string]LoadInfo, len(healthy))
	for _, id := range healthy {
		info := LoadInfo{ActiveRequests: l.coordinator.ActiveCount(id)}
		if p, ok := l.perf[id]; ok {
			info.TotalRequests = p.TotalRequests
			info.AvgResponseTime = p.AvgResponseTime
			info.ErrorCount = p.ErrorCount
			if p.TotalRequests > 0 {
				info.SuccessRate = float64(p.SuccessCount) / float64(p.TotalRequests)
			}
		}
		dist[id] = info
	}
	return dist
}

// ResetStats clears routing statistics, performance records, and history.
// Active requests are untouched.
func (l *LoadBalancer) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.totalRequests = 0
	l.stats.successfulRoutes = 0
	l.stats.failedRoutes = 0
	l.stats.retries = 0
	l.stats.strategyUsage = make(map[string]int)
	l.perf = make(map[string]*PerformanceRecord)
	l.history = nil
	l.logger.Info("statistics reset")
}

// Cleanup fails over every remaining in-flight request. Used during
// shutdown so no booking is left dangling.
func (l *LoadBalancer) Cleanup() {
	l.mu.Lock()
	remaining := make([]string, 0, len(l.active))
	for id := range l.active {
		remaining = append(remaining, id)
	}
	l.mu.Unlock()

	for _, requestID := range remaining {
		l.Complete(requestID, false, 0)
	}
	l.logger.Info("cleanup completed", "drained", len(remaining))
}
