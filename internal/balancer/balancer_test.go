package balancer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/config"
	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/pool"
	"github.com/Iron-Ham/sessionpool/internal/testutil"
	"github.com/Iron-Ham/sessionpool/internal/worker"
)

// newTestPool builds a coordinator with n healthy instances.
func newTestPool(t *testing.T, n int) (*pool.Coordinator, *event.Bus) {
	t.Helper()

	cfg := config.PoolConfig{
		MinInstances:       1,
		MaxInstances:       n + 2,
		InitialCount:       n,
		AutoScale:          false,
		ScaleUpThreshold:   0.8,
		ScaleDownThreshold: 0.3,
	}
	bus := event.NewBus()
	reg := worker.NewRegistry(testutil.NewHealthyFactory(), worker.ExpiryPolicy{MaxRequests: 1000, Lifetime: time.Hour}, cfg.MaxInstances, bus, nil)
	coord := pool.NewCoordinator(reg, cfg, bus, nil)
	if err := coord.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	// Admit every instance, as the first probe cycle would.
	for _, inst := range coord.Instances() {
		coord.MarkHealthy(inst.ID())
	}
	return coord, bus
}

func newTestBalancer(t *testing.T, n int, strategy Strategy) (*LoadBalancer, *pool.Coordinator, *event.Bus) {
	t.Helper()
	coord, bus := newTestPool(t, n)
	return New(coord, strategy, 3, time.Millisecond, bus, nil), coord, bus
}

// backdate shifts an active request's start time so the computed response
// time is deterministic.
func backdate(t *testing.T, lb *LoadBalancer, requestID string, d time.Duration) {
	t.Helper()
	lb.mu.Lock()
	defer lb.mu.Unlock()
	req, ok := lb.active[requestID]
	if !ok {
		t.Fatalf("request %s not active", requestID)
	}
	req.StartTime = time.Now().Add(-d)
}

func TestRoute_BooksAssignment(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 1, NewLeastBusy())

	id, err := lb.Route(context.Background(), "req-1", "hello")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if coord.ActiveCount(id) != 1 {
		t.Errorf("ActiveCount = %d, want 1", coord.ActiveCount(id))
	}

	stats := lb.Stats()
	if stats.TotalRequests != 1 || stats.SuccessfulRoutes != 1 {
		t.Errorf("stats = %+v, want 1 total / 1 successful", stats)
	}
	if stats.ActiveRequestsCount != 1 {
		t.Errorf("ActiveRequestsCount = %d, want 1", stats.ActiveRequestsCount)
	}
}

func TestRoute_RoundRobinDistributes(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 3, NewRoundRobin())

	for i := 0; i < 9; i++ {
		if _, err := lb.Route(context.Background(), fmt.Sprintf("req-%d", i), "x"); err != nil {
			t.Fatalf("Route %d failed: %v", i, err)
		}
	}

	for _, id := range coord.Healthy() {
		if got := coord.ActiveCount(id); got != 3 {
			t.Errorf("instance %s active = %d, want 3", id, got)
		}
	}
}

func TestRoute_LeastBusyPrefersIdle(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 2, NewLeastBusy())
	healthy := coord.Healthy()

	// Load the first instance directly so the balancer must pick the second.
	if err := coord.Assign(healthy[0]); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	id, err := lb.Route(context.Background(), "req-1", "x")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if id != healthy[1] {
		t.Errorf("routed to %s, want idle instance %s", id, healthy[1])
	}
}

func TestRoute_NoHealthyInstancesExhaustsRetries(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 1, NewLeastBusy())
	for _, id := range coord.Healthy() {
		coord.MarkUnhealthy(id)
	}

	_, err := lb.Route(context.Background(), "req-1", "x")
	if err == nil {
		t.Fatal("Route succeeded with no healthy instances")
	}
	var routeErr *errors.RoutingError
	if !errors.As(err, &routeErr) {
		t.Fatalf("error type = %T, want *RoutingError", err)
	}
	if routeErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", routeErr.Attempts)
	}
	if !errors.Is(err, errors.ErrNoHealthyInstances) {
		t.Errorf("cause = %v, want ErrNoHealthyInstances", err)
	}
	if lb.Stats().FailedRoutes != 1 {
		t.Errorf("FailedRoutes = %d, want 1", lb.Stats().FailedRoutes)
	}
}

func TestRoute_ContextCanceledDuringBackoff(t *testing.T) {
	coord, bus := newTestPool(t, 1)
	lb := New(coord, NewLeastBusy(), 3, time.Minute, bus, nil)
	for _, id := range coord.Healthy() {
		coord.MarkUnhealthy(id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := lb.Route(ctx, "req-1", "x")
	if err == nil {
		t.Fatal("Route succeeded with no healthy instances")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("cause = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Route blocked for %v despite canceled context", elapsed)
	}
}

func TestComplete_RunningAverage(t *testing.T) {
	lb, _, _ := newTestBalancer(t, 1, NewLeastBusy())
	ctx := context.Background()

	durations := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	wantAvgs := []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second}

	var instanceID string
	for i, d := range durations {
		reqID := fmt.Sprintf("req-%d", i)
		id, err := lb.Route(ctx, reqID, "x")
		if err != nil {
			t.Fatalf("Route failed: %v", err)
		}
		instanceID = id
		backdate(t, lb, reqID, d)
		lb.Complete(reqID, true, 10)

		perf, ok := lb.InstancePerformance(instanceID)
		if !ok {
			t.Fatal("no performance record")
		}
		// Allow slack for the real time elapsed between route and complete.
		if diff := perf.AvgResponseTime - wantAvgs[i]; diff < 0 || diff > 500*time.Millisecond {
			t.Errorf("after request %d: AvgResponseTime = %v, want ~%v", i, perf.AvgResponseTime, wantAvgs[i])
		}
	}

	perf, _ := lb.InstancePerformance(instanceID)
	if perf.TotalRequests != 3 || perf.SuccessCount != 3 || perf.ErrorCount != 0 {
		t.Errorf("perf = %+v, want 3 total / 3 success", perf)
	}
}

func TestComplete_ReleasesBooking(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 1, NewLeastBusy())

	id, err := lb.Route(context.Background(), "req-1", "x")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	lb.Complete("req-1", true, 0)

	if got := coord.ActiveCount(id); got != 0 {
		t.Errorf("ActiveCount = %d, want 0 after completion", got)
	}
	if lb.Stats().ActiveRequestsCount != 0 {
		t.Error("request still tracked after completion")
	}
}

func TestComplete_UnknownRequestIsNoop(t *testing.T) {
	lb, _, _ := newTestBalancer(t, 1, NewLeastBusy())
	lb.Complete("never-routed", true, 0)

	if lb.Stats().RequestHistoryCount != 0 {
		t.Error("unknown completion recorded in history")
	}
}

func TestComplete_FailureCountsError(t *testing.T) {
	lb, _, _ := newTestBalancer(t, 1, NewLeastBusy())

	id, err := lb.Route(context.Background(), "req-1", "x")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	lb.Complete("req-1", false, 0)

	perf, _ := lb.InstancePerformance(id)
	if perf.ErrorCount != 1 || perf.SuccessCount != 0 {
		t.Errorf("perf = %+v, want 1 error / 0 success", perf)
	}
}

func TestHandleInstanceFailure_FailsOverOrphans(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 2, NewRoundRobin())
	ctx := context.Background()

	var byInstance = make(map[string][]string)
	for i := 0; i < 4; i++ {
		reqID := fmt.Sprintf("req-%d", i)
		id, err := lb.Route(ctx, reqID, "x")
		if err != nil {
			t.Fatalf("Route failed: %v", err)
		}
		byInstance[id] = append(byInstance[id], reqID)
	}

	dead := coord.Healthy()[0]
	coord.MarkUnhealthy(dead)

	failed := lb.HandleInstanceFailure(dead)
	if failed != len(byInstance[dead]) {
		t.Errorf("failed over %d requests, want %d", failed, len(byInstance[dead]))
	}
	if got := coord.ActiveCount(dead); got != 0 {
		t.Errorf("dead instance ActiveCount = %d, want 0", got)
	}

	perf, _ := lb.InstancePerformance(dead)
	if perf.ErrorCount != len(byInstance[dead]) {
		t.Errorf("ErrorCount = %d, want %d", perf.ErrorCount, len(byInstance[dead]))
	}

	// Requests on the surviving instance stay in flight.
	survivor := coord.Healthy()[0]
	if got := coord.ActiveCount(survivor); got != len(byInstance[survivor]) {
		t.Errorf("survivor ActiveCount = %d, want %d", got, len(byInstance[survivor]))
	}
}

func TestSetStrategy_PublishesEvent(t *testing.T) {
	lb, _, bus := newTestBalancer(t, 1, NewLeastBusy())

	events := make(chan event.Event, 1)
	bus.Subscribe("strategy.changed", func(e event.Event) {
		events <- e
	})

	lb.SetStrategy(NewRoundRobin())

	select {
	case e := <-events:
		sc, ok := e.(event.StrategyChangedEvent)
		if !ok {
			t.Fatalf("event type = %T", e)
		}
		if sc.Previous != "least_busy" || sc.Current != "round_robin" {
			t.Errorf("transition = %s -> %s, want least_busy -> round_robin", sc.Previous, sc.Current)
		}
	case <-time.After(time.Second):
		t.Fatal("no strategy change event published")
	}

	if lb.StrategyName() != "round_robin" {
		t.Errorf("StrategyName = %q, want round_robin", lb.StrategyName())
	}
}

func TestSetStrategy_SameNameNoEvent(t *testing.T) {
	lb, _, bus := newTestBalancer(t, 1, NewLeastBusy())

	events := make(chan event.Event, 1)
	bus.Subscribe("strategy.changed", func(e event.Event) {
		events <- e
	})

	lb.SetStrategy(NewLeastBusy())
	select {
	case <-events:
		t.Error("event published for unchanged strategy")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetStrategyName_Unknown(t *testing.T) {
	lb, _, _ := newTestBalancer(t, 1, NewLeastBusy())
	if err := lb.SetStrategyName("fastest"); !errors.Is(err, errors.ErrUnknownStrategy) {
		t.Errorf("SetStrategyName = %v, want ErrUnknownStrategy", err)
	}
}

func TestHistoryCapped(t *testing.T) {
	lb, _, _ := newTestBalancer(t, 1, NewLeastBusy())
	ctx := context.Background()

	for i := 0; i < maxHistory+50; i++ {
		reqID := fmt.Sprintf("req-%d", i)
		if _, err := lb.Route(ctx, reqID, "x"); err != nil {
			t.Fatalf("Route %d failed: %v", i, err)
		}
		lb.Complete(reqID, true, 0)
	}

	if got := lb.Stats().RequestHistoryCount; got != maxHistory {
		t.Errorf("history length = %d, want %d", got, maxHistory)
	}
}

func TestLoadDistribution(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 2, NewRoundRobin())
	ctx := context.Background()

	if _, err := lb.Route(ctx, "req-1", "x"); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	lb.Complete("req-1", true, 0)
	if _, err := lb.Route(ctx, "req-2", "x"); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	dist := lb.LoadDistribution()
	if len(dist) != 2 {
		t.Fatalf("distribution has %d entries, want 2", len(dist))
	}

	totalActive, totalRouted := 0, 0
	for _, info := range dist {
		totalActive += info.ActiveRequests
		totalRouted += info.TotalRequests
	}
	if totalActive != coord.TotalActive() {
		t.Errorf("distribution active = %d, coordinator reports %d", totalActive, coord.TotalActive())
	}
	if totalRouted != 2 {
		t.Errorf("distribution total = %d, want 2", totalRouted)
	}
}

func TestResetStats(t *testing.T) {
	lb, _, _ := newTestBalancer(t, 1, NewLeastBusy())

	if _, err := lb.Route(context.Background(), "req-1", "x"); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	lb.Complete("req-1", true, 0)
	lb.ResetStats()

	stats := lb.Stats()
	if stats.TotalRequests != 0 || stats.RequestHistoryCount != 0 || len(stats.StrategyUsage) != 0 {
		t.Errorf("stats not reset: %+v", stats)
	}
	if len(lb.AllInstancePerformance()) != 0 {
		t.Error("performance records not reset")
	}
}

func TestCleanup_DrainsActive(t *testing.T) {
	lb, coord, _ := newTestBalancer(t, 2, NewRoundRobin())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := lb.Route(ctx, fmt.Sprintf("req-%d", i), "x"); err != nil {
			t.Fatalf("Route failed: %v", err)
		}
	}

	lb.Cleanup()

	if lb.Stats().ActiveRequestsCount != 0 {
		t.Error("active requests remain after cleanup")
	}
	if coord.TotalActive() != 0 {
		t.Errorf("coordinator TotalActive = %d, want 0", coord.TotalActive())
	}
}
