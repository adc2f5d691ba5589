package orchestrator

import (
	"context"
	"testing"

	"github.com/Iron-Ham/sessionpool/internal/config"
	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/testutil"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pool.InitialCount = 2
	cfg.Pool.MaxInstances = 4
	cfg.Pool.AutoScale = false
	cfg.Balancer.RetryDelayMs = 1
	return cfg
}

func newStarted(t *testing.T) *Orchestrator {
	t.Helper()

	o, err := New(testConfig(), testutil.NewHealthyFactory(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

func TestNew_UnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Balancer.Strategy = "fastest"

	if _, err := New(cfg, testutil.NewHealthyFactory(), nil); !errors.Is(err, errors.ErrUnknownStrategy) {
		t.Errorf("New = %v, want ErrUnknownStrategy", err)
	}
}

func TestStartBootstrapsPool(t *testing.T) {
	o := newStarted(t)

	status := o.Status()
	if status.TotalInstances != 2 || status.HealthyInstances != 2 {
		t.Errorf("status = %+v, want 2 total / 2 healthy", status)
	}
	if got := len(o.InstanceList()); got != 2 {
		t.Errorf("InstanceList has %d entries, want 2", got)
	}
}

func TestStartTwiceFails(t *testing.T) {
	o := newStarted(t)
	if err := o.Start(context.Background()); err == nil {
		t.Error("second Start succeeded, want error")
	}
}

func TestStartFatalWhenNothingBootstraps(t *testing.T) {
	broken := &testutil.FakeSession{OpenErr: errors.New("no browser")}
	alsoBroken := &testutil.FakeSession{OpenErr: errors.New("no browser")}
	o, err := New(testConfig(), testutil.NewFakeFactory(broken, alsoBroken), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = o.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded with no bootable instances")
	}
	if !errors.IsFatal(err) {
		t.Errorf("error %v not classified fatal", err)
	}
}

func TestRouteAndComplete(t *testing.T) {
	o := newStarted(t)

	requestID, instanceID, err := o.Route(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if requestID == "" || instanceID == "" {
		t.Fatalf("Route returned requestID=%q instanceID=%q", requestID, instanceID)
	}

	o.Complete(requestID, true, 42)

	stats := o.RoutingStats()
	if stats.SuccessfulRoutes != 1 || stats.ActiveRequestsCount != 0 {
		t.Errorf("stats = %+v, want 1 successful / 0 active", stats)
	}
	if _, ok := o.InstancePerformance()[instanceID]; !ok {
		t.Error("no performance record for routed instance")
	}
}

func TestSendDeliversPayload(t *testing.T) {
	o := newStarted(t)

	instanceID, err := o.Send(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var found bool
	for _, info := range o.InstanceList() {
		if info.InstanceID == instanceID && info.RequestCount == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("instance %s did not record the sent request", instanceID)
	}
	if o.RoutingStats().ActiveRequestsCount != 0 {
		t.Error("Send left the request booked")
	}
}

func TestAddAndRemoveInstance(t *testing.T) {
	o := newStarted(t)

	id, err := o.AddInstance(context.Background())
	if err != nil {
		t.Fatalf("AddInstance failed: %v", err)
	}
	if got := o.Status().TotalInstances; got != 3 {
		t.Errorf("TotalInstances = %d after add, want 3", got)
	}

	if err := o.RemoveInstance(id); err != nil {
		t.Fatalf("RemoveInstance failed: %v", err)
	}
	if got := o.Status().TotalInstances; got != 2 {
		t.Errorf("TotalInstances = %d after remove, want 2", got)
	}
}

func TestSetStrategy(t *testing.T) {
	o := newStarted(t)

	if err := o.SetStrategy("round_robin"); err != nil {
		t.Fatalf("SetStrategy failed: %v", err)
	}
	if o.StrategyName() != "round_robin" {
		t.Errorf("StrategyName = %q, want round_robin", o.StrategyName())
	}
	if err := o.SetStrategy("fastest"); !errors.Is(err, errors.ErrUnknownStrategy) {
		t.Errorf("SetStrategy(unknown) = %v, want ErrUnknownStrategy", err)
	}
}

func TestSubscribeReceivesPoolEvents(t *testing.T) {
	o := newStarted(t)

	events := make(chan event.Event, 4)
	subID := o.Subscribe("instance.created", func(e event.Event) {
		events <- e
	})

	if _, err := o.AddInstance(context.Background()); err != nil {
		t.Fatalf("AddInstance failed: %v", err)
	}
	select {
	case e := <-events:
		if e.EventType() != "instance.created" {
			t.Errorf("EventType = %q", e.EventType())
		}
	default:
		t.Fatal("no instance.created event received")
	}

	if !o.Unsubscribe(subID) {
		t.Error("Unsubscribe returned false for live subscription")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	o, err := New(testConfig(), testutil.NewHealthyFactory(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	o.Stop()
	o.Stop()

	if got := o.Status().TotalInstances; got != 0 {
		t.Errorf("TotalInstances = %d after Stop, want 0", got)
	}
}
