package worker

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/errors"
)

func newTestRegistry(max int) *Registry {
	factory := func(string) Session { return &stubSession{} }
	return NewRegistry(factory, defaultExpiry(), max, nil, nil)
}

func TestRegistry_Create(t *testing.T) {
	reg := newTestRegistry(3)

	inst, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if inst.ID() == "" {
		t.Error("expected non-empty instance ID")
	}
	if inst.Status() != StatusReady {
		t.Errorf("Status = %v, want ready", inst.Status())
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}

	got, ok := reg.Get(inst.ID())
	if !ok || got != inst {
		t.Error("Get should return the created instance")
	}
}

func TestRegistry_CreateAtCapacity(t *testing.T) {
	reg := newTestRegistry(2)

	for i := 0; i < 2; i++ {
		if _, err := reg.Create(context.Background()); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}

	if _, err := reg.Create(context.Background()); !errors.Is(err, errors.ErrPoolAtCapacity) {
		t.Errorf("Create at capacity = %v, want ErrPoolAtCapacity", err)
	}
	if reg.Count() != 2 {
		t.Errorf("Count = %d, want 2: pool must never exceed its ceiling", reg.Count())
	}
}

func TestRegistry_CreateInitFailureNotRegistered(t *testing.T) {
	failing := &stubSession{openErr: errors.New("no endpoint")}
	calls := 0
	factory := func(string) Session {
		calls++
		if calls == 1 {
			return failing
		}
		return &stubSession{}
	}
	reg := NewRegistry(factory, defaultExpiry(), 2, nil, nil)

	if _, err := reg.Create(context.Background()); err == nil {
		t.Fatal("expected Create to fail")
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0 after failed create", reg.Count())
	}

	// The failed attempt must not consume capacity.
	for i := 0; i < 2; i++ {
		if _, err := reg.Create(context.Background()); err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
	}
}

func TestRegistry_SequenceNumbersAreMonotone(t *testing.T) {
	reg := newTestRegistry(5)

	var prev uint64
	for i := 0; i < 3; i++ {
		inst, err := reg.Create(context.Background())
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		if inst.Seq() <= prev {
			t.Errorf("Seq = %d, want greater than %d", inst.Seq(), prev)
		}
		prev = inst.Seq()
	}
}

func TestRegistry_AllOrderedByCreation(t *testing.T) {
	reg := newTestRegistry(5)

	var ids []string
	for i := 0; i < 3; i++ {
		inst, err := reg.Create(context.Background())
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		ids = append(ids, inst.ID())
	}

	all := reg.All()
	if len(all) != 3 {
		t.Fatalf("All returned %d instances, want 3", len(all))
	}
	for i, inst := range all {
		if inst.ID() != ids[i] {
			t.Errorf("All[%d] = %s, want %s (creation order)", i, inst.ID(), ids[i])
		}
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg := newTestRegistry(3)

	inst, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := reg.Remove(inst.ID()); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
	if inst.Status() != StatusRemoved {
		t.Errorf("Status = %v, want removed", inst.Status())
	}

	if err := reg.Remove(inst.ID()); !errors.Is(err, errors.ErrInstanceNotFound) {
		t.Errorf("second Remove = %v, want ErrInstanceNotFound", err)
	}
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	reg := newTestRegistry(3)

	if err := reg.Remove("no-such-instance"); !errors.Is(err, errors.ErrInstanceNotFound) {
		t.Errorf("Remove unknown = %v, want ErrInstanceNotFound", err)
	}
}

func TestRegistry_CleanupAll(t *testing.T) {
	reg := newTestRegistry(3)

	var instances []*Instance
	for i := 0; i < 3; i++ {
		inst, err := reg.Create(context.Background())
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		instances = append(instances, inst)
	}

	reg.CleanupAll()

	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
	for _, inst := range instances {
		if inst.Status() != StatusRemoved {
			t.Errorf("instance %s Status = %v, want removed", inst.ID(), inst.Status())
		}
	}
}

func TestRegistry_ContextCancellation(t *testing.T) {
	reg := NewRegistry(NewEchoFactory(), defaultExpiry(), 2, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := reg.Create(ctx); err == nil {
		t.Error("expected Create with canceled context to fail")
	}
	if reg.Count() != 0 {
		t.Errorf("Count = %d, want 0", reg.Count())
	}
}

func TestEchoSessionLifecycle(t *testing.T) {
	reg := NewRegistry(NewEchoFactory(), ExpiryPolicy{MaxRequests: 2, Lifetime: time.Hour}, 1, nil, nil)

	inst, err := reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := inst.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := inst.Send(context.Background(), "again", nil); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Expiry by request count triggers a renew on the next probe.
	first := inst.Snapshot().SessionID
	if err := inst.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if inst.Snapshot().SessionID == first {
		t.Error("expected a new session ID after regeneration")
	}

	inst.Cleanup()
	if err := inst.HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck after Cleanup to fail")
	}
}
