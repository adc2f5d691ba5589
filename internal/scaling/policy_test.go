package scaling

import (
	"testing"
	"time"
)

func TestPolicy_ScaleUp(t *testing.T) {
	policy := NewPolicy(
		WithMaxInstances(3),
		WithCooldownPeriod(0),
	)

	d := policy.Evaluate(1.0, 1)
	if d.Action != ActionScaleUp {
		t.Fatalf("Action = %q, want scale_up", d.Action)
	}
	if d.Delta != 1 {
		t.Errorf("Delta = %d, want 1", d.Delta)
	}
}

func TestPolicy_ScaleUpBlockedAtMax(t *testing.T) {
	policy := NewPolicy(
		WithMaxInstances(3),
		WithCooldownPeriod(0),
	)

	d := policy.Evaluate(1.0, 3)
	if d.Action != ActionNone {
		t.Errorf("Action = %q, want none at max instances", d.Action)
	}
}

func TestPolicy_ScaleDown(t *testing.T) {
	policy := NewPolicy(
		WithMinInstances(1),
		WithCooldownPeriod(0),
	)

	d := policy.Evaluate(0.1, 3)
	if d.Action != ActionScaleDown {
		t.Fatalf("Action = %q, want scale_down", d.Action)
	}
	if d.Delta != -1 {
		t.Errorf("Delta = %d, want -1", d.Delta)
	}
}

func TestPolicy_ScaleDownBlockedAtMin(t *testing.T) {
	policy := NewPolicy(
		WithMinInstances(2),
		WithCooldownPeriod(0),
	)

	d := policy.Evaluate(0.0, 2)
	if d.Action != ActionNone {
		t.Errorf("Action = %q, want none at min instances", d.Action)
	}
}

func TestPolicy_HoldBetweenThresholds(t *testing.T) {
	policy := NewPolicy(
		WithScaleUpThreshold(0.8),
		WithScaleDownThreshold(0.3),
		WithCooldownPeriod(0),
	)

	for _, load := range []float64{0.3, 0.5, 0.8} {
		if d := policy.Evaluate(load, 2); d.Action != ActionNone {
			t.Errorf("Evaluate(%.2f) = %q, want none", load, d.Action)
		}
	}
}

func TestPolicy_Cooldown(t *testing.T) {
	policy := NewPolicy(
		WithMaxInstances(5),
		WithCooldownPeriod(time.Hour),
	)

	first := policy.Evaluate(1.0, 1)
	if first.Action != ActionScaleUp {
		t.Fatalf("first Action = %q, want scale_up", first.Action)
	}
	policy.Commit()

	second := policy.Evaluate(1.0, 2)
	if second.Action != ActionNone {
		t.Errorf("second Action = %q, want none during cooldown", second.Action)
	}
	if second.Reason != "cooldown period active" {
		t.Errorf("Reason = %q, want cooldown explanation", second.Reason)
	}
}

func TestPolicy_CooldownStartsOnlyOnCommit(t *testing.T) {
	policy := NewPolicy(
		WithMaxInstances(5),
		WithCooldownPeriod(time.Hour),
	)

	// A decision that was never executed must not consume the cooldown.
	if d := policy.Evaluate(1.0, 1); d.Action != ActionScaleUp {
		t.Fatalf("first Action = %q, want scale_up", d.Action)
	}
	if !policy.LastDecisionTime().IsZero() {
		t.Error("LastDecisionTime set before any action was committed")
	}
	if d := policy.Evaluate(1.0, 1); d.Action != ActionScaleUp {
		t.Errorf("repeat Action = %q, want scale_up with no committed action", d.Action)
	}
}

func TestPolicy_CooldownAppliesAcrossDirections(t *testing.T) {
	policy := NewPolicy(
		WithMinInstances(1),
		WithMaxInstances(5),
		WithCooldownPeriod(time.Hour),
	)

	if d := policy.Evaluate(1.0, 1); d.Action != ActionScaleUp {
		t.Fatalf("Action = %q, want scale_up", d.Action)
	}
	policy.Commit()
	if d := policy.Evaluate(0.0, 3); d.Action != ActionNone {
		t.Errorf("scale_down during cooldown = %q, want none", d.Action)
	}
}

func TestPolicy_Defaults(t *testing.T) {
	policy := NewPolicy()

	if policy.MinInstances() != 1 {
		t.Errorf("MinInstances = %d, want 1", policy.MinInstances())
	}
	if policy.MaxInstances() != 5 {
		t.Errorf("MaxInstances = %d, want 5", policy.MaxInstances())
	}
	if !policy.LastDecisionTime().IsZero() {
		t.Error("LastDecisionTime should be zero before any decision")
	}

	// Threshold boundaries are exclusive: exactly-at-threshold holds.
	if d := policy.Evaluate(0.8, 2); d.Action != ActionNone {
		t.Errorf("Evaluate(0.8) = %q, want none", d.Action)
	}
	if d := policy.Evaluate(0.3, 2); d.Action != ActionNone {
		t.Errorf("Evaluate(0.3) = %q, want none", d.Action)
	}
}

func TestActionString(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{ActionScaleUp, "scale_up"},
		{ActionScaleDown, "scale_down"},
		{ActionNone, "none"},
	}

	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("%v.String() = %q, want %q", tt.action, got, tt.want)
		}
	}
}
