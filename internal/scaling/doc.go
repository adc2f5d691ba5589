// Package scaling provides load-factor-based elastic scaling decisions for
// the session pool.
//
// The pool coordinator computes a load factor (in-flight requests over
// healthy instance count) after each health cycle and applies a configurable
// policy to decide whether to grow or shrink the pool.
//
// The core types are:
//
//   - [Policy]: Defines scaling rules (thresholds, cooldown, instance limits)
//   - [Decision]: The output of policy evaluation: scale up, scale down, or hold
//
// # Usage
//
//	policy := scaling.NewPolicy(
//	    scaling.WithMinInstances(1),
//	    scaling.WithMaxInstances(5),
//	    scaling.WithScaleUpThreshold(0.8),
//	    scaling.WithScaleDownThreshold(0.3),
//	    scaling.WithCooldownPeriod(60 * time.Second),
//	)
//
//	decision := policy.Evaluate(loadFactor, totalInstances)
//	if decision.Action != scaling.ActionNone {
//	    log.Printf("Scaling: %s delta=%d reason=%s", decision.Action, decision.Delta, decision.Reason)
//	}
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package scaling
