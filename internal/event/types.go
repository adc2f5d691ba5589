// Package event defines the pub-sub bus and event types used to surface
// pool lifecycle changes and health alerts without coupling the
// coordinator, health monitor, and load balancer to their consumers.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "instance.created", "alert.instance_failed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Instance Lifecycle Events
// -----------------------------------------------------------------------------

// InstanceCreatedEvent is emitted when a worker instance joins the pool.
type InstanceCreatedEvent struct {
	baseEvent
	InstanceID string // Unique identifier for the instance
	PoolSize   int    // Pool size after the addition
}

// NewInstanceCreatedEvent creates an InstanceCreatedEvent.
func NewInstanceCreatedEvent(instanceID string, poolSize int) InstanceCreatedEvent {
	return InstanceCreatedEvent{
		baseEvent:  newBaseEvent("instance.created"),
		InstanceID: instanceID,
		PoolSize:   poolSize,
	}
}

// InstanceRemovedEvent is emitted when a worker instance leaves the pool.
type InstanceRemovedEvent struct {
	baseEvent
	InstanceID string // Unique identifier for the instance
	PoolSize   int    // Pool size after the removal
	Reason     string // Why the instance was removed (e.g., "scale_down", "shutdown")
}

// NewInstanceRemovedEvent creates an InstanceRemovedEvent.
func NewInstanceRemovedEvent(instanceID string, poolSize int, reason string) InstanceRemovedEvent {
	return InstanceRemovedEvent{
		baseEvent:  newBaseEvent("instance.removed"),
		InstanceID: instanceID,
		PoolSize:   poolSize,
		Reason:     reason,
	}
}

// InstanceRegeneratedEvent is emitted when an instance's session is replaced
// after expiring by age or request count.
type InstanceRegeneratedEvent struct {
	baseEvent
	InstanceID string // Unique identifier for the instance
	SessionID  string // Identifier of the new session
	Reason     string // Expiry reason ("age" or "request_count")
}

// NewInstanceRegeneratedEvent creates an InstanceRegeneratedEvent.
func NewInstanceRegeneratedEvent(instanceID, sessionID, reason string) InstanceRegeneratedEvent {
	return InstanceRegeneratedEvent{
		baseEvent:  newBaseEvent("instance.regenerated"),
		InstanceID: instanceID,
		SessionID:  sessionID,
		Reason:     reason,
	}
}

// -----------------------------------------------------------------------------
// Health Alert Events
// -----------------------------------------------------------------------------

// InstanceFailedEvent is emitted once when an instance crosses from healthy
// to unhealthy. Repeated failed probes do not re-emit it.
type InstanceFailedEvent struct {
	baseEvent
	InstanceID string // Unique identifier for the instance
	Reason     string // Probe failure detail
}

// NewInstanceFailedEvent creates an InstanceFailedEvent.
func NewInstanceFailedEvent(instanceID, reason string) InstanceFailedEvent {
	return InstanceFailedEvent{
		baseEvent:  newBaseEvent("alert.instance_failed"),
		InstanceID: instanceID,
		Reason:     reason,
	}
}

// InstanceRecoveredEvent is emitted once when an instance crosses from
// unhealthy back to healthy.
type InstanceRecoveredEvent struct {
	baseEvent
	InstanceID string        // Unique identifier for the instance
	Downtime   time.Duration // How long the instance was unhealthy
}

// NewInstanceRecoveredEvent creates an InstanceRecoveredEvent.
func NewInstanceRecoveredEvent(instanceID string, downtime time.Duration) InstanceRecoveredEvent {
	return InstanceRecoveredEvent{
		baseEvent:  newBaseEvent("alert.instance_recovered"),
		InstanceID: instanceID,
		Downtime:   downtime,
	}
}

// HighFailureRateEvent is emitted when the pool-wide health check failure
// rate exceeds the configured threshold.
type HighFailureRateEvent struct {
	baseEvent
	FailureRate float64 // Observed failure rate in [0.0, 1.0]
	Threshold   float64 // Configured threshold that was exceeded
}

// NewHighFailureRateEvent creates a HighFailureRateEvent.
func NewHighFailureRateEvent(failureRate, threshold float64) HighFailureRateEvent {
	return HighFailureRateEvent{
		baseEvent:   newBaseEvent("alert.high_failure_rate"),
		FailureRate: failureRate,
		Threshold:   threshold,
	}
}

// HighResponseTimeEvent is emitted when the pool-wide average probe
// response time over recent successful checks exceeds the configured
// threshold.
type HighResponseTimeEvent struct {
	baseEvent
	ResponseTime time.Duration // Average over recent successful probes
	Threshold    time.Duration // Configured threshold that was exceeded
}

// NewHighResponseTimeEvent creates a HighResponseTimeEvent.
func NewHighResponseTimeEvent(responseTime, threshold time.Duration) HighResponseTimeEvent {
	return HighResponseTimeEvent{
		baseEvent:    newBaseEvent("alert.high_response_time"),
		ResponseTime: responseTime,
		Threshold:    threshold,
	}
}

// NoHealthyInstancesEvent is emitted when the healthy set becomes empty.
type NoHealthyInstancesEvent struct {
	baseEvent
	TotalInstances int // Instances still registered in the pool
}

// NewNoHealthyInstancesEvent creates a NoHealthyInstancesEvent.
func NewNoHealthyInstancesEvent(totalInstances int) NoHealthyInstancesEvent {
	return NoHealthyInstancesEvent{
		baseEvent:      newBaseEvent("alert.no_healthy_instances"),
		TotalInstances: totalInstances,
	}
}

// -----------------------------------------------------------------------------
// Scaling and Routing Events
// -----------------------------------------------------------------------------

// PoolScaledEvent is emitted after an autoscaling decision is applied.
type PoolScaledEvent struct {
	baseEvent
	Action     string  // "scale_up" or "scale_down"
	Delta      int     // Number of instances added or removed
	PoolSize   int     // Pool size after the change
	LoadFactor float64 // Load factor that triggered the decision
}

// NewPoolScaledEvent creates a PoolScaledEvent.
func NewPoolScaledEvent(action string, delta, poolSize int, loadFactor float64) PoolScaledEvent {
	return PoolScaledEvent{
		baseEvent:  newBaseEvent("pool.scaled"),
		Action:     action,
		Delta:      delta,
		PoolSize:   poolSize,
		LoadFactor: loadFactor,
	}
}

// StrategyChangedEvent is emitted when the load balancing strategy is
// switched at runtime.
type StrategyChangedEvent struct {
	baseEvent
	Previous string // Name of the strategy being replaced
	Current  string // Name of the strategy now in effect
}

// NewStrategyChangedEvent creates a StrategyChangedEvent.
func NewStrategyChangedEvent(previous, current string) StrategyChangedEvent {
	return StrategyChangedEvent{
		baseEvent: newBaseEvent("strategy.changed"),
		Previous:  previous,
		Current:   current,
	}
}
