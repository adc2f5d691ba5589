package worker

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/logging"
)

// Status represents the lifecycle state of a worker instance.
type Status int

const (
	// StatusInitializing means the instance is being set up.
	StatusInitializing Status = iota
	// StatusReady means the instance can accept work at full capability.
	StatusReady
	// StatusReadyDegraded means the instance can accept work, but its
	// session came up in reduced-capability mode.
	StatusReadyDegraded
	// StatusFailed means initialization did not produce a usable session.
	StatusFailed
	// StatusRegenerating means the instance is replacing an expired session.
	StatusRegenerating
	// StatusRemoved is terminal: resources have been released.
	StatusRemoved
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusReadyDegraded:
		return "ready_degraded"
	case StatusFailed:
		return "failed"
	case StatusRegenerating:
		return "regenerating"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Accepting reports whether an instance in this status can take work.
func (s Status) Accepting() bool {
	return s == StatusReady || s == StatusReadyDegraded
}

// ExpiryPolicy controls when an instance's session is retired and replaced.
type ExpiryPolicy struct {
	// MaxRequests retires a session after it has served this many requests.
	MaxRequests int
	// Lifetime retires a session after this age.
	Lifetime time.Duration
}

// Instance is a single unit of session capacity. It owns its lifecycle
// state and session bookkeeping; the registry owns the instance itself and
// the coordinator references it by ID only.
//
// All methods are safe for concurrent use. Session calls are serialized
// under the instance mutex.
type Instance struct {
	id  string
	seq uint64
	bus *event.Bus

	mu               sync.Mutex
	session          Session
	status           Status
	createdAt        time.Time
	lastActivity     time.Time
	requestCount     int
	sessionID        string
	sessionCreatedAt time.Time
	expiry           ExpiryPolicy
	logger           *logging.Logger
}

// Snapshot is a read-only projection of an instance's current fields.
type Snapshot struct {
	InstanceID       string    `json:"instance_id"`
	Seq              uint64    `json:"seq"`
	Status           string    `json:"status"`
	SessionID        string    `json:"session_id"`
	RequestCount     int       `json:"request_count"`
	CreatedAt        time.Time `json:"created_at"`
	LastActivity     time.Time `json:"last_activity"`
	SessionCreatedAt time.Time `json:"session_created_at"`
}

// NewInstance creates an instance in the initializing state.
// The sequence number is the registry's monotone creation counter and is
// used for deterministic tie-breaking; lower means created earlier. The
// bus may be nil; session regenerations are then not announced.
func NewInstance(id string, seq uint64, session Session, expiry ExpiryPolicy, bus *event.Bus, logger *logging.Logger) *Instance {
	if logger == nil {
		logger = logging.NopLogger()
	}
	now := time.Now()
	return &Instance{
		id:           id,
		seq:          seq,
		bus:          bus,
		session:      session,
		status:       StatusInitializing,
		createdAt:    now,
		lastActivity: now,
		expiry:       expiry,
		logger:       logger.WithInstance(id),
	}
}

// ID returns the instance identifier.
func (i *Instance) ID() string {
	return i.id
}

// Seq returns the instance's creation sequence number.
func (i *Instance) Seq() uint64 {
	return i.seq
}

// Status returns the current lifecycle status.
func (i *Instance) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Initialize opens the session and moves the instance to ready, or
// ready_degraded when the driver reports reduced capability. On failure the
// instance is marked failed, its resources are released, and an
// initialization error is returned.
func (i *Instance) Initialize(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status != StatusInitializing {
		return errors.NewValidationError(i.id, "already initialized")
	}

	sessionID, degraded, err := i.session.Open(ctx)
	if err != nil {
		i.status = StatusFailed
		i.closeSessionLocked()
		i.logger.Error("initialization failed", "error", err)
		return errors.NewInitializationError("failed to open session", err).WithInstanceID(i.id)
	}

	i.sessionID = sessionID
	i.sessionCreatedAt = time.Now()
	i.lastActivity = i.sessionCreatedAt

	if degraded {
		i.status = StatusReadyDegraded
		i.logger.Warn("initialized in degraded mode", "session_id", sessionID)
	} else {
		i.status = StatusReady
		i.logger.Info("initialized", "session_id", sessionID)
	}
	return nil
}

// HealthCheck probes the instance. A nil return means healthy.
// For ready instances it also evaluates the session expiry policy and
// regenerates the session before reporting health; degraded instances are
// only pinged, since their session cannot be meaningfully renewed.
func (i *Instance) HealthCheck(ctx context.Context) error {
	regenerated, err := i.checkLocked(ctx)
	if regenerated != nil && i.bus != nil {
		i.bus.Publish(*regenerated)
	}
	return err
}

// checkLocked runs the probe under the mutex. When the session was
// regenerated it returns the event to announce; publication happens after
// the lock is released so bus handlers are free to call back into the
// instance.
func (i *Instance) checkLocked(ctx context.Context) (*event.InstanceRegeneratedEvent, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.status {
	case StatusReadyDegraded:
		if err := i.session.Ping(ctx); err != nil {
			return nil, err
		}
		i.lastActivity = time.Now()
		return nil, nil
	case StatusReady:
		// Probed below.
	default:
		return nil, errors.ErrInstanceNotReady
	}

	if err := i.session.Ping(ctx); err != nil {
		return nil, err
	}

	if i.sessionExpiredLocked() {
		reason := i.expiryReasonLocked()
		if err := i.regenerateLocked(ctx); err != nil {
			return nil, err
		}
		i.lastActivity = time.Now()
		ev := event.NewInstanceRegeneratedEvent(i.id, i.sessionID, reason)
		return &ev, nil
	}

	i.lastActivity = time.Now()
	return nil, nil
}

// sessionExpiredLocked reports whether the expiry policy retires the
// current session. The caller must hold the mutex.
func (i *Instance) sessionExpiredLocked() bool {
	if i.sessionCreatedAt.IsZero() {
		return true
	}
	if i.expiry.Lifetime > 0 && time.Since(i.sessionCreatedAt) > i.expiry.Lifetime {
		return true
	}
	if i.expiry.MaxRequests > 0 && i.requestCount >= i.expiry.MaxRequests {
		return true
	}
	return false
}

// expiryReasonLocked names what retired the session. Request count is
// checked first since it is the deliberate rotation trigger; everything
// else counts as age. The caller must hold the mutex.
func (i *Instance) expiryReasonLocked() string {
	if i.expiry.MaxRequests > 0 && i.requestCount >= i.expiry.MaxRequests {
		return "request_count"
	}
	return "age"
}

// regenerateLocked replaces the expired session in place.
// The caller must hold the mutex.
func (i *Instance) regenerateLocked(ctx context.Context) error {
	i.logger.Info("session expired, regenerating", "session_id", i.sessionID, "request_count", i.requestCount)
	i.status = StatusRegenerating

	sessionID, err := i.session.Renew(ctx)
	i.status = StatusReady
	if err != nil {
		i.logger.Error("session regeneration failed", "error", err)
		return errors.Wrap(err, "session regeneration failed")
	}

	i.sessionID = sessionID
	i.requestCount = 0
	i.sessionCreatedAt = time.Now()
	i.logger.Info("session regenerated", "session_id", sessionID)
	return nil
}

// Send dispatches work to the instance. It fails unless the instance is
// ready or ready_degraded; on success the request counter and last-activity
// timestamp are updated.
func (i *Instance) Send(ctx context.Context, content string, attachments []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.status.Accepting() {
		return errors.ErrInstanceNotReady
	}

	if err := i.session.Send(ctx, content, attachments); err != nil {
		return err
	}

	i.requestCount++
	i.lastActivity = time.Now()
	return nil
}

// Cleanup releases the instance's resources and moves it to the removed
// state. It is idempotent and safe to call in any state.
func (i *Instance) Cleanup() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status == StatusRemoved {
		return
	}

	i.closeSessionLocked()
	i.status = StatusRemoved
	i.logger.Info("cleaned up")
}

// closeSessionLocked closes the session, logging rather than propagating
// errors. The caller must hold the mutex.
func (i *Instance) closeSessionLocked() {
	if i.session == nil {
		return
	}
	if err := i.session.Close(); err != nil {
		i.logger.Warn("error closing session", "error", err)
	}
}

// Snapshot returns a side-effect-free projection of the instance's fields.
func (i *Instance) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()

	return Snapshot{
		InstanceID:       i.id,
		Seq:              i.seq,
		Status:           i.status.String(),
		SessionID:        i.sessionID,
		RequestCount:     i.requestCount,
		CreatedAt:        i.createdAt,
		LastActivity:     i.lastActivity,
		SessionCreatedAt: i.sessionCreatedAt,
	}
}
