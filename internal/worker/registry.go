package worker

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/sessionpool/internal/errors"
	"github.com/Iron-Ham/sessionpool/internal/event"
	"github.com/Iron-Ham/sessionpool/internal/logging"
)

// Registry creates, tracks, and destroys worker instances while enforcing
// the pool-size ceiling. It is the sole owner of Instance values; other
// components reference instances by ID.
//
// The registry is safe for concurrent use.
type Registry struct {
	mu           sync.Mutex
	factory      Factory
	expiry       ExpiryPolicy
	maxInstances int
	instances    map[string]*Instance
	nextSeq      uint64
	bus          *event.Bus
	logger       *logging.Logger
}

// NewRegistry creates a registry that builds sessions with the given
// factory and caps the pool at maxInstances. The bus may be nil; instances
// then skip announcing session regenerations.
func NewRegistry(factory Factory, expiry ExpiryPolicy, maxInstances int, bus *event.Bus, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		factory:      factory,
		expiry:       expiry,
		maxInstances: maxInstances,
		instances:    make(map[string]*Instance),
		bus:          bus,
		logger:       logger.WithComponent("registry"),
	}
}

// Create builds and initializes a new instance. It fails with
// ErrPoolAtCapacity when the pool is full, and with an initialization
// error when the session cannot be opened; a failed instance is cleaned up
// and never registered.
func (r *Registry) Create(ctx context.Context) (*Instance, error) {
	r.mu.Lock()
	if len(r.instances) >= r.maxInstances {
		r.mu.Unlock()
		return nil, errors.ErrPoolAtCapacity
	}

	id := uuid.NewString()
	r.nextSeq++
	inst := NewInstance(id, r.nextSeq, r.factory(id), r.expiry, r.bus, r.logger)

	// Reserve the slot before initializing so concurrent Create calls
	// cannot overshoot the ceiling while a session opens.
	r.instances[id] = inst
	r.mu.Unlock()

	if err := inst.Initialize(ctx); err != nil {
		r.mu.Lock()
		delete(r.instances, id)
		r.mu.Unlock()
		return nil, err
	}

	r.logger.Info("instance created", "instance_id", id, "status", inst.Status().String())
	return inst, nil
}

// Remove cleans up the instance and drops it from the registry.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return errors.ErrInstanceNotFound
	}
	delete(r.instances, id)
	r.mu.Unlock()

	inst.Cleanup()
	r.logger.Info("instance removed", "instance_id", id)
	return nil
}

// Get returns the instance with the given ID.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// All returns every registered instance, ordered by creation sequence.
func (r *Registry) All() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		all = append(all, inst)
	}
	sort.Slice(all, func(a, b int) bool { return all[a].Seq() < all[b].Seq() })
	return all
}

// Count returns the number of registered instances.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// MaxInstances returns the pool ceiling.
func (r *Registry) MaxInstances() int {
	return r.maxInstances
}

// CleanupAll removes and cleans up every instance.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		instances = append(instances, inst)
	}
	r.instances = make(map[string]*Instance)
	r.mu.Unlock()

	for _, inst := range instances {
		inst.Cleanup()
	}
	r.logger.Info("all instances cleaned up", "count", len(instances))
}
