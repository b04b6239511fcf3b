package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
)

// Registry maps machines to their instances. Entries are created on first
// use and stay until Remove.
type Registry struct {
	entries map[*amx.Machine]*Instance
	mu      sync.Mutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[*amx.Machine]*Instance)}
}

// Get returns the instance of m, creating it on first use.
func (r *Registry) Get(m *amx.Machine) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.entries[m]; ok {
		return inst
	}
	inst := newInstance(m)
	r.entries[m] = inst
	Logger().Debug("instance created", zap.Stringer("machine", m))
	return inst
}

// Find returns the instance of m without creating one.
func (r *Registry) Find(m *amx.Machine) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.entries[m]
	return inst, ok
}

// Clone registers machine, a clone of src's machine, with copies of every
// extra of src that implements Cloner. An existing entry for machine is
// replaced.
func (r *Registry) Clone(src *Instance, machine *amx.Machine) *Instance {
	inst := newInstance(machine)
	for _, e := range src.extrasSnapshot() {
		if c, ok := e.(Cloner); ok {
			if ce := c.CloneExtra(inst); ce != nil {
				inst.setExtra(ce)
			}
		}
	}

	r.mu.Lock()
	old := r.entries[machine]
	r.entries[machine] = inst
	r.mu.Unlock()

	if old != nil {
		old.destroy()
	}
	Logger().Debug("instance cloned",
		zap.Stringer("source", src.Machine()),
		zap.Stringer("machine", machine))
	return inst
}

// Remove invalidates the instance of m and closes its extras. Snapshots
// referencing it fail to restore from now on.
func (r *Registry) Remove(m *amx.Machine) {
	r.mu.Lock()
	inst, ok := r.entries[m]
	delete(r.entries, m)
	r.mu.Unlock()

	if ok {
		inst.destroy()
		Logger().Debug("instance removed", zap.Stringer("machine", m))
	}
}

// Len returns the number of registered machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Each calls fn for every registered instance. fn must not call back into
// the registry.
func (r *Registry) Each(fn func(*Instance) bool) {
	r.mu.Lock()
	list := make([]*Instance, 0, len(r.entries))
	for _, inst := range r.entries {
		list = append(list, inst)
	}
	r.mu.Unlock()

	for _, inst := range list {
		if !fn(inst) {
			return
		}
	}
}
