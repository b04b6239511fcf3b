package registry

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/wippyai/amx-runtime/amx"
)

// Extra is per-machine or per-context state attached by type.
type Extra interface {
	Close()
}

// Cloner is implemented by instance extras that carry over to a cloned
// machine. CloneExtra returns the copy for the clone, or nil to skip it.
type Cloner interface {
	CloneExtra(clone *Instance) Extra
}

// Instance is the registry entry of one machine.
type Instance struct {
	machine  *amx.Machine
	extras   map[reflect.Type]Extra
	contexts []*Context
	mu       sync.Mutex
	valid    atomic.Bool
	inited   bool
	finished bool
}

func newInstance(m *amx.Machine) *Instance {
	inst := &Instance{
		machine: m,
		extras:  make(map[reflect.Type]Extra),
	}
	inst.valid.Store(true)
	return inst
}

// Machine returns the machine of the instance.
func (i *Instance) Machine() *amx.Machine { return i.machine }

// Valid reports whether the machine is still loaded.
func (i *Instance) Valid() bool { return i.valid.Load() }

// Invalidate marks the machine as unloaded without closing extras.
func (i *Instance) Invalidate() { i.valid.Store(false) }

func (i *Instance) destroy() {
	i.valid.Store(false)

	i.mu.Lock()
	extras := i.extras
	i.extras = make(map[reflect.Type]Extra)
	contexts := i.contexts
	i.contexts = nil
	i.mu.Unlock()

	for j := len(contexts) - 1; j >= 0; j-- {
		contexts[j].Close()
	}
	for _, e := range extras {
		e.Close()
	}
}

// BeginInit reports whether the init callback still has to run and marks it
// as done.
func (i *Instance) BeginInit() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.inited {
		return false
	}
	i.inited = true
	return true
}

// BeginFinalize reports whether the exit callback still has to run and marks
// it as done. It is false when the instance was never initialized.
func (i *Instance) BeginFinalize() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.inited || i.finished {
		return false
	}
	i.finished = true
	return true
}

func (i *Instance) extrasSnapshot() []Extra {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Extra, 0, len(i.extras))
	for _, e := range i.extras {
		out = append(out, e)
	}
	return out
}

func (i *Instance) setExtra(e Extra) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.extras[reflect.TypeOf(e)] = e
}

// ExtraOf returns the extra of type T, constructing it with newFn on first
// access.
func ExtraOf[T Extra](i *Instance, newFn func(*Instance) T) T {
	key := reflect.TypeFor[T]()

	i.mu.Lock()
	if e, ok := i.extras[key]; ok {
		i.mu.Unlock()
		return e.(T)
	}
	i.mu.Unlock()

	// newFn may itself look up other extras.
	e := newFn(i)

	i.mu.Lock()
	defer i.mu.Unlock()
	if prev, ok := i.extras[key]; ok {
		e.Close()
		return prev.(T)
	}
	i.extras[key] = e
	return e
}

// FindExtra returns the extra of type T if one was attached.
func FindExtra[T Extra](i *Instance) (T, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	e, ok := i.extras[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return e.(T), true
}

// SetExtra attaches e, closing any previous extra of the same type.
func SetExtra[T Extra](i *Instance, e T) {
	key := reflect.TypeFor[T]()
	i.mu.Lock()
	prev, ok := i.extras[key]
	i.extras[key] = e
	i.mu.Unlock()
	if ok {
		prev.Close()
	}
}

// RemoveExtra detaches and closes the extra of type T.
func RemoveExtra[T Extra](i *Instance) bool {
	key := reflect.TypeFor[T]()
	i.mu.Lock()
	e, ok := i.extras[key]
	delete(i.extras, key)
	i.mu.Unlock()
	if ok {
		e.Close()
	}
	return ok
}

// PushContext starts a new execution level.
func (i *Instance) PushContext(entry int) *Context {
	c := NewContext(entry)
	i.mu.Lock()
	i.contexts = append(i.contexts, c)
	i.mu.Unlock()
	return c
}

// PopContext ends the innermost execution level and returns its context.
// The caller closes it.
func (i *Instance) PopContext() *Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := len(i.contexts)
	if n == 0 {
		return nil
	}
	c := i.contexts[n-1]
	i.contexts[n-1] = nil
	i.contexts = i.contexts[:n-1]
	return c
}

// Top returns the innermost context, or nil when no call is active.
func (i *Instance) Top() *Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.contexts) == 0 {
		return nil
	}
	return i.contexts[len(i.contexts)-1]
}

// TakeTop moves the innermost context out, leaving an empty placeholder
// with the same entry. The placeholder is what PopContext returns later.
func (i *Instance) TakeTop() *Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := len(i.contexts)
	if n == 0 {
		return nil
	}
	c := i.contexts[n-1]
	i.contexts[n-1] = NewContext(c.Entry)
	return c
}

// ReplaceTop installs c as the innermost context and returns the one it
// replaced. Without an active call c is pushed.
func (i *Instance) ReplaceTop(c *Context) *Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := len(i.contexts)
	if n == 0 {
		i.contexts = append(i.contexts, c)
		return nil
	}
	old := i.contexts[n-1]
	i.contexts[n-1] = c
	return old
}

// Depth returns the number of active execution levels.
func (i *Instance) Depth() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.contexts)
}
