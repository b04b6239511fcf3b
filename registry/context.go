package registry

import (
	"reflect"

	"github.com/wippyai/amx-runtime/amx"
)

// Context is the state of one execution level on a machine.
type Context struct {
	extras map[reflect.Type]Extra
	guards []func()
	Entry  int
	Result amx.Cell
}

// NewContext creates a context for entry.
func NewContext(entry int) *Context {
	return &Context{Entry: entry}
}

// AddGuard registers release to run when the context closes. Guards run in
// reverse order of registration.
func (c *Context) AddGuard(release func()) {
	c.guards = append(c.guards, release)
}

// Guards returns the number of pending guards.
func (c *Context) Guards() int { return len(c.guards) }

// Empty reports whether the context holds no guards and no extras.
func (c *Context) Empty() bool {
	return len(c.guards) == 0 && len(c.extras) == 0
}

// Close releases the guards and closes the extras. It is safe to call more
// than once.
func (c *Context) Close() {
	guards := c.guards
	c.guards = nil
	for i := len(guards) - 1; i >= 0; i-- {
		guards[i]()
	}
	extras := c.extras
	c.extras = nil
	for _, e := range extras {
		e.Close()
	}
}

// ContextExtraOf returns the context extra of type T, constructing it with
// newFn on first access.
func ContextExtraOf[T Extra](c *Context, newFn func() T) T {
	key := reflect.TypeFor[T]()
	if e, ok := c.extras[key]; ok {
		return e.(T)
	}
	if c.extras == nil {
		c.extras = make(map[reflect.Type]Extra)
	}
	e := newFn()
	c.extras[key] = e
	return e
}

// FindContextExtra returns the context extra of type T if present.
func FindContextExtra[T Extra](c *Context) (T, bool) {
	e, ok := c.extras[reflect.TypeFor[T]()]
	if !ok {
		var zero T
		return zero, false
	}
	return e.(T), true
}

// SetContextExtra attaches e, closing any previous extra of the same type.
func SetContextExtra[T Extra](c *Context, e T) {
	key := reflect.TypeFor[T]()
	if c.extras == nil {
		c.extras = make(map[reflect.Type]Extra)
	}
	if prev, ok := c.extras[key]; ok {
		prev.Close()
	}
	c.extras[key] = e
}

// TakeContextExtra detaches the context extra of type T without closing it.
func TakeContextExtra[T Extra](c *Context) (T, bool) {
	key := reflect.TypeFor[T]()
	e, ok := c.extras[key]
	if !ok {
		var zero T
		return zero, false
	}
	delete(c.extras, key)
	return e.(T), true
}
