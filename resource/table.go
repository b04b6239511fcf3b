package resource

import (
	"sync"
)

// Table maps handles to values of several kinds and notifies observers about
// their lifecycle. Values implementing Dropper are dropped on removal.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates a table. A positive limit bounds the number of live
// handles; Insert then fails with ErrFull.
func NewTable(limit int) *Table {
	return &Table{
		backend: NewLocalBackend(limit),
	}
}

// Insert adds a value and returns its handle.
func (t *Table) Insert(kind Kind, value any) (Handle, error) {
	handle, err := t.backend.Create(kind, value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return handle, nil
}

// Get retrieves a value of the given kind.
func (t *Table) Get(handle Handle, kind Kind) (any, bool) {
	value, k, ok := t.backend.Get(handle)
	if !ok || k != kind {
		return nil, false
	}
	return value, true
}

// Remove drops a value of the given kind. It fails while references are
// outstanding.
func (t *Table) Remove(handle Handle, kind Kind) (any, error) {
	return t.remove(handle, kind, false)
}

// ForceRemove drops a value regardless of its references.
func (t *Table) ForceRemove(handle Handle, kind Kind) (any, error) {
	return t.remove(handle, kind, true)
}

func (t *Table) remove(handle Handle, kind Kind, force bool) (any, error) {
	if _, k, ok := t.backend.Get(handle); !ok || k != kind {
		return nil, ErrInvalidHandle
	}
	value, _, err := t.backend.Drop(handle, force)
	if err != nil {
		return nil, err
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return value, nil
}

// Acquire adds a reference to a handle.
func (t *Table) Acquire(handle Handle) bool {
	refs, ok := t.backend.Acquire(handle)
	if ok {
		t.notify(Event{Type: EventAcquired, Handle: handle, Refs: refs})
	}
	return ok
}

// Release drops a reference and returns the remaining count.
func (t *Table) Release(handle Handle) (uint32, bool) {
	refs, ok := t.backend.Release(handle)
	if ok {
		t.notify(Event{Type: EventReleased, Handle: handle, Refs: refs})
	}
	return refs, ok
}

// Refs returns the reference count of a handle.
func (t *Table) Refs(handle Handle) (uint32, bool) {
	return t.backend.Refs(handle)
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over the live handles of one kind. fn must not modify the
// table.
func (t *Table) Each(kind Kind, fn func(Handle, any) bool) {
	t.backend.Each(func(h Handle, k Kind, v any) bool {
		if k != kind {
			return true
		}
		return fn(h, v)
	})
}

// Clear drops all values regardless of references.
func (t *Table) Clear() {
	// Collect handles first to avoid holding lock during removal
	type item struct {
		h Handle
		k Kind
	}
	var items []item
	t.backend.Each(func(h Handle, k Kind, _ any) bool {
		items = append(items, item{h, k})
		return true
	})
	for _, it := range items {
		_, _ = t.ForceRemove(it.h, it.k)
	}
}

// Close releases all values and stops accepting inserts.
func (t *Table) Close() error {
	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
