package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed        = errors.New("resource backend closed")
	ErrInvalidHandle = errors.New("invalid handle")
	ErrReferenced    = errors.New("cannot drop value with outstanding references")
	ErrFull          = errors.New("resource table full")
)

// LocalBackend is an in-memory handle store with reference counting.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	live     int
	limit    int
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	kind  Kind
	refs  uint32
	valid bool
}

// NewLocalBackend creates a new in-memory backend. A positive limit bounds
// the number of live handles.
func NewLocalBackend(limit int) *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		limit:    limit,
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(kind Kind, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if b.limit > 0 && b.live >= b.limit {
		return 0, ErrFull
	}

	e := entry{
		kind:  kind,
		value: value,
		valid: true,
	}
	b.live++

	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

func (b *LocalBackend) lookup(handle Handle) *entry {
	if handle == 0 || int(handle) > len(b.entries) {
		return nil
	}
	e := &b.entries[handle-1]
	if !e.valid {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, Kind, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, 0, false
	}
	return e.value, e.kind, true
}

// Drop removes a value. It fails while references are outstanding unless
// force is set.
func (b *LocalBackend) Drop(handle Handle, force bool) (any, Kind, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, 0, ErrInvalidHandle
	}
	if e.refs > 0 && !force {
		return nil, 0, ErrReferenced
	}

	value, kind := e.value, e.kind
	*e = entry{}
	b.live--
	b.freeList = append(b.freeList, handle)
	return value, kind, nil
}

// Acquire increments the reference count and returns the new count.
func (b *LocalBackend) Acquire(handle Handle) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	e.refs++
	return e.refs, true
}

// Release decrements the reference count and returns the new count.
func (b *LocalBackend) Release(handle Handle) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil || e.refs == 0 {
		return 0, false
	}
	e.refs--
	return e.refs, true
}

// Refs returns the reference count of a handle.
func (b *LocalBackend) Refs(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.refs, true
}

// Close releases all values.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	entries := b.entries
	already := b.closed
	b.closed = true
	b.entries = nil
	b.freeList = nil
	b.live = 0
	b.mu.Unlock()

	if already {
		return nil
	}
	for i := range entries {
		if entries[i].valid {
			if d, ok := entries[i].value.(Dropper); ok {
				d.Drop()
			}
		}
	}
	return nil
}

// Len returns the number of live handles.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live
}

// Each iterates over all live handles in handle order.
func (b *LocalBackend) Each(fn func(Handle, Kind, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), e.kind, e.value) {
				break
			}
		}
	}
}
