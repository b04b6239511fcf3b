package tasks

import (
	stderrors "errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/errors"
	"github.com/wippyai/amx-runtime/resource"
)

// Pool owns tasks. A task id is its handle in the pool's table and its
// reference count is the table's reference count.
//
// A task is deleted once it has no references and is not kept. References
// are held by the creator, by every waiting snapshot and by schedulers and
// combinators watching it.
type Pool struct {
	table   *resource.Table
	resumer atomic.Pointer[Resumer]
}

// NewPool creates a pool holding at most limit tasks; zero means unbounded.
func NewPool(limit int) *Pool {
	return &Pool{table: resource.NewTable(limit)}
}

// SetResumer sets the resumer used to replay waiters.
func (p *Pool) SetResumer(r Resumer) {
	p.resumer.Store(&r)
}

// Resumer returns the current resumer, or nil.
func (p *Pool) Resumer() Resumer {
	if r := p.resumer.Load(); r != nil {
		return *r
	}
	return nil
}

// New creates a pending task holding one reference for the caller.
func (p *Pool) New() (*Task, error) {
	t := &Task{pool: p}
	h, err := p.table.Insert(resource.KindTask, t)
	if stderrors.Is(err, resource.ErrClosed) {
		return nil, errors.DeadTarget(errors.PhaseTask, "task pool closed")
	}
	if err != nil {
		return nil, errors.New(errors.PhaseTask, errors.KindExhausted).
			Detail("task pool full (%d live)", p.table.Len()).
			Cause(err).
			Build()
	}
	t.handle = h
	p.table.Acquire(h)
	return t, nil
}

// Get looks up a task by id.
func (p *Pool) Get(id amx.Cell) (*Task, bool) {
	if id <= 0 {
		return nil, false
	}
	v, ok := p.table.Get(resource.Handle(id), resource.KindTask)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

// Acquire adds a reference to t.
func (p *Pool) Acquire(t *Task) {
	p.hold(t)
}

func (p *Pool) hold(t *Task) {
	if !t.dead {
		p.table.Acquire(t.handle)
	}
}

// Release drops a reference and collects t when it was the last one.
func (p *Pool) Release(t *Task) {
	if t.dead {
		return
	}
	if refs, ok := p.table.Release(t.handle); ok && refs == 0 {
		p.Collect(t)
	}
}

// Refs returns the number of references to t.
func (p *Pool) Refs(t *Task) uint32 {
	if t.dead {
		return 0
	}
	refs, _ := p.table.Refs(t.handle)
	return refs
}

// Keep sets the keep flag. Clearing it collects an unreferenced task.
func (p *Pool) Keep(t *Task, keep bool) {
	t.keep = keep
	if !keep {
		p.Collect(t)
	}
}

// Collect deletes t if it is unreferenced and not kept. It reports whether
// the task was deleted.
func (p *Pool) Collect(t *Task) bool {
	if t.dead || t.keep {
		return false
	}
	if _, err := p.table.Remove(t.handle, resource.KindTask); err != nil {
		return false
	}
	Logger().Debug("task collected", zap.Int32("task", int32(t.ID())))
	return true
}

// Delete removes t regardless of references. Waiting snapshots are
// discarded without being resumed.
func (p *Pool) Delete(t *Task) bool {
	if t.dead {
		return false
	}
	_, err := p.table.ForceRemove(t.handle, resource.KindTask)
	return err == nil
}

// Len returns the number of live tasks.
func (p *Pool) Len() int { return p.table.Len() }

// Each visits every live task.
func (p *Pool) Each(fn func(*Task) bool) {
	p.table.Each(resource.KindTask, func(_ resource.Handle, v any) bool {
		return fn(v.(*Task))
	})
}

// Subscribe reports task lifecycle events to o.
func (p *Pool) Subscribe(o resource.Observer) { p.table.Subscribe(o) }

// Close deletes every task. New fails afterwards.
func (p *Pool) Close() {
	p.table.Clear()
	_ = p.table.Close()
}
