package tasks

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/reset"
	"github.com/wippyai/amx-runtime/resource"
)

// State is the lifecycle state of a task.
type State int

const (
	Pending State = iota
	Completed
	Faulted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Resumer continues a suspended call once the task it waits on resolves.
// fault is amx.ErrNone for a completed task. It reports false when the
// target machine is gone.
type Resumer interface {
	Resume(s *reset.Snapshot, value amx.Cell, fault amx.Error) bool
}

// ResumerFunc adapts a function to Resumer.
type ResumerFunc func(s *reset.Snapshot, value amx.Cell, fault amx.Error) bool

// Resume calls f.
func (f ResumerFunc) Resume(s *reset.Snapshot, value amx.Cell, fault amx.Error) bool {
	return f(s, value, fault)
}

// Handler runs once when a task resolves.
type Handler func(t *Task)

// HandlerID identifies a registered handler. Zero is never a valid ID.
type HandlerID uint64

type handlerEntry struct {
	fn Handler
	id HandlerID
}

// Task is a one-way completion cell. Tasks are not safe for concurrent use;
// they are resolved on the goroutine that owns the scripts.
type Task struct {
	pool     *Pool
	waiters  []*reset.Snapshot
	handlers []handlerEntry
	nextID   HandlerID
	handle   resource.Handle
	result   amx.Cell
	code     amx.Error
	state    State
	keep     bool
	dead     bool
}

// ID returns the script-visible task id.
func (t *Task) ID() amx.Cell { return amx.Cell(t.handle) }

// State returns the current state.
func (t *Task) State() State { return t.state }

// Pending reports whether the task has not resolved yet.
func (t *Task) Pending() bool { return t.state == Pending }

// Completed reports whether the task completed with a result.
func (t *Task) Completed() bool { return t.state == Completed }

// Faulted reports whether the task failed with an error code.
func (t *Task) Faulted() bool { return t.state == Faulted }

// Result returns the completion value.
func (t *Task) Result() amx.Cell { return t.result }

// Code returns the error code of a faulted task.
func (t *Task) Code() amx.Error { return t.code }

// Kept reports whether the task survives without references.
func (t *Task) Kept() bool { return t.keep }

// Waiters returns the number of registered snapshots.
func (t *Task) Waiters() int { return len(t.waiters) }

// Complete resolves the task with v. It reports false if the task already
// resolved.
func (t *Task) Complete(v amx.Cell) bool {
	if t.state != Pending {
		return false
	}
	t.state = Completed
	t.result = v
	t.fire()
	return true
}

// Fail resolves the task with an error code. ErrNone and ErrSleep are not
// error codes and are refused.
func (t *Task) Fail(code amx.Error) bool {
	if t.state != Pending || code == amx.ErrNone || code == amx.ErrSleep {
		return false
	}
	t.state = Faulted
	t.code = code
	t.fire()
	return true
}

// Reset returns a resolved task to pending. It fails while snapshots wait on
// the task.
func (t *Task) Reset() bool {
	if len(t.waiters) > 0 {
		return false
	}
	t.state = Pending
	t.result = 0
	t.code = amx.ErrNone
	return true
}

// Wait registers a snapshot to resume when the task resolves. A resolved
// task resumes it immediately.
func (t *Task) Wait(s *reset.Snapshot) {
	if t.state != Pending {
		t.resume(s)
		return
	}
	if !t.dead {
		t.pool.table.Acquire(t.handle)
	}
	t.waiters = append(t.waiters, s)
}

// OnDone registers fn to run when the task resolves. A resolved task runs
// fn immediately and returns zero.
func (t *Task) OnDone(fn Handler) HandlerID {
	if t.state != Pending {
		fn(t)
		return 0
	}
	t.nextID++
	t.handlers = append(t.handlers, handlerEntry{fn: fn, id: t.nextID})
	return t.nextID
}

// Unregister removes a handler. It reports false when id is not registered.
func (t *Task) Unregister(id HandlerID) bool {
	for i, h := range t.handlers {
		if h.id == id {
			t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Task) resume(s *reset.Snapshot) {
	r := t.pool.Resumer()
	if r == nil {
		s.Discard()
		return
	}
	if !r.Resume(s, t.result, t.code) {
		Logger().Debug("waiter target gone", zap.Int32("task", int32(t.ID())))
	}
}

// fire replays waiters in registration order, then runs handlers. Both
// lists are detached first so registrations made by resumed code see a
// resolved task.
func (t *Task) fire() {
	Logger().Debug("task resolved",
		zap.Int32("task", int32(t.ID())),
		zap.Stringer("state", t.state),
		zap.Int32("result", int32(t.result)))

	t.pool.hold(t)
	waiters, handlers := t.waiters, t.handlers
	t.waiters, t.handlers = nil, nil

	for _, s := range waiters {
		t.resume(s)
		if !t.dead {
			t.pool.table.Release(t.handle)
		}
	}
	for _, h := range handlers {
		h.fn(t)
	}
	t.pool.Release(t)
}

// Drop discards pending waiters when the task is removed from its pool.
func (t *Task) Drop() {
	t.dead = true
	for _, s := range t.waiters {
		s.Discard()
	}
	t.waiters = nil
	t.handlers = nil
}
