package engine

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/signal"
	"github.com/wippyai/amx-runtime/tasks"
)

func threadNative(name string) bool { return strings.HasPrefix(name, "thread_") }

func (e *Engine) scriptNatives() map[string]amx.Native {
	return map[string]amx.Native{
		"wait_ticks":   raiser(signal.WaitTicks, 1),
		"wait_ms":      raiser(signal.WaitMs, 1),
		"wait_forever": raiser(signal.WaitForever, 0),
		"yield":        e.yield,

		"task_new":        e.taskNew,
		"task_delete":     e.taskDelete,
		"task_keep":       e.taskKeep,
		"task_set_result": e.taskSetResult,
		"task_set_error":  e.taskSetError,
		"task_reset":      e.taskReset,
		"task_state":      e.taskState,
		"task_result":     e.taskResult,
		"task_await":      e.taskAwait,
		"task_ticks":      e.taskTicks,
		"task_ms":         e.taskMs,
		"task_any":        e.combine(tasks.Any),
		"task_all":        e.combine(tasks.All),

		"fork_start":  e.forkStart,
		"fork_commit": e.forkCommitNative,
		"fork_end":    e.forkEndNative,

		"thread_detach": raiser(signal.Detach, 1),
		"thread_attach": raiser(signal.Attach, 0),
		"thread_sync":   raiser(signal.Sync, 0),

		"var_alloc": varAlloc,
		"var_free":  raiser(signal.FreeVar, 1),

		"last_fault": e.lastFault,
	}
}

// arity checks that a native got at least n arguments.
func arity(m *amx.Machine, p []amx.Cell, n int) bool {
	if len(p)-1 < n {
		m.RaiseError(amx.ErrParams)
		return false
	}
	return true
}

// raiser builds a native that suspends with reason and its first argument
// as payload.
func raiser(reason signal.Reason, args int) amx.Native {
	return func(m *amx.Machine, p []amx.Cell) amx.Cell {
		if !arity(m, p, args) {
			return 0
		}
		var payload uint32
		if args > 0 {
			var ok bool
			if payload, ok = signal.Payload(p[1]); !ok {
				m.RaiseError(amx.ErrParams)
				return 0
			}
		}
		return signal.Raise(m, reason, payload)
	}
}

func varAlloc(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 2) {
		return 0
	}
	if p[1] <= 0 {
		m.RaiseError(amx.ErrParams)
		return 0
	}
	reason := signal.AllocVar
	if p[2] != 0 {
		reason = signal.AllocVarZeroed
	}
	cells, ok := signal.Payload(p[1])
	if !ok {
		m.RaiseError(amx.ErrParams)
		return 0
	}
	return signal.Raise(m, reason, cells)
}

func (e *Engine) top(m *amx.Machine) *registry.Context {
	return e.registry.Get(m).Top()
}

func (e *Engine) yield(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	if ctx := e.top(m); ctx != nil {
		ctx.Result = p[1]
	}
	return p[1]
}

func (e *Engine) lastFault(m *amx.Machine, _ []amx.Cell) amx.Cell {
	return stateOf(e.registry.Get(m)).faultCode()
}

// own ties the caller's reference of t to the running context.
func (e *Engine) own(m *amx.Machine, t *tasks.Task) {
	if ctx := e.top(m); ctx != nil {
		ctx.AddGuard(func() { e.pool.Release(t) })
		return
	}
	e.pool.Release(t)
}

func (e *Engine) task(m *amx.Machine, id amx.Cell) (*tasks.Task, bool) {
	t, ok := e.pool.Get(id)
	if !ok {
		Logger().Warn("unknown task", zap.Int32("task", int32(id)))
		m.RaiseError(amx.ErrParams)
	}
	return t, ok
}

func (e *Engine) newTask(m *amx.Machine) (*tasks.Task, bool) {
	t, err := e.pool.New()
	if err != nil {
		Logger().Warn("task limit reached", zap.Error(err))
		m.RaiseError(amx.ErrMemory)
		return nil, false
	}
	e.own(m, t)
	return t, true
}

func (e *Engine) taskNew(m *amx.Machine, _ []amx.Cell) amx.Cell {
	t, ok := e.newTask(m)
	if !ok {
		return 0
	}
	return t.ID()
}

func (e *Engine) taskDelete(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	t, ok := e.task(m, p[1])
	if !ok {
		return 0
	}
	return boolCell(e.pool.Delete(t))
}

func (e *Engine) taskKeep(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 2) {
		return 0
	}
	t, ok := e.task(m, p[1])
	if !ok {
		return 0
	}
	e.pool.Keep(t, p[2] != 0)
	return 1
}

func (e *Engine) taskSetResult(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 2) {
		return 0
	}
	t, ok := e.task(m, p[1])
	if !ok {
		return 0
	}
	return boolCell(t.Complete(p[2]))
}

func (e *Engine) taskSetError(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 2) {
		return 0
	}
	code := amx.Error(p[2])
	if code == amx.ErrNone || code == amx.ErrSleep {
		m.RaiseError(amx.ErrParams)
		return 0
	}
	t, ok := e.task(m, p[1])
	if !ok {
		return 0
	}
	return boolCell(t.Fail(code))
}

func (e *Engine) taskReset(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	t, ok := e.task(m, p[1])
	if !ok {
		return 0
	}
	return boolCell(t.Reset())
}

func (e *Engine) taskState(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	t, ok := e.task(m, p[1])
	if !ok {
		return 0
	}
	return amx.Cell(t.State())
}

func (e *Engine) taskResult(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	t, ok := e.task(m, p[1])
	if !ok {
		return 0
	}
	return t.Result()
}

func (e *Engine) taskAwait(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	if _, ok := e.task(m, p[1]); !ok {
		return 0
	}
	id, ok := signal.Payload(p[1])
	if !ok {
		m.RaiseError(amx.ErrParams)
		return 0
	}
	return signal.Raise(m, signal.Await, id)
}

func (e *Engine) taskTicks(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	t, ok := e.newTask(m)
	if !ok {
		return 0
	}
	e.ticks.Add(t, int(p[1]))
	return t.ID()
}

func (e *Engine) taskMs(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	t, ok := e.newTask(m)
	if !ok {
		return 0
	}
	e.timers.Add(t, time.Duration(p[1])*time.Millisecond)
	return t.ID()
}

// combine builds task_any / task_all: (ids[], count).
func (e *Engine) combine(fn func(*tasks.Pool, ...*tasks.Task) (*tasks.Task, error)) amx.Native {
	return func(m *amx.Machine, p []amx.Cell) amx.Cell {
		if !arity(m, p, 2) {
			return 0
		}
		if p[2] < 0 {
			m.RaiseError(amx.ErrParams)
			return 0
		}
		inputs := make([]*tasks.Task, 0, p[2])
		for i := amx.Cell(0); i < p[2]; i++ {
			id, err := m.ReadCell(p[1] + i*amx.CellSize)
			if err != nil {
				m.RaiseError(amx.ErrMemAccess)
				return 0
			}
			t, ok := e.task(m, id)
			if !ok {
				return 0
			}
			inputs = append(inputs, t)
		}
		t, err := fn(e.pool, inputs...)
		if err != nil {
			Logger().Warn("task combinator failed", zap.Error(err))
			m.RaiseError(amx.ErrMemory)
			return 0
		}
		e.own(m, t)
		return t.ID()
	}
}

// forkStart is fork_start(method, flags, &result, &error).
func (e *Engine) forkStart(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 4) {
		return 0
	}
	method, flags := p[1], p[2]
	if method < ForkInPlace || method > ForkClone || flags < 0 || flags > 0xFF {
		m.RaiseError(amx.ErrParams)
		return 0
	}
	ctx := e.top(m)
	if ctx == nil {
		m.RaiseError(amx.ErrInvState)
		return 0
	}
	registry.SetContextExtra(ctx, &forkRequest{result: p[3], error: p[4]})
	return signal.Raise(m, signal.Fork, uint32(method)|uint32(flags)<<8)
}

// forkCommitNative is fork_commit(value, keep).
func (e *Engine) forkCommitNative(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 2) {
		return 0
	}
	if fs, ok := forkOf(e.top(m)); ok {
		fs.value = p[1]
	}
	return signal.Raise(m, signal.ForkCommit, uint32(p[2]&1))
}

// forkEndNative is fork_end(value).
func (e *Engine) forkEndNative(m *amx.Machine, p []amx.Cell) amx.Cell {
	if !arity(m, p, 1) {
		return 0
	}
	if fs, ok := forkOf(e.top(m)); ok {
		fs.value = p[1]
	}
	return signal.Raise(m, signal.ForkEnd, 0)
}

func boolCell(b bool) amx.Cell {
	if b {
		return 1
	}
	return 0
}
