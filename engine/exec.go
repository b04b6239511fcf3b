package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/reset"
	"github.com/wippyai/amx-runtime/signal"
)

type execOptions struct {
	// restore is applied after the context push; the call continues it.
	restore *reset.Snapshot
	// replay dispatches the signal already in PRI of restore before running.
	replay bool
	// forked marks the in-place continuation of a fork on the same machine.
	forked bool
	// fork is attached to the new context of a forked run.
	fork *forkState
}

type stepKind uint8

const (
	stepContinue stepKind = iota
	stepSuspend
	stepComplete
)

// step is what a signal handler decides.
type step struct {
	kind   stepKind
	status amx.Error
	value  amx.Cell
	// inPlace completes without touching the registers. Forked runs end
	// this way so the fork dispatch decides what stands.
	inPlace bool
}

type outcome struct {
	status    amx.Error
	value     amx.Cell
	suspended bool
	inPlace   bool
}

// call is one pass of the dispatch loop on a machine.
type call struct {
	e     *Engine
	m     *amx.Machine
	inst  *registry.Instance
	outer amx.Registers
	opts  execOptions
}

// exec is the machine's entry hook.
func (e *Engine) exec(m *amx.Machine, retval *amx.Cell, index int) amx.Error {
	return e.run(m, retval, index, execOptions{}).status
}

func (e *Engine) run(m *amx.Machine, retval *amx.Cell, index int, opts execOptions) outcome {
	if IsCallback(index) {
		idx, st := e.resolveCallback(m, index)
		if st != amx.ErrNone {
			Logger().Warn("deferred callback unresolved",
				zap.Stringer("machine", m),
				zap.Int("index", index))
			return outcome{status: st}
		}
		index = idx
	}
	inst := e.registry.Get(m)

	// A worker running a nested call already owns the machine.
	if !opts.forked && e.bridge.Holder(m) == nil {
		e.bridge.Pause(m)
		defer e.bridge.Resume(m)
	}

	c := &call{e: e, m: m, inst: inst, outer: m.Registers(), opts: opts}

	var prior *reset.Snapshot
	if opts.restore != nil && inst.Depth() > 0 {
		prior = reset.Capture(inst, false, reset.Full, reset.Full)
	}

	inst.PushContext(index)
	if opts.restore != nil && !opts.restore.Restore() {
		if ctx := inst.PopContext(); ctx != nil {
			ctx.Close()
		}
		return outcome{status: amx.ErrInit}
	}
	if opts.fork != nil {
		_, opts.fork.cloned = registry.FindExtra[*forkedChild](inst)
		registry.SetContextExtra(inst.Top(), opts.fork)
	}

	out := c.loop(retval, index)

	if ctx := inst.PopContext(); ctx != nil {
		ctx.Close()
	}
	switch {
	case prior != nil:
		prior.Restore()
	case opts.restore != nil:
		m.SetRegisters(c.outer)
	}
	return out
}

func (c *call) loop(retval *amx.Cell, index int) outcome {
	pending := c.opts.replay
	for {
		if !pending {
			var ret amx.Cell
			st := c.m.RawExec(&ret, index)
			if st != amx.ErrSleep {
				*retval = ret
				return outcome{status: st, value: ret}
			}
		}
		pending = false
		index = amx.ExecCont

		s, ok := signal.Decode(c.m.PRI())
		if !ok {
			// Plain sleep: the host continues it with ExecCont.
			*retval = c.m.PRI()
			return outcome{status: amx.ErrSleep, value: *retval}
		}
		debugf("dispatch %v on %v", s, c.m)

		r := c.dispatch(s)
		switch r.kind {
		case stepContinue:
			continue
		case stepSuspend:
			*retval = r.value
			return outcome{status: amx.ErrNone, value: r.value, suspended: true}
		default:
			*retval = r.value
			return outcome{status: r.status, value: r.value, inPlace: r.inPlace}
		}
	}
}

func (c *call) dispatch(s signal.Suspension) step {
	switch s.Reason {
	case signal.Await:
		return c.await(amx.Cell(s.Payload))
	case signal.WaitTicks:
		return c.waitTicks(int(s.Payload))
	case signal.WaitMs:
		return c.waitMs(int(s.Payload))
	case signal.WaitForever:
		snap := c.capture()
		stateOf(c.inst).park(snap)
		return suspended(snap)
	case signal.Detach:
		return c.detach(s.Payload)
	case signal.Attach, signal.Sync:
		c.misuse(s.Reason.String() + " outside a worker")
		return c.proceed(0)
	case signal.Fork:
		return c.fork(s.Payload)
	case signal.ForkCommit:
		return c.forkCommit(s.Payload&1 != 0)
	case signal.ForkEnd:
		return c.forkEnd()
	case signal.AllocVar:
		return c.allocVar(int(s.Payload), false)
	case signal.AllocVarZeroed:
		return c.allocVar(int(s.Payload), true)
	case signal.FreeVar:
		return c.freeVar(amx.Cell(s.Payload))
	}
	return c.proceed(0)
}

// proceed clears the signal and keeps running with v as the native's
// result.
func (c *call) proceed(v amx.Cell) step {
	c.m.SetPRI(v)
	return step{kind: stepContinue}
}

// abort ends the call with st.
func (c *call) abort(st amx.Error) step {
	c.unwind()
	return step{kind: stepComplete, status: st}
}

// finish ends the call as if it returned v.
func (c *call) finish(v amx.Cell) step {
	c.unwind()
	return step{kind: stepComplete, value: v}
}

// unwind drops the frames of the running call and reinstates the reset
// bookkeeping of the caller.
func (c *call) unwind() {
	c.m.Unwind()
	r := c.m.Registers()
	r.ResetStk, r.ResetHea = c.outer.ResetStk, c.outer.ResetHea
	c.m.SetRegisters(r)
}

// capture moves the sleeping call into a snapshot and unwinds it.
func (c *call) capture() *reset.Snapshot {
	snap := reset.Capture(c.inst, true, reset.Context, reset.Context)
	snap.SetPRI(0)
	c.unwind()
	return snap
}

func suspended(snap *reset.Snapshot) step {
	var v amx.Cell
	if ctx := snap.Context(); ctx != nil {
		v = ctx.Result
	}
	return step{kind: stepSuspend, value: v}
}

func (c *call) misuse(what string) {
	Logger().Warn("protocol misuse",
		zap.String("what", what),
		zap.Stringer("machine", c.m))
}
