package engine

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/reset"
)

// Fork methods.
const (
	// ForkInPlace continues on the same machine and restores only the
	// control registers afterwards.
	ForkInPlace = 0
	// ForkRollback continues on the same machine and rolls back heap, stack
	// and optionally the data section unless the run commits with keep.
	ForkRollback = 1
	// ForkClone continues on a cloned machine.
	ForkClone = 2
)

// ForkCopyData is the fork flag that backs up (method 1) or copies
// (method 2) the data section.
const ForkCopyData = 1

// forkRequest carries the output addresses of fork_start to the dispatcher.
type forkRequest struct {
	result amx.Cell
	error  amx.Cell
}

func (*forkRequest) Close() {}

// forkState is the context extra of a forked run.
type forkState struct {
	method   int
	copyData bool
	cloned   bool
	parent   *amx.Machine

	value     amx.Cell
	committed bool
	keep      bool
	ended     bool
	// orphan is set once the fork call returned while the forked run was
	// still suspended. fork_end then only ends the continuation.
	orphan bool
}

func (*forkState) Close() {}

func forkOf(ctx *registry.Context) (*forkState, bool) {
	if ctx == nil {
		return nil, false
	}
	return registry.FindContextExtra[*forkState](ctx)
}

func (c *call) fork(payload uint32) step {
	method := int(payload & 0xFF)
	flags := payload >> 8

	var req *forkRequest
	if ctx := c.inst.Top(); ctx != nil {
		req, _ = registry.TakeContextExtra[*forkRequest](ctx)
	}
	if req == nil {
		c.misuse("fork signal without fork_start")
		return c.proceed(0)
	}
	fs := &forkState{method: method, copyData: flags&ForkCopyData != 0}

	switch method {
	case ForkInPlace:
		return c.forkInPlace(fs, req)
	case ForkRollback:
		return c.forkRollback(fs, req)
	case ForkClone:
		return c.forkClone(fs, req)
	}
	c.misuse("unknown fork method")
	return c.proceed(0)
}

// nested runs the forked continuation on m with fork_start returning 1.
func (c *call) nested(m *amx.Machine, fs *forkState) outcome {
	m.SetPRI(1)
	var ret amx.Cell
	return c.e.run(m, &ret, amx.ExecCont, execOptions{forked: m == c.m, fork: fs})
}

func (c *call) forkInPlace(fs *forkState, req *forkRequest) step {
	saved := c.m.Registers()
	out := c.nested(c.m, fs)
	if fs.committed && fs.keep {
		return c.proceed(0)
	}

	r := c.m.Registers()
	r.CIP, r.FRM, r.STK, r.HEA = saved.CIP, saved.FRM, saved.STK, saved.HEA
	c.m.SetRegisters(r)
	c.report(req, fs, out)
	return c.proceed(0)
}

func (c *call) forkRollback(fs *forkState, req *forkRequest) step {
	backup := reset.Capture(c.inst, false, reset.Full, reset.Full)
	var data []byte
	if fs.copyData {
		data = bytes.Clone(c.m.Data())
	}

	out := c.nested(c.m, fs)
	if fs.committed && fs.keep {
		return c.proceed(0)
	}

	backup.Restore()
	if data != nil {
		copy(c.m.Data(), data)
	}
	c.report(req, fs, out)
	return c.proceed(0)
}

func (c *call) forkClone(fs *forkState, req *forkRequest) step {
	clone, err := c.m.Clone(fs.copyData)
	if err != nil {
		Logger().Warn("fork clone failed",
			zap.Stringer("machine", c.m),
			zap.Error(err))
		return c.proceed(0)
	}
	child := c.e.registry.Clone(c.inst, clone)
	registry.SetExtra(child, &forkedChild{parent: c.m, clone: clone})
	c.e.install(clone)
	fs.parent = c.m

	out := c.nested(clone, fs)
	c.report(req, fs, out)

	if out.suspended {
		Logger().Debug("fork clone left running", zap.Stringer("clone", clone))
	} else {
		c.e.registry.Remove(clone)
		c.e.bridge.Forget(clone)
	}
	return c.proceed(0)
}

// report writes the outcome of a forked run to the fork_start outputs.
func (c *call) report(req *forkRequest, fs *forkState, out outcome) {
	result, code := out.value, out.status
	switch {
	case fs.committed || fs.ended:
		result, code = fs.value, amx.ErrNone
	case out.suspended:
		code = amx.ErrSleep
		fs.orphan = true
	}
	if err := c.m.WriteCell(req.result, result); err != nil {
		c.misuse("fork result address out of range")
	}
	if err := c.m.WriteCell(req.error, amx.Cell(code)); err != nil {
		c.misuse("fork error address out of range")
	}
}

func (c *call) forkCommit(keep bool) step {
	fs, ok := forkOf(c.inst.Top())
	if !ok {
		c.misuse("fork_commit outside a fork")
		return c.proceed(0)
	}
	if fs.orphan {
		return c.finish(fs.value)
	}
	fs.committed, fs.keep = true, keep

	if fs.parent != nil {
		if !keep {
			return c.finish(fs.value)
		}
		if fs.copyData {
			copy(fs.parent.Data(), c.m.Data())
		}
		return c.proceed(0)
	}
	return step{kind: stepComplete, value: fs.value, inPlace: true}
}

func (c *call) forkEnd() step {
	fs, ok := forkOf(c.inst.Top())
	if !ok {
		c.misuse("fork_end outside a fork")
		return c.proceed(0)
	}
	if fs.orphan {
		return c.finish(fs.value)
	}
	fs.ended = true
	if fs.parent != nil {
		return c.finish(fs.value)
	}
	return step{kind: stepComplete, value: fs.value, inPlace: true}
}
