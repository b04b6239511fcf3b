package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/tasks"
	"github.com/wippyai/amx-runtime/threads"
)

func (c *call) await(id amx.Cell) step {
	t, ok := c.e.pool.Get(id)
	if !ok {
		c.misuse("await of unknown task")
		return c.proceed(0)
	}
	switch {
	case t.Completed():
		return c.proceed(t.Result())
	case t.Faulted():
		return c.abort(t.Code())
	}
	snap := c.capture()
	r := suspended(snap)
	t.Wait(snap)
	return r
}

func (c *call) waitTicks(n int) step {
	return c.wait(func(t *tasks.Task) { c.e.ticks.Add(t, n) })
}

func (c *call) waitMs(ms int) step {
	return c.wait(func(t *tasks.Task) { c.e.timers.Add(t, time.Duration(ms)*time.Millisecond) })
}

// wait schedules a fresh task and suspends on it. A task resolved by the
// scheduling itself continues synchronously.
func (c *call) wait(schedule func(*tasks.Task)) step {
	t, err := c.e.pool.New()
	if err != nil {
		Logger().Warn("wait failed", zap.Error(err))
		return c.abort(amx.ErrMemory)
	}
	defer c.e.pool.Release(t)

	schedule(t)
	if !t.Pending() {
		return c.proceed(t.Result())
	}
	snap := c.capture()
	r := suspended(snap)
	t.Wait(snap)
	return r
}

func (c *call) detach(flags uint32) step {
	snap := c.capture()
	r := suspended(snap)
	w := c.e.bridge.Detach(c.inst, snap, threads.Flags(flags))
	debugf("detached %v as worker %v", c.m, w.ID())
	return r
}
