package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/resource"
)

// scratchVar is a heap block allocated for a script by var_alloc.
type scratchVar struct {
	addr  amx.Cell
	cells int
}

func (c *call) allocVar(cells int, zero bool) step {
	addr, err := c.m.Allot(cells)
	if err != nil {
		Logger().Warn("var_alloc failed",
			zap.Int("cells", cells),
			zap.Error(err))
		return c.abort(amx.ErrMemory)
	}
	if zero {
		mem := c.m.Memory()
		clear(mem[addr : addr+amx.Cell(cells*amx.CellSize)])
	}

	vars := stateOf(c.inst).vars
	v := &scratchVar{addr: addr, cells: cells}
	h, err := vars.Insert(resource.KindScratchVar, v)
	if err != nil {
		c.m.Release(addr)
		return c.abort(amx.ErrMemory)
	}
	// The heap itself is reclaimed when the call unwinds; the guard only
	// forgets the handle.
	if ctx := c.inst.Top(); ctx != nil {
		ctx.AddGuard(func() {
			if cur, ok := vars.Get(h, resource.KindScratchVar); ok && cur == v {
				_, _ = vars.ForceRemove(h, resource.KindScratchVar)
			}
		})
	}
	return c.proceed(addr)
}

func (c *call) freeVar(addr amx.Cell) step {
	vars := stateOf(c.inst).vars
	var (
		handle resource.Handle
		found  *scratchVar
	)
	vars.Each(resource.KindScratchVar, func(h resource.Handle, val any) bool {
		if v := val.(*scratchVar); v.addr == addr {
			handle, found = h, v
			return false
		}
		return true
	})
	if found == nil {
		c.misuse("var_free of unknown address")
		return c.proceed(0)
	}
	_, _ = vars.ForceRemove(handle, resource.KindScratchVar)

	// Only the topmost block can go back to the heap now.
	if addr+amx.Cell(found.cells*amx.CellSize) == c.m.Registers().HEA {
		c.m.Release(addr)
	}
	return c.proceed(1)
}

// ScratchVars returns the number of live scratch vars of m.
func (e *Engine) ScratchVars(m *amx.Machine) int {
	inst, ok := e.registry.Find(m)
	if !ok {
		return 0
	}
	n := 0
	stateOf(inst).vars.Each(resource.KindScratchVar, func(resource.Handle, any) bool {
		n++
		return true
	})
	return n
}
