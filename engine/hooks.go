package engine

import (
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/errors"
	"github.com/wippyai/amx-runtime/guard"
	"github.com/wippyai/amx-runtime/resource"
)

// NativeHook intercepts a native. next runs the hooked function, which may
// itself be another hook.
type NativeHook func(m *amx.Machine, params []amx.Cell, next amx.Native) amx.Cell

type hookTable struct {
	mu    sync.Mutex
	table *resource.Table
	names map[string][]resource.Handle
	orig  map[string]amx.Native
}

func newHookTable(limit int) *hookTable {
	return &hookTable{
		table: resource.NewTable(limit),
		names: make(map[string][]resource.Handle),
		orig:  make(map[string]amx.Native),
	}
}

func (e *Engine) hooksOf(st *machineState) *hookTable {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.hooks == nil {
		st.hooks = newHookTable(e.cfg.MaxNativeHooks)
	}
	return st.hooks
}

// HookNative installs hook in front of native name on m. Hooks installed
// later run first. The returned handle removes the hook again. A full hook
// table fails without changing anything.
func (e *Engine) HookNative(m *amx.Machine, name string, hook NativeHook) (resource.Handle, error) {
	inst, ok := e.registry.Find(m)
	if !ok {
		return 0, errors.NotFound(errors.PhaseNative, "machine", m.String())
	}
	idx, ok := m.FindNative(name)
	if !ok {
		return 0, errors.NotFound(errors.PhaseNative, "native", name)
	}
	fn, ok := m.Native(idx)
	if !ok {
		return 0, errors.New(errors.PhaseNative, errors.KindUnbound).
			Native(name).
			Detail("native %q has no function to hook", name).
			Build()
	}

	ht := e.hooksOf(stateOf(inst))
	h, err := ht.table.Insert(resource.KindNativeHook, hook)
	if err != nil {
		Logger().Warn("native hook table full",
			zap.String("native", name),
			zap.Int("limit", e.cfg.MaxNativeHooks))
		return 0, errors.New(errors.PhaseNative, errors.KindExhausted).
			Native(name).
			Detail("native hook table full").
			Cause(err).
			Build()
	}

	ht.mu.Lock()
	first := len(ht.names[name]) == 0
	ht.names[name] = append(ht.names[name], h)
	if first {
		ht.orig[name] = fn
	}
	ht.mu.Unlock()

	if first {
		m.Register(name, func(m *amx.Machine, params []amx.Cell) amx.Cell {
			return ht.call(name, m, params)
		})
	}
	return h, nil
}

// UnhookNative removes a hook installed with HookNative.
func (e *Engine) UnhookNative(m *amx.Machine, h resource.Handle) bool {
	inst, ok := e.registry.Find(m)
	if !ok {
		return false
	}
	ht := e.hooksOf(stateOf(inst))

	ht.mu.Lock()
	var (
		name  string
		found bool
	)
	for n, hs := range ht.names {
		for i, x := range hs {
			if x == h {
				ht.names[n] = append(hs[:i], hs[i+1:]...)
				name, found = n, true
				break
			}
		}
		if found {
			break
		}
	}
	var restore amx.Native
	if found && len(ht.names[name]) == 0 {
		restore = ht.orig[name]
		delete(ht.names, name)
		delete(ht.orig, name)
	}
	ht.mu.Unlock()

	if !found {
		return false
	}
	_, _ = ht.table.Remove(h, resource.KindNativeHook)
	if restore != nil {
		m.Register(name, restore)
	}
	return true
}

func (t *hookTable) call(name string, m *amx.Machine, params []amx.Cell) amx.Cell {
	t.mu.Lock()
	hs := append([]resource.Handle(nil), t.names[name]...)
	next := t.orig[name]
	t.mu.Unlock()

	for _, h := range hs {
		v, ok := t.table.Get(h, resource.KindNativeHook)
		if !ok {
			continue
		}
		hook, inner := v.(NativeHook), next
		next = func(m *amx.Machine, p []amx.Cell) amx.Cell {
			return hook(m, p, inner)
		}
	}
	if next == nil {
		m.RaiseError(amx.ErrNotFound)
		return 0
	}
	return next(m, params)
}

// callNative is the guarded native dispatch installed as the machine
// callback. Panics and raised faults become ErrNative and are recorded as
// the instance's last fault.
func (e *Engine) callNative(m *amx.Machine, index amx.Cell, result *amx.Cell, params []amx.Cell) amx.Error {
	name := m.NativeName(index)
	var st amx.Error
	if f := guard.Call(name, func() { st = amx.DefaultCallback(m, index, result, params) }); f != nil {
		m.RaiseError(amx.ErrNone)
		m.TakeFault()
		e.recordFault(m, f)
		return amx.ErrNative
	}

	switch st {
	case amx.ErrNative:
		if err := m.TakeFault(); err != nil {
			var f *errors.Error
			if !stderrors.As(err, &f) {
				f = errors.New(errors.PhaseNative, errors.KindFault).
					Native(name).
					Detail("%v", err).
					Cause(err).
					Build()
			}
			e.recordFault(m, f)
		}
	case amx.ErrNotFound:
		Logger().Warn("native not bound", zap.String("native", name))
	}
	return st
}

func (e *Engine) recordFault(m *amx.Machine, f *errors.Error) {
	Logger().Error("native fault",
		zap.String("native", f.Native),
		zap.Uint32("code", f.Code),
		zap.Bool("corrupted", f.Corrupted),
		zap.Error(f))
	if inst, ok := e.registry.Find(m); ok {
		stateOf(inst).setFault(f)
	}
}
