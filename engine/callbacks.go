package engine

import (
	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/errors"
)

// CallbackBase is the first deferred-callback entry index. Indices at or
// below it name a callback registered with RegisterCallback; the public it
// names is looked up when the index is executed.
const CallbackBase = -0x10000

// IsCallback reports whether index is a deferred-callback entry.
func IsCallback(index int) bool { return index <= CallbackBase }

// RegisterCallback returns an entry index that runs public on m when
// executed. The public does not have to exist yet.
func (e *Engine) RegisterCallback(m *amx.Machine, public string) (int, error) {
	inst, ok := e.registry.Find(m)
	if !ok {
		return 0, errors.NotFound(errors.PhaseExec, "machine", m.String())
	}
	st := stateOf(inst)
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, name := range st.callbacks {
		if name == public {
			return CallbackBase - i, nil
		}
	}
	st.callbacks = append(st.callbacks, public)
	return CallbackBase - (len(st.callbacks) - 1), nil
}

func (e *Engine) resolveCallback(m *amx.Machine, index int) (int, amx.Error) {
	inst, ok := e.registry.Find(m)
	if !ok {
		return 0, amx.ErrNotFound
	}
	st := stateOf(inst)
	st.mu.Lock()
	i := CallbackBase - index
	var name string
	if i >= 0 && i < len(st.callbacks) {
		name = st.callbacks[i]
	}
	st.mu.Unlock()
	if name == "" {
		return 0, amx.ErrNotFound
	}
	idx, ok := m.FindPublic(name)
	if !ok {
		return 0, amx.ErrNotFound
	}
	return idx, amx.ErrNone
}
