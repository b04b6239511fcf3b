package threads

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/reset"
	"github.com/wippyai/amx-runtime/signal"
)

// Flags select how a worker synchronizes with the main goroutine. The zero
// value is explicit mode: only main-only natives and thread_sync hand off.
type Flags uint32

const (
	// SyncAuto hands every native call to the main goroutine.
	SyncAuto Flags = 1 << iota
	// SyncInterrupt lets the main goroutine park the worker at safepoints
	// instead of waiting for it to finish.
	SyncInterrupt
)

func (f Flags) String() string {
	var parts []string
	if f&SyncAuto != 0 {
		parts = append(parts, "auto")
	}
	if f&SyncInterrupt != 0 {
		parts = append(parts, "interrupt")
	}
	if len(parts) == 0 {
		return "explicit"
	}
	return strings.Join(parts, "|")
}

// State is the lifecycle state of a worker.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateHandoff
	StateParked
	StateDone
)

var stateNames = [...]string{"starting", "running", "handoff", "parked", "done"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Worker runs a detached continuation on its own goroutine.
type Worker struct {
	bridge  *Bridge
	inst    *registry.Instance
	machine *amx.Machine
	lock    *machineLock
	start   *reset.Snapshot
	done    chan struct{}
	outer   amx.Registers

	// Written by the worker before done is closed.
	attach *reset.Snapshot
	ctx    *registry.Context
	result amx.Cell
	err    amx.Error
	replay bool

	flags atomic.Uint32
	state atomic.Int32
	id    uuid.UUID
}

// ID returns the worker's identity.
func (w *Worker) ID() uuid.UUID { return w.id }

// Machine returns the machine the worker runs.
func (w *Worker) Machine() *amx.Machine { return w.machine }

// Flags returns the current synchronization flags.
func (w *Worker) Flags() Flags { return Flags(w.flags.Load()) }

// State returns the lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Done is closed once the worker goroutine exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Result returns the value and status of a worker that ran to completion.
// It is only meaningful after Done is closed.
func (w *Worker) Result() (amx.Cell, amx.Error) { return w.result, w.err }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

func (w *Worker) log() *zap.Logger {
	return Logger().With(zap.Stringer("worker", w.id), zap.Stringer("machine", w.machine))
}

func (w *Worker) run() {
	defer close(w.done)
	w.lock.acquire(w)
	w.setState(StateRunning)
	w.outer = w.machine.Registers()

	w.inst.PushContext(amx.ExecCont)
	if !w.start.Restore() {
		w.log().Debug("worker target gone")
		w.ctx = w.inst.PopContext()
		w.exit()
		return
	}

	for {
		var ret amx.Cell
		e := w.machine.RawExec(&ret, amx.ExecCont)
		if e != amx.ErrSleep {
			w.result, w.err = ret, e
			w.machine.SetRegisters(w.outer)
			w.ctx = w.inst.PopContext()
			if e != amx.ErrNone {
				w.log().Warn("worker call failed", zap.Error(e))
			}
			break
		}
		s, ok := signal.Decode(w.machine.PRI())
		if ok && s.Reason == signal.Sync {
			if w.Flags()&SyncAuto == 0 {
				w.handoff(nil)
			}
			w.machine.SetPRI(0)
			continue
		}
		if ok && s.Reason == signal.Detach {
			w.flags.Store(s.Payload)
			w.log().Debug("worker flags changed", zap.Stringer("flags", w.Flags()))
			w.machine.SetPRI(0)
			continue
		}
		w.suspend(!ok || s.Reason != signal.Attach)
		break
	}
	w.exit()
}

func (w *Worker) exit() {
	w.lock.release()
	w.setState(StateDone)
	w.bridge.finished(w)
}

// suspend captures the sleeping call for the main goroutine. With replay the
// main goroutine dispatches the pending signal instead of continuing.
func (w *Worker) suspend(replay bool) {
	w.attach = reset.Capture(w.inst, true, reset.Context, reset.Context)
	w.replay = replay
	w.machine.SetRegisters(w.outer)
	if ctx := w.inst.PopContext(); ctx != nil {
		ctx.Close()
	}
}

// handoff releases the machine, runs fn on the main goroutine and takes the
// machine back.
func (w *Worker) handoff(fn func()) {
	w.setState(StateHandoff)
	w.lock.release()
	w.bridge.queueAndWait(w.machine, fn)
	w.lock.acquire(w)
	w.setState(StateRunning)
}

// safepoint parks an interruptible worker while the main goroutine pauses
// the machine.
func (w *Worker) safepoint() {
	if w.Flags()&SyncInterrupt == 0 {
		return
	}
	resume := w.lock.parkRequested()
	if resume == nil {
		return
	}
	w.setState(StateParked)
	w.lock.release()
	<-resume
	w.lock.acquire(w)
	w.setState(StateRunning)
}

func (w *Worker) callback(next amx.Callback, m *amx.Machine, index amx.Cell, result *amx.Cell, params []amx.Cell) amx.Error {
	w.safepoint()
	if w.Flags()&SyncAuto == 0 && !w.bridge.mainOnly(m, index) {
		return next(m, index, result, params)
	}
	var e amx.Error
	w.handoff(func() { e = next(m, index, result, params) })
	return e
}
