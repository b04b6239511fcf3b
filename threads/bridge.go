package threads

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/reset"
)

// Attacher continues a worker's suspended call on the main goroutine. With
// replay the sleep signal left in PRI is dispatched instead of continuing
// the call. It reports false when the machine is gone.
type Attacher interface {
	Attach(s *reset.Snapshot, replay bool) bool
}

// AttacherFunc adapts a function to Attacher.
type AttacherFunc func(s *reset.Snapshot, replay bool) bool

// Attach calls f.
func (f AttacherFunc) Attach(s *reset.Snapshot, replay bool) bool { return f(s, replay) }

// Options configure a Bridge.
type Options struct {
	// Attacher resumes attach requests. Without one they are discarded.
	Attacher Attacher
	// MainOnly reports natives that must always run on the main goroutine.
	MainOnly func(m *amx.Machine, index amx.Cell) bool
}

type request struct {
	machine *amx.Machine
	fn      func()
	done    chan struct{}
}

// Bridge moves script execution between the main goroutine and workers.
//
// Pause, Resume and Sync must be called from the main goroutine, the one
// that runs scripts and resolves tasks. QueueAndWait must not be.
type Bridge struct {
	opts     Options
	locks    map[*amx.Machine]*machineLock
	workers  map[*amx.Machine][]*Worker
	queue    []*request
	exited   []*Worker
	wake     chan struct{}
	mu       sync.Mutex
}

// NewBridge creates a bridge.
func NewBridge(opts Options) *Bridge {
	return &Bridge{
		opts:    opts,
		locks:   make(map[*amx.Machine]*machineLock),
		workers: make(map[*amx.Machine][]*Worker),
		wake:    make(chan struct{}, 1),
	}
}

// SetAttacher replaces the attacher. Call it before any worker starts.
func (b *Bridge) SetAttacher(a Attacher) {
	b.mu.Lock()
	b.opts.Attacher = a
	b.mu.Unlock()
}

func (b *Bridge) attacher() Attacher {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts.Attacher
}

func (b *Bridge) mainOnly(m *amx.Machine, index amx.Cell) bool {
	return b.opts.MainOnly != nil && b.opts.MainOnly(m, index)
}

func (b *Bridge) lockFor(m *amx.Machine) *machineLock {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[m]
	if !ok {
		l = newMachineLock()
		b.locks[m] = l
	}
	return l
}

func (b *Bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Detach starts a worker that continues s on its own goroutine. The worker
// waits for the machine until the main goroutine resumes it.
func (b *Bridge) Detach(inst *registry.Instance, s *reset.Snapshot, flags Flags) *Worker {
	m := inst.Machine()
	w := &Worker{
		bridge:  b,
		inst:    inst,
		machine: m,
		lock:    b.lockFor(m),
		start:   s,
		done:    make(chan struct{}),
		id:      uuid.New(),
	}
	w.flags.Store(uint32(flags))

	b.mu.Lock()
	b.workers[m] = append(b.workers[m], w)
	b.mu.Unlock()

	w.log().Debug("worker detached", zap.Stringer("flags", flags))
	go w.run()
	return w
}

// Workers returns the workers of m that Sync has not collected yet.
func (b *Bridge) Workers(m *amx.Machine) []*Worker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Worker(nil), b.workers[m]...)
}

// Len returns the number of uncollected workers.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ws := range b.workers {
		n += len(ws)
	}
	return n
}

// Holder returns the worker currently owning m, or nil.
func (b *Bridge) Holder(m *amx.Machine) *Worker {
	b.mu.Lock()
	l, ok := b.locks[m]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return l.holder.Load()
}

// Callback wraps next so natives called by a worker follow its
// synchronization flags. Every native call is a safepoint.
func (b *Bridge) Callback(next amx.Callback) amx.Callback {
	return func(m *amx.Machine, index amx.Cell, result *amx.Cell, params []amx.Cell) amx.Error {
		if w := b.Holder(m); w != nil {
			return w.callback(next, m, index, result, params)
		}
		return next(m, index, result, params)
	}
}

// Debug wraps next so BREAK instructions run by a worker are safepoints.
// next may be nil.
func (b *Bridge) Debug(next amx.DebugHook) amx.DebugHook {
	return func(m *amx.Machine) amx.Error {
		if w := b.Holder(m); w != nil {
			w.safepoint()
		}
		if next != nil {
			return next(m)
		}
		return amx.ErrNone
	}
}

// Pause takes m for the main goroutine. Workers that cannot be interrupted
// are joined, servicing their hand-offs meanwhile; interruptible ones park
// at their next safepoint. Pauses nest.
func (b *Bridge) Pause(m *amx.Machine) {
	l := b.lockFor(m)
	if l.depth > 0 {
		l.depth++
		return
	}
	for _, w := range b.Workers(m) {
		if w.Flags()&SyncInterrupt != 0 {
			l.requestPark()
			continue
		}
		b.join(w)
	}
	b.acquireMain(l)
	l.depth = 1
}

// Resume undoes one Pause. The outermost Resume releases parked workers.
func (b *Bridge) Resume(m *amx.Machine) {
	l := b.lockFor(m)
	if l.depth == 0 {
		Logger().Warn("resume without pause", zap.Stringer("machine", m))
		return
	}
	l.depth--
	if l.depth > 0 {
		return
	}
	l.clearPark()
	l.release()
}

// Paused reports whether the main goroutine holds m.
func (b *Bridge) Paused(m *amx.Machine) bool {
	return b.lockFor(m).depth > 0
}

func (b *Bridge) join(w *Worker) {
	for {
		select {
		case <-w.done:
			return
		case <-b.wake:
			b.service()
		}
	}
}

func (b *Bridge) acquireMain(l *machineLock) {
	for {
		select {
		case l.token <- struct{}{}:
			l.holder.Store(nil)
			return
		case <-b.wake:
			b.service()
		}
	}
}

// QueueAndWait runs fn on the main goroutine during its next Sync and
// waits for it to return.
func (b *Bridge) QueueAndWait(fn func()) {
	b.queueAndWait(nil, fn)
}

func (b *Bridge) queueAndWait(m *amx.Machine, fn func()) {
	req := &request{machine: m, fn: fn, done: make(chan struct{})}
	b.mu.Lock()
	b.queue = append(b.queue, req)
	b.mu.Unlock()
	b.signal()
	<-req.done
}

func (b *Bridge) service() int {
	n := 0
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return n
		}
		req := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.run(req)
		n++
	}
}

// run executes a request while holding its machine.
func (b *Bridge) run(req *request) {
	defer close(req.done)
	if req.fn == nil {
		return
	}
	if req.machine == nil {
		req.fn()
		return
	}
	l := b.lockFor(req.machine)
	if l.depth > 0 {
		req.fn()
		return
	}
	b.acquireMain(l)
	l.depth = 1
	defer func() {
		l.depth = 0
		l.release()
	}()
	req.fn()
}

func (b *Bridge) finished(w *Worker) {
	b.mu.Lock()
	b.exited = append(b.exited, w)
	b.mu.Unlock()
	b.signal()
}

// Sync services queued hand-offs, resumes attach requests and collects
// finished workers. It returns the number of events handled.
func (b *Bridge) Sync() int {
	n := b.service()

	b.mu.Lock()
	done := b.exited
	b.exited = nil
	for _, w := range done {
		b.removeLocked(w)
	}
	b.mu.Unlock()

	for _, w := range done {
		n++
		if w.attach == nil {
			if w.ctx != nil {
				w.ctx.Close()
			}
			w.log().Debug("worker finished", zap.Int32("result", int32(w.result)))
			continue
		}
		a := b.attacher()
		if a == nil || !a.Attach(w.attach, w.replay) {
			w.attach.Discard()
			w.log().Debug("attach dropped")
		}
	}
	return n
}

func (b *Bridge) removeLocked(w *Worker) {
	ws := b.workers[w.machine]
	for i, x := range ws {
		if x == w {
			ws = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(b.workers, w.machine)
		return
	}
	b.workers[w.machine] = ws
}

// Forget drops the lock of a machine that has no workers left.
func (b *Bridge) Forget(m *amx.Machine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.workers[m]) == 0 {
		if l, ok := b.locks[m]; ok && l.depth == 0 {
			delete(b.locks, m)
		}
	}
}

// Wait runs Sync until every worker has been collected or ctx ends.
func (b *Bridge) Wait(ctx context.Context) error {
	for {
		b.Sync()
		if b.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.wake:
		}
	}
}
