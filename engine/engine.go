package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/errors"
	"github.com/wippyai/amx-runtime/guard"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/reset"
	"github.com/wippyai/amx-runtime/resource"
	"github.com/wippyai/amx-runtime/sched"
	"github.com/wippyai/amx-runtime/tasks"
	"github.com/wippyai/amx-runtime/threads"
)

// Engine adds suspension, tasks, forks and worker threads to the machines
// bound to it. All methods except those documented otherwise belong to the
// main goroutine.
type Engine struct {
	cfg      Config
	registry *registry.Registry
	pool     *tasks.Pool
	ticks    *sched.Ticks
	timers   *sched.Timers
	bridge   *threads.Bridge
	clock    sched.Clock
	natives   map[string]amx.Native
	mainOnly  map[string]bool
	observers []resource.Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock of the timer scheduler.
func WithClock(c sched.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRegistry shares a machine registry with other components.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithObserver reports task and scratch var lifecycle events to o. Events
// may arrive from worker goroutines.
func WithObserver(o resource.Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the logger of the engine and the packages it drives.
func WithLogger(l *zap.Logger) Option {
	return func(*Engine) {
		SetLogger(l)
		guard.SetLogger(l)
		tasks.SetLogger(l)
		sched.SetLogger(l)
		threads.SetLogger(l)
		registry.SetLogger(l)
	}
}

// New creates an engine. A nil cfg means DefaultConfig.
func New(cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{cfg: *cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = registry.New()
	}
	e.pool = tasks.NewPool(e.cfg.MaxTasks)
	e.pool.SetResumer(e)
	e.observers = append([]resource.Observer{lifecycleLog{}}, e.observers...)
	for _, o := range e.observers {
		e.pool.Subscribe(o)
	}
	e.ticks = sched.NewTicks(e.pool)
	e.timers = sched.NewTimers(e.pool, e.clock)
	e.natives = e.scriptNatives()
	e.mainOnly = make(map[string]bool, len(e.natives))
	for name := range e.natives {
		e.mainOnly[name] = !threadNative(name)
	}
	for _, name := range e.cfg.Threads.MainOnly {
		e.mainOnly[name] = true
	}
	e.bridge = threads.NewBridge(threads.Options{
		Attacher: threads.AttacherFunc(e.attach),
		MainOnly: func(m *amx.Machine, index amx.Cell) bool {
			return e.mainOnly[m.NativeName(index)]
		},
	})
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Registry returns the machine registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Pool returns the task pool.
func (e *Engine) Pool() *tasks.Pool { return e.pool }

// Ticks returns the tick scheduler.
func (e *Engine) Ticks() *sched.Ticks { return e.ticks }

// Timers returns the timer scheduler.
func (e *Engine) Timers() *sched.Timers { return e.timers }

// Bridge returns the thread bridge.
func (e *Engine) Bridge() *threads.Bridge { return e.bridge }

// Natives returns the script natives the engine provides.
func (e *Engine) Natives() map[string]amx.Native {
	out := make(map[string]amx.Native, len(e.natives))
	for k, v := range e.natives {
		out[k] = v
	}
	return out
}

// Bind installs the engine on m: the exec, callback and debug hooks and the
// script natives. Host natives should be registered before Bind when
// StrictNatives is set. The init public runs once per instance.
func (e *Engine) Bind(m *amx.Machine) (*registry.Instance, error) {
	m.RegisterAll(e.natives)
	if e.cfg.StrictNatives {
		if unbound := m.Unbound(); len(unbound) > 0 {
			return nil, errors.NewUnboundNativesError(unbound)
		}
	}
	inst := e.registry.Get(m)
	e.install(m)
	st := stateOf(inst)
	for _, o := range e.observers {
		st.vars.Subscribe(o)
	}

	if err := e.runOnce(m, e.cfg.InitPublic, inst.BeginInit); err != nil {
		return inst, err
	}
	Logger().Debug("machine bound", zap.Stringer("machine", m))
	return inst, nil
}

func (e *Engine) install(m *amx.Machine) {
	m.SetHooks(amx.Hooks{
		Exec:     e.exec,
		Callback: e.bridge.Callback(e.callNative),
		Debug:    e.bridge.Debug(nil),
	})
}

func (e *Engine) runOnce(m *amx.Machine, public string, gate func() bool) error {
	if public == "" {
		return nil
	}
	idx, ok := m.FindPublic(public)
	if !ok || !gate() {
		return nil
	}
	var ret amx.Cell
	if st := m.Exec(&ret, idx); st != amx.ErrNone {
		return errors.InitFailed(errors.PhaseExec, public, st)
	}
	return nil
}

// Unbind runs the exit public, waits for the machine's workers and removes
// its instance. Pending continuations of m are dropped.
func (e *Engine) Unbind(m *amx.Machine) error {
	inst, ok := e.registry.Find(m)
	if !ok {
		return errors.NotFound(errors.PhaseExec, "machine", m.String())
	}
	err := e.runOnce(m, e.cfg.ExitPublic, inst.BeginFinalize)

	e.bridge.Pause(m)
	e.registry.Remove(m)
	m.SetHooks(amx.Hooks{})
	e.bridge.Resume(m)
	e.bridge.Forget(m)
	Logger().Debug("machine unbound", zap.Stringer("machine", m))
	return err
}

// Call runs public with args through the engine. A call that suspends
// returns the value set with yield.
func (e *Engine) Call(m *amx.Machine, public string, args ...amx.Cell) (amx.Cell, error) {
	idx, ok := m.FindPublic(public)
	if !ok {
		return 0, errors.NotFound(errors.PhaseExec, "public", public)
	}
	for i := len(args) - 1; i >= 0; i-- {
		if err := m.Push(args[i]); err != nil {
			return 0, errors.Wrap(errors.PhaseExec, errors.KindExhausted, err, "push arguments")
		}
	}
	var ret amx.Cell
	if st := m.Exec(&ret, idx); st != amx.ErrNone {
		return ret, e.callError(m, public, st)
	}
	return ret, nil
}

func (e *Engine) callError(m *amx.Machine, public string, st amx.Error) error {
	b := errors.New(errors.PhaseExec, errors.KindFault).
		Detail("%s: %v", public, st).
		Code(uint32(st))
	if st == amx.ErrNative {
		if inst, ok := e.registry.Find(m); ok {
			if f := stateOf(inst).fault(); f != nil {
				return f
			}
		}
	}
	return b.Cause(st).Build()
}

// ProcessTick drives one host tick: the tick scheduler, due timers and the
// thread bridge. It returns the number of events handled.
func (e *Engine) ProcessTick() int {
	n := e.ticks.Tick()
	n += e.timers.Drain()
	n += e.bridge.Sync()
	return n
}

// Resume continues a suspended call with value as the result of the native
// that suspended it. A fault aborts the continuation instead. It reports
// false when the machine is gone.
func (e *Engine) Resume(s *reset.Snapshot, value amx.Cell, fault amx.Error) bool {
	inst, ok := s.Instance()
	if !ok {
		Logger().Debug("continuation dropped",
			zap.Error(errors.DeadTarget(errors.PhaseTask, "machine unbound")))
		s.Discard()
		return false
	}
	if fault != amx.ErrNone {
		Logger().Warn("continuation aborted",
			zap.Stringer("machine", inst.Machine()),
			zap.NamedError("fault", fault))
		s.Discard()
		return true
	}
	s.SetPRI(value)
	e.resume(inst, s, false)
	return true
}

func (e *Engine) attach(s *reset.Snapshot, replay bool) bool {
	inst, ok := s.Instance()
	if !ok {
		return false
	}
	if !replay {
		// thread_attach returns 0 on the main goroutine.
		s.SetPRI(0)
	}
	e.resume(inst, s, replay)
	return true
}

func (e *Engine) resume(inst *registry.Instance, s *reset.Snapshot, replay bool) {
	m := inst.Machine()
	var ret amx.Cell
	out := e.run(m, &ret, amx.ExecCont, execOptions{restore: s, replay: replay})
	if out.status != amx.ErrNone {
		Logger().Warn("resumed call failed",
			zap.Stringer("machine", m),
			zap.Error(out.status))
	}
}

// ResumeParked continues every call of m parked by wait_forever, in the
// order they parked. It returns the number resumed.
func (e *Engine) ResumeParked(m *amx.Machine, value amx.Cell) int {
	inst, ok := e.registry.Find(m)
	if !ok {
		return 0
	}
	parked := stateOf(inst).takeParked()
	for _, s := range parked {
		e.Resume(s, value, amx.ErrNone)
	}
	return len(parked)
}

// Parked returns the number of calls of m parked by wait_forever.
func (e *Engine) Parked(m *amx.Machine) int {
	inst, ok := e.registry.Find(m)
	if !ok {
		return 0
	}
	return stateOf(inst).parkedLen()
}

// LastFault returns the last native fault recorded on m.
func (e *Engine) LastFault(m *amx.Machine) error {
	inst, ok := e.registry.Find(m)
	if !ok {
		return nil
	}
	if f := stateOf(inst).fault(); f != nil {
		return f
	}
	return nil
}

// Close drops every pending task and scheduler entry, joins the workers of
// every machine and removes all instances.
func (e *Engine) Close() {
	e.ticks.Clear()
	e.timers.Clear()
	var ms []*amx.Machine
	e.registry.Each(func(inst *registry.Instance) bool {
		ms = append(ms, inst.Machine())
		return true
	})
	for _, m := range ms {
		e.bridge.Pause(m)
		e.registry.Remove(m)
		m.SetHooks(amx.Hooks{})
		e.bridge.Resume(m)
	}
	// Joined workers are collected here; their attach requests find no
	// instance and are dropped.
	e.bridge.Sync()
	for _, m := range ms {
		e.bridge.Forget(m)
	}
	e.pool.Close()
}

// lifecycleLog traces handle lifecycle at debug level.
type lifecycleLog struct{}

func (lifecycleLog) OnResourceEvent(ev resource.Event) {
	kind := zap.Skip()
	if ev.Kind != 0 {
		kind = zap.Stringer("kind", ev.Kind)
	}
	Logger().Debug("handle "+ev.Type.String(),
		zap.Uint32("handle", uint32(ev.Handle)),
		kind,
		zap.Uint32("refs", ev.Refs))
}
