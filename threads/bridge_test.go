package threads

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/asm"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/reset"
	"github.com/wippyai/amx-runtime/signal"
)

type attachCall struct {
	snap   *reset.Snapshot
	replay bool
}

type fixture struct {
	bridge   *Bridge
	m        *amx.Machine
	inst     *registry.Instance
	attached []attachCall
	onWorker atomic.Int32
	onMain   atomic.Int32
}

func newFixture(t *testing.T, b *asm.Builder, opts Options) *fixture {
	t.Helper()
	prog, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	m, err := amx.New(prog)
	if err != nil {
		t.Fatalf("amx.New failed: %v", err)
	}
	f := &fixture{m: m, inst: registry.New().Get(m)}
	if opts.Attacher == nil {
		opts.Attacher = AttacherFunc(func(s *reset.Snapshot, replay bool) bool {
			f.attached = append(f.attached, attachCall{s, replay})
			return true
		})
	}
	f.bridge = NewBridge(opts)
	m.RegisterAll(map[string]amx.Native{
		"detach": func(m *amx.Machine, p []amx.Cell) amx.Cell {
			return signal.Raise(m, signal.Detach, uint32(p[1]))
		},
		"attach": func(m *amx.Machine, _ []amx.Cell) amx.Cell {
			return signal.Raise(m, signal.Attach, 0)
		},
		"sync": func(m *amx.Machine, _ []amx.Cell) amx.Cell {
			return signal.Raise(m, signal.Sync, 0)
		},
		"wait": func(m *amx.Machine, p []amx.Cell) amx.Cell {
			return signal.Raise(m, signal.WaitTicks, uint32(p[1]))
		},
		"where": func(m *amx.Machine, _ []amx.Cell) amx.Cell {
			if f.bridge.Holder(m) != nil {
				f.onWorker.Add(1)
			} else {
				f.onMain.Add(1)
			}
			return 1
		},
	})
	m.SetHooks(amx.Hooks{
		Callback: f.bridge.Callback(amx.DefaultCallback),
		Debug:    f.bridge.Debug(nil),
	})
	return f
}

// detach runs public until its first native detaches and hands the call to
// a worker, the way the engine does.
func (f *fixture) detach(t *testing.T, public string, flags Flags) (*Worker, func() bool) {
	t.Helper()
	idx, ok := f.m.FindPublic(public)
	if !ok {
		t.Fatalf("public %q not found", public)
	}
	if err := f.m.Push(amx.Cell(flags)); err != nil {
		t.Fatal(err)
	}

	f.bridge.Pause(f.m)
	defer f.bridge.Resume(f.m)

	closed := false
	f.inst.PushContext(idx).AddGuard(func() { closed = true })
	var ret amx.Cell
	if e := f.m.RawExec(&ret, idx); e != amx.ErrSleep {
		t.Fatalf("RawExec = %v, want sleep", e)
	}
	if s, ok := signal.Decode(f.m.PRI()); !ok || s.Reason != signal.Detach {
		t.Fatalf("PRI does not hold a detach signal")
	}
	snap := reset.Capture(f.inst, true, reset.Context, reset.Context)
	snap.SetPRI(0)
	f.m.Unwind()
	f.inst.PopContext().Close()
	return f.bridge.Detach(f.inst, snap, flags), func() bool { return closed }
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.bridge.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

// script builds `work(flags)`: detach with flags, call where, return 42.
func script(extra func(b *asm.Builder)) *asm.Builder {
	b := asm.New().
		Public("work").
		Op(amx.OpProc).
		Op(amx.OpPushS, 12).
		Sysreq("detach", 1).
		CallNative("where")
	if extra != nil {
		extra(b)
	}
	return b.Op(amx.OpConstPri, 42).Op(amx.OpRetn)
}

func TestWorkerRunsToCompletion(t *testing.T) {
	f := newFixture(t, script(nil), Options{})
	w, closed := f.detach(t, "work", 0)
	if w.ID().String() == "" {
		t.Error("worker has no id")
	}

	f.wait(t)
	if ret, e := w.Result(); e != amx.ErrNone || ret != 42 {
		t.Errorf("Result = (%d, %v), want (42, none)", ret, e)
	}
	if w.State() != StateDone {
		t.Errorf("State = %v", w.State())
	}
	if f.onWorker.Load() != 1 || f.onMain.Load() != 0 {
		t.Errorf("native ran on worker %d, main %d", f.onWorker.Load(), f.onMain.Load())
	}
	if !closed() {
		t.Error("captured context not closed after the worker finished")
	}
	if f.inst.Depth() != 0 {
		t.Errorf("context depth = %d", f.inst.Depth())
	}
}

func TestHandoff(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		opts  Options
	}{
		{"auto", SyncAuto, Options{}},
		{"main only", 0, Options{MainOnly: func(m *amx.Machine, idx amx.Cell) bool {
			return m.NativeName(idx) == "where"
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, script(nil), tt.opts)
			w, _ := f.detach(t, "work", tt.flags)
			eventually(t, func() bool { return w.State() == StateHandoff })
			if f.onMain.Load() != 0 {
				t.Fatal("handed-off native ran before Sync")
			}
			f.wait(t)
			if f.onMain.Load() != 1 || f.onWorker.Load() != 0 {
				t.Errorf("native ran on worker %d, main %d", f.onWorker.Load(), f.onMain.Load())
			}
		})
	}
}

func TestAttach(t *testing.T) {
	f := newFixture(t, script(func(b *asm.Builder) {
		b.CallNative("attach").CallNative("where")
	}), Options{})
	f.detach(t, "work", 0)
	f.wait(t)

	if len(f.attached) != 1 || f.attached[0].replay {
		t.Fatalf("attached = %+v", f.attached)
	}
	if f.inst.Depth() != 0 {
		t.Fatalf("worker left %d contexts", f.inst.Depth())
	}

	snap := f.attached[0].snap
	f.inst.PushContext(0)
	if !snap.Restore() {
		t.Fatal("Restore failed")
	}
	f.m.SetPRI(0)
	var ret amx.Cell
	if e := f.m.RawExec(&ret, amx.ExecCont); e != amx.ErrNone || ret != 42 {
		t.Fatalf("continued call = (%d, %v)", ret, e)
	}
	if f.onWorker.Load() != 1 || f.onMain.Load() != 1 {
		t.Errorf("native ran on worker %d, main %d", f.onWorker.Load(), f.onMain.Load())
	}
}

func TestOtherSleepReplays(t *testing.T) {
	f := newFixture(t, script(func(b *asm.Builder) {
		b.CallNative("wait", 3)
	}), Options{})
	f.detach(t, "work", 0)
	f.wait(t)

	if len(f.attached) != 1 || !f.attached[0].replay {
		t.Fatalf("attached = %+v", f.attached)
	}
	s, ok := signal.Decode(f.attached[0].snap.Registers().PRI)
	if !ok || s.Reason != signal.WaitTicks || s.Payload != 3 {
		t.Errorf("replayed signal = %v %v", s, ok)
	}
}

func TestExplicitSyncBarrier(t *testing.T) {
	f := newFixture(t, script(func(b *asm.Builder) {
		b.CallNative("sync")
	}), Options{})
	w, _ := f.detach(t, "work", 0)
	eventually(t, func() bool { return w.State() == StateHandoff })

	select {
	case <-w.Done():
		t.Fatal("worker passed the sync point without Sync")
	default:
	}
	f.wait(t)
	if ret, e := w.Result(); e != amx.ErrNone || ret != 42 {
		t.Errorf("Result = (%d, %v)", ret, e)
	}
}

func TestAutoSyncSkipsBarrier(t *testing.T) {
	f := newFixture(t, script(func(b *asm.Builder) {
		b.CallNative("sync")
	}), Options{})
	w, _ := f.detach(t, "work", SyncAuto)
	f.wait(t)
	if _, e := w.Result(); e != amx.ErrNone {
		t.Errorf("Result error = %v", e)
	}
}

func TestDetachChangesFlags(t *testing.T) {
	f := newFixture(t, script(func(b *asm.Builder) {
		b.CallNative("detach", amx.Cell(SyncAuto)).CallNative("where")
	}), Options{})
	w, _ := f.detach(t, "work", 0)
	f.wait(t)
	if w.Flags() != SyncAuto {
		t.Errorf("Flags = %v", w.Flags())
	}
	if f.onWorker.Load() != 1 || f.onMain.Load() != 1 {
		t.Errorf("native ran on worker %d, main %d", f.onWorker.Load(), f.onMain.Load())
	}
}

func TestPauseJoinsWorker(t *testing.T) {
	f := newFixture(t, script(func(b *asm.Builder) {
		b.CallNative("sync")
	}), Options{})
	w, _ := f.detach(t, "work", 0)

	f.bridge.Pause(f.m)
	select {
	case <-w.Done():
	default:
		t.Fatal("Pause returned before the worker finished")
	}
	if !f.bridge.Paused(f.m) {
		t.Error("machine not paused")
	}
	f.bridge.Resume(f.m)
	f.wait(t)
}

func TestPauseParksInterruptible(t *testing.T) {
	b := asm.New()
	stop := b.Global("stop", 0)
	b.Public("spin").
		Op(amx.OpProc).
		Op(amx.OpPushS, 12).
		Sysreq("detach", 1).
		Label("loop").
		Op(amx.OpBreak).
		Op(amx.OpLoadPri, stop).
		Ref(amx.OpJzer, "loop").
		Op(amx.OpConstPri, 7).
		Op(amx.OpRetn)
	f := newFixture(t, b, Options{})
	w, _ := f.detach(t, "spin", SyncInterrupt)
	eventually(t, func() bool { return w.State() == StateRunning })

	f.bridge.Pause(f.m)
	f.bridge.Pause(f.m)
	if w.State() != StateParked {
		t.Fatalf("State = %v, want parked", w.State())
	}
	if err := f.m.WriteCell(stop, 1); err != nil {
		t.Fatal(err)
	}
	f.bridge.Resume(f.m)
	if w.State() != StateParked {
		t.Fatal("inner Resume released the worker")
	}
	f.bridge.Resume(f.m)

	f.wait(t)
	if ret, e := w.Result(); e != amx.ErrNone || ret != 7 {
		t.Errorf("Result = (%d, %v)", ret, e)
	}
}

func TestQueueAndWait(t *testing.T) {
	b := NewBridge(Options{})
	var ran atomic.Bool
	done := make(chan struct{})
	go func() {
		b.QueueAndWait(func() { ran.Store(true) })
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		b.Sync()
		select {
		case <-done:
			if !ran.Load() {
				t.Fatal("fn did not run")
			}
			return
		case <-deadline:
			t.Fatal("QueueAndWait never returned")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestFlagsString(t *testing.T) {
	tests := map[Flags]string{
		0:                        "explicit",
		SyncAuto:                 "auto",
		SyncAuto | SyncInterrupt: "auto|interrupt",
	}
	for f, want := range tests {
		if f.String() != want {
			t.Errorf("%d.String() = %q, want %q", uint32(f), f.String(), want)
		}
	}
}
