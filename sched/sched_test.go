package sched

import (
	"testing"
	"time"

	"github.com/wippyai/amx-runtime/tasks"
)

func newTask(t *testing.T, p *tasks.Pool) *tasks.Task {
	t.Helper()
	task, err := p.New()
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestTicksZeroResolvesImmediately(t *testing.T) {
	for _, n := range []int{0, -3} {
		p := tasks.NewPool(0)
		s := NewTicks(p)
		task := newTask(t, p)
		s.Add(task, n)
		if !task.Completed() || task.Result() != task.ID() {
			t.Errorf("Add(%d): state %v result %d", n, task.State(), task.Result())
		}
		if s.Len() != 0 {
			t.Errorf("Add(%d) entered the scheduler", n)
		}
	}
}

func TestTicksCountdown(t *testing.T) {
	p := tasks.NewPool(0)
	s := NewTicks(p)
	a, b := newTask(t, p), newTask(t, p)
	s.Add(a, 3)
	s.Add(b, 1)

	want := []struct {
		fired int
		a, b  bool
	}{
		{1, false, true},
		{0, false, true},
		{1, true, true},
		{0, true, true},
	}
	for i, w := range want {
		if got := s.Tick(); got != w.fired {
			t.Errorf("tick %d fired %d, want %d", i+1, got, w.fired)
		}
		if a.Completed() != w.a || b.Completed() != w.b {
			t.Errorf("tick %d: a=%v b=%v", i+1, a.Completed(), b.Completed())
		}
	}
	if a.Result() != a.ID() {
		t.Errorf("result = %d, want own id %d", a.Result(), a.ID())
	}
}

func TestTicksReentrantAdd(t *testing.T) {
	p := tasks.NewPool(0)
	s := NewTicks(p)
	first := newTask(t, p)
	second := newTask(t, p)
	first.OnDone(func(*tasks.Task) { s.Add(second, 1) })
	s.Add(first, 1)

	if s.Tick() != 1 || second.Completed() {
		t.Fatal("entry added during a drain fired in the same drain")
	}
	if s.Tick() != 1 || !second.Completed() {
		t.Fatal("re-added entry did not fire on the next tick")
	}
}

func TestTicksHoldReference(t *testing.T) {
	p := tasks.NewPool(0)
	s := NewTicks(p)
	task := newTask(t, p)
	s.Add(task, 1)
	p.Release(task)
	if _, ok := p.Get(task.ID()); !ok {
		t.Fatal("scheduled task collected")
	}
	s.Tick()
	if p.Len() != 0 {
		t.Error("task not collected after firing")
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestTimers(t *testing.T) {
	p := tasks.NewPool(0)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	s := NewTimers(p, clock.Now)

	late, early := newTask(t, p), newTask(t, p)
	s.Add(late, 50*time.Millisecond)
	s.Add(early, 10*time.Millisecond)

	if next, ok := s.Next(); !ok || !next.Equal(clock.now.Add(10*time.Millisecond)) {
		t.Errorf("Next = %v %v", next, ok)
	}
	if s.Drain() != 0 {
		t.Fatal("nothing should expire yet")
	}

	clock.now = clock.now.Add(10 * time.Millisecond)
	if s.Drain() != 1 || !early.Completed() || late.Completed() {
		t.Fatal("only the early timer should fire")
	}
	clock.now = clock.now.Add(time.Second)
	if s.Drain() != 1 || late.Result() != late.ID() {
		t.Fatal("late timer did not resolve with its own id")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestTimersOrderTies(t *testing.T) {
	p := tasks.NewPool(0)
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewTimers(p, clock.Now)

	var order []int
	for i := 0; i < 3; i++ {
		task := newTask(t, p)
		task.OnDone(func(*tasks.Task) { order = append(order, i) })
		s.Add(task, time.Millisecond)
	}
	clock.now = clock.now.Add(time.Millisecond)
	s.Drain()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("order = %v", order)
	}
}

func TestTimersNonPositive(t *testing.T) {
	p := tasks.NewPool(0)
	s := NewTimers(p, nil)
	task := newTask(t, p)
	s.Add(task, 0)
	if !task.Completed() || s.Len() != 0 {
		t.Error("zero interval should resolve immediately")
	}
}

func TestClear(t *testing.T) {
	p := tasks.NewPool(0)
	ticks := NewTicks(p)
	timers := NewTimers(p, nil)
	a, b := newTask(t, p), newTask(t, p)
	ticks.Add(a, 5)
	timers.Add(b, time.Hour)
	p.Release(a)
	p.Release(b)

	ticks.Clear()
	timers.Clear()
	if p.Len() != 0 {
		t.Errorf("pool still holds %d tasks", p.Len())
	}
	if a.Completed() || b.Completed() {
		t.Error("Clear resolved tasks")
	}
}
