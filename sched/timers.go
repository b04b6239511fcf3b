package sched

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/tasks"
)

// Clock returns the current time.
type Clock func() time.Time

type timerEntry struct {
	at   time.Time
	task *tasks.Task
}

// Timers resolves tasks once a wall-clock deadline passed.
type Timers struct {
	pool    *tasks.Pool
	now     Clock
	entries []timerEntry // sorted by deadline, ties in insertion order
	mu      sync.Mutex
}

// NewTimers creates a timer scheduler. A nil clock uses time.Now.
func NewTimers(p *tasks.Pool, clock Clock) *Timers {
	if clock == nil {
		clock = time.Now
	}
	return &Timers{pool: p, now: clock}
}

// Add resolves t with its own id once d elapsed. A non-positive d resolves
// it before Add returns.
func (s *Timers) Add(t *tasks.Task, d time.Duration) {
	if d <= 0 {
		t.Complete(t.ID())
		return
	}
	s.pool.Acquire(t)
	s.mu.Lock()
	e := timerEntry{at: s.now().Add(d), task: t}
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].at.After(e.at) })
	s.entries = append(s.entries, timerEntry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = e
	s.mu.Unlock()
}

// Drain resolves every task whose deadline passed, earliest first.
func (s *Timers) Drain() int {
	now := s.now()
	fired := 0
	for {
		t, ok := s.popExpired(now)
		if !ok {
			return fired
		}
		Logger().Debug("timer expired", zap.Int32("task", int32(t.ID())))
		t.Complete(t.ID())
		s.pool.Release(t)
		fired++
	}
}

func (s *Timers) popExpired(now time.Time) (*tasks.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 || s.entries[0].at.After(now) {
		return nil, false
	}
	t := s.entries[0].task
	s.entries = s.entries[1:]
	return t, true
}

// Next returns the earliest deadline.
func (s *Timers) Next() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return time.Time{}, false
	}
	return s.entries[0].at, true
}

// Len returns the number of scheduled tasks.
func (s *Timers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry without resolving it.
func (s *Timers) Clear() {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()
	for _, e := range entries {
		s.pool.Release(e.task)
	}
}
