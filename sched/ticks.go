package sched

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/tasks"
)

type tickEntry struct {
	task      *tasks.Task
	remaining int
}

// Ticks resolves tasks after a number of host ticks.
type Ticks struct {
	pool    *tasks.Pool
	entries []tickEntry
	mu      sync.Mutex
}

// NewTicks creates a tick scheduler for tasks of p.
func NewTicks(p *tasks.Pool) *Ticks {
	return &Ticks{pool: p}
}

// Add resolves t with its own id after n ticks. A non-positive n resolves
// it before Add returns.
func (s *Ticks) Add(t *tasks.Task, n int) {
	if n <= 0 {
		t.Complete(t.ID())
		return
	}
	s.pool.Acquire(t)
	s.mu.Lock()
	s.entries = append(s.entries, tickEntry{task: t, remaining: n})
	s.mu.Unlock()
}

// Tick advances every entry by one tick and resolves the expired ones in
// registration order. Entries added while resolving wait for the next tick.
func (s *Ticks) Tick() int {
	s.mu.Lock()
	for i := range s.entries {
		s.entries[i].remaining--
	}
	s.mu.Unlock()

	fired := 0
	for {
		t, ok := s.popExpired()
		if !ok {
			return fired
		}
		Logger().Debug("tick expired", zap.Int32("task", int32(t.ID())))
		t.Complete(t.ID())
		s.pool.Release(t)
		fired++
	}
}

func (s *Ticks) popExpired() (*tasks.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.remaining <= 0 {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return e.task, true
		}
	}
	return nil, false
}

// Len returns the number of scheduled tasks.
func (s *Ticks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry without resolving it.
func (s *Ticks) Clear() {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()
	for _, e := range entries {
		s.pool.Release(e.task)
	}
}
