package engine

import (
	"sync"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/errors"
	"github.com/wippyai/amx-runtime/registry"
	"github.com/wippyai/amx-runtime/reset"
	"github.com/wippyai/amx-runtime/resource"
)

// machineState is the engine's extra on every bound instance.
type machineState struct {
	mu        sync.Mutex
	callbacks []string
	parked    []*reset.Snapshot
	lastFault *errors.Error
	vars      *resource.Table
	hooks     *hookTable
}

func stateOf(inst *registry.Instance) *machineState {
	return registry.ExtraOf(inst, func(*registry.Instance) *machineState {
		return &machineState{vars: resource.NewTable(0)}
	})
}

func (s *machineState) Close() {
	s.mu.Lock()
	parked := s.parked
	s.parked = nil
	s.mu.Unlock()
	for _, p := range parked {
		p.Discard()
	}
	s.vars.Clear()
	_ = s.vars.Close()
}

// CloneExtra carries the deferred callback names over to a forked clone.
// Parked calls and scratch vars stay with the parent.
func (s *machineState) CloneExtra(*registry.Instance) registry.Extra {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &machineState{
		callbacks: append([]string(nil), s.callbacks...),
		vars:      resource.NewTable(0),
	}
}

func (s *machineState) park(snap *reset.Snapshot) {
	s.mu.Lock()
	s.parked = append(s.parked, snap)
	s.mu.Unlock()
}

func (s *machineState) takeParked() []*reset.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.parked
	s.parked = nil
	return out
}

func (s *machineState) parkedLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parked)
}

func (s *machineState) setFault(f *errors.Error) {
	s.mu.Lock()
	s.lastFault = f
	s.mu.Unlock()
}

func (s *machineState) fault() *errors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFault
}

func (s *machineState) faultCode() amx.Cell {
	if f := s.fault(); f != nil {
		return amx.Cell(f.Code)
	}
	return 0
}

// forkedChild marks the instance of a machine cloned by fork method 2.
type forkedChild struct {
	parent *amx.Machine
	clone  *amx.Machine
}

func (c *forkedChild) Close() {
	c.clone.SetHooks(amx.Hooks{})
}
