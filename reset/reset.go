package reset

import (
	"encoding/binary"
	"weak"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/registry"
)

// Granularity selects how much of the heap or stack a snapshot copies.
type Granularity int

const (
	// None copies nothing.
	None Granularity = iota
	// Frame copies the current call frame (stack) or the current call's
	// heap blocks.
	Frame
	// Context copies everything above the machine's reset pointers, i.e. the
	// state of the innermost RawExec.
	Context
	// Full copies the whole live heap or stack.
	Full
)

func (g Granularity) String() string {
	switch g {
	case None:
		return "none"
	case Frame:
		return "frame"
	case Context:
		return "context"
	case Full:
		return "full"
	}
	return "unknown"
}

// region is an owned copy of machine memory starting at offset.
type region struct {
	data   []byte
	offset amx.Cell
}

func (r region) end() amx.Cell { return r.offset + amx.Cell(len(r.data)) }

// Snapshot is a captured machine state. It references its instance weakly
// and never points into machine memory.
type Snapshot struct {
	inst  weak.Pointer[registry.Instance]
	ctx   *registry.Context
	heap  region
	stack region
	regs  amx.Registers
}

// Capture records the registers of inst's machine and copies heap and stack
// at the requested granularities. With captureContext the innermost
// execution context moves into the snapshot and an empty placeholder is
// left in its place.
func Capture(inst *registry.Instance, captureContext bool, heap, stack Granularity) *Snapshot {
	m := inst.Machine()
	s := &Snapshot{
		inst: weak.Make(inst),
		regs: m.Registers(),
	}
	lo, hi := HeapRange(m, heap)
	s.heap = copyRegion(m, lo, hi)
	lo, hi = StackRange(m, stack)
	s.stack = copyRegion(m, lo, hi)
	if captureContext {
		s.ctx = inst.TakeTop()
	}
	return s
}

func copyRegion(m *amx.Machine, lo, hi amx.Cell) region {
	if hi <= lo {
		return region{offset: lo}
	}
	data := make([]byte, hi-lo)
	copy(data, m.Memory()[lo:hi])
	return region{data: data, offset: lo}
}

// HeapRange returns the heap bytes [lo, hi) covered by granularity g.
func HeapRange(m *amx.Machine, g Granularity) (lo, hi amx.Cell) {
	r := m.Registers()
	switch g {
	case Frame, Context:
		lo = r.ResetHea
	case Full:
		lo = m.HLW()
	default:
		return 0, 0
	}
	return clamp(m, lo, r.HEA)
}

// StackRange returns the stack bytes [lo, hi) covered by granularity g. A
// frame capture without a usable frame pointer falls back to Context.
func StackRange(m *amx.Machine, g Granularity) (lo, hi amx.Cell) {
	r := m.Registers()
	lo = r.STK
	switch g {
	case Frame:
		if end, ok := frameEnd(m, r); ok {
			return clamp(m, lo, end)
		}
		return clamp(m, lo, r.ResetStk)
	case Context:
		return clamp(m, lo, r.ResetStk)
	case Full:
		return clamp(m, lo, m.STP())
	}
	return 0, 0
}

// frameEnd is FRM plus the saved frame, return address, argument count and
// the arguments themselves.
func frameEnd(m *amx.Machine, r amx.Registers) (amx.Cell, bool) {
	if r.FRM < r.STK || r.FRM+3*amx.CellSize > m.STP() {
		return 0, false
	}
	argBytes := amx.Cell(binary.LittleEndian.Uint32(m.Memory()[r.FRM+2*amx.CellSize:]))
	if argBytes < 0 {
		return 0, false
	}
	return r.FRM + 3*amx.CellSize + argBytes, true
}

func clamp(m *amx.Machine, lo, hi amx.Cell) (amx.Cell, amx.Cell) {
	size := amx.Cell(len(m.Memory()))
	lo = max(lo, 0)
	hi = min(hi, size)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Instance returns the instance the snapshot belongs to, if it is still
// alive and valid.
func (s *Snapshot) Instance() (*registry.Instance, bool) {
	inst := s.inst.Value()
	if inst == nil || !inst.Valid() {
		return nil, false
	}
	return inst, true
}

// Registers returns the captured registers.
func (s *Snapshot) Registers() amx.Registers { return s.regs }

// SetPRI changes the PRI value that Restore writes.
func (s *Snapshot) SetPRI(v amx.Cell) { s.regs.PRI = v }

// Context returns the captured context, or nil.
func (s *Snapshot) Context() *registry.Context { return s.ctx }

// HeapCopy returns the offset and length of the copied heap bytes.
func (s *Snapshot) HeapCopy() (amx.Cell, int) { return s.heap.offset, len(s.heap.data) }

// StackCopy returns the offset and length of the copied stack bytes.
func (s *Snapshot) StackCopy() (amx.Cell, int) { return s.stack.offset, len(s.stack.data) }

// Restore writes the registers and memory back and installs the captured
// context in place of the innermost one. It returns false, writing nothing,
// when the machine was unloaded. The context moves into the instance, so a
// second Restore only writes registers and memory.
func (s *Snapshot) Restore() bool {
	inst, ok := s.restore()
	if !ok {
		return false
	}
	if s.ctx != nil {
		ctx := s.ctx
		s.ctx = nil
		if old := inst.ReplaceTop(ctx); old != nil {
			old.Close()
		}
	}
	return true
}

// RestoreRegistersOnly is Restore without touching the context stack.
func (s *Snapshot) RestoreRegistersOnly() bool {
	_, ok := s.restore()
	return ok
}

func (s *Snapshot) restore() (*registry.Instance, bool) {
	inst, ok := s.Instance()
	if !ok {
		return nil, false
	}
	m := inst.Machine()
	mem := m.Memory()
	if s.heap.end() > amx.Cell(len(mem)) || s.stack.end() > amx.Cell(len(mem)) {
		return nil, false
	}
	m.SetRegisters(s.regs)
	copy(mem[s.heap.offset:], s.heap.data)
	copy(mem[s.stack.offset:], s.stack.data)
	return inst, true
}

// Discard releases the captured context of a snapshot that will never be
// restored.
func (s *Snapshot) Discard() {
	if s.ctx != nil {
		s.ctx.Close()
		s.ctx = nil
	}
}
