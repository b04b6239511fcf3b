package reset

import (
	"bytes"
	"testing"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/registry"
)

func testInstance(t *testing.T) (*registry.Registry, *registry.Instance) {
	t.Helper()
	m, err := amx.New(&amx.Program{
		Code:      []amx.Cell{amx.Cell(amx.OpHalt), 0},
		Data:      []byte{1, 2, 3, 4, 5, 6, 7, 8},
		StackHeap: 1024,
		Main:      -1,
	})
	if err != nil {
		t.Fatalf("amx.New failed: %v", err)
	}
	r := registry.New()
	return r, r.Get(m)
}

// populate fills some heap and builds one call frame with two arguments.
func populate(t *testing.T, m *amx.Machine) {
	t.Helper()
	addr, err := m.Allot(4)
	if err != nil {
		t.Fatal(err)
	}
	for i := amx.Cell(0); i < 4; i++ {
		if err := m.WriteCell(addr+i*amx.CellSize, 100+i); err != nil {
			t.Fatal(err)
		}
	}
	for _, v := range []amx.Cell{7, 8, 2 * amx.CellSize, 0, 0} {
		if err := m.Push(v); err != nil {
			t.Fatal(err)
		}
	}
	r := m.Registers()
	r.FRM = r.STK
	r.PRI, r.ALT, r.CIP = 11, 22, 33
	m.SetRegisters(r)
}

func scribble(m *amx.Machine) {
	mem := m.Memory()
	for i := range mem {
		mem[i] = 0xEE
	}
	m.SetRegisters(amx.Registers{PRI: -1, ALT: -1, FRM: -1, STK: -1, HEA: -1, CIP: -1})
}

func TestRoundTrip(t *testing.T) {
	grains := []Granularity{None, Frame, Context, Full}
	for _, heap := range grains {
		for _, stack := range grains {
			t.Run(heap.String()+"/"+stack.String(), func(t *testing.T) {
				_, inst := testInstance(t)
				m := inst.Machine()
				populate(t, m)

				before := append([]byte(nil), m.Memory()...)
				regs := m.Registers()
				hlo, hhi := HeapRange(m, heap)
				slo, shi := StackRange(m, stack)

				s := Capture(inst, false, heap, stack)
				scribble(m)
				if !s.Restore() {
					t.Fatal("Restore returned false")
				}
				if m.Registers() != regs {
					t.Fatalf("registers = %+v, want %+v", m.Registers(), regs)
				}
				mem := m.Memory()
				if !bytes.Equal(mem[hlo:hhi], before[hlo:hhi]) {
					t.Error("heap range not restored")
				}
				if !bytes.Equal(mem[slo:shi], before[slo:shi]) {
					t.Error("stack range not restored")
				}
			})
		}
	}
}

func TestRanges(t *testing.T) {
	_, inst := testInstance(t)
	m := inst.Machine()
	populate(t, m)
	r := m.Registers()

	tests := []struct {
		name   string
		fn     func(*amx.Machine, Granularity) (amx.Cell, amx.Cell)
		g      Granularity
		lo, hi amx.Cell
	}{
		{"heap none", HeapRange, None, 0, 0},
		{"heap frame", HeapRange, Frame, r.ResetHea, r.HEA},
		{"heap full", HeapRange, Full, m.HLW(), r.HEA},
		{"stack none", StackRange, None, 0, 0},
		{"stack frame", StackRange, Frame, r.STK, r.FRM + 5*amx.CellSize},
		{"stack context", StackRange, Context, r.STK, r.ResetStk},
		{"stack full", StackRange, Full, r.STK, m.STP()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := tt.fn(m, tt.g)
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("range = [%d, %d), want [%d, %d)", lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

func TestFrameFallsBackToContext(t *testing.T) {
	_, inst := testInstance(t)
	m := inst.Machine()
	if err := m.Push(1); err != nil {
		t.Fatal(err)
	}
	r := m.Registers()
	r.FRM = 0
	m.SetRegisters(r)

	lo, hi := StackRange(m, Frame)
	clo, chi := StackRange(m, Context)
	if lo != clo || hi != chi {
		t.Errorf("frame range [%d, %d), context [%d, %d)", lo, hi, clo, chi)
	}
}

func TestDeadInstance(t *testing.T) {
	reg, inst := testInstance(t)
	m := inst.Machine()
	populate(t, m)
	s := Capture(inst, false, Full, Full)

	scribble(m)
	reg.Remove(m)
	if s.Restore() || s.RestoreRegistersOnly() {
		t.Fatal("restore into a removed machine should fail")
	}
	for _, b := range m.Memory() {
		if b != 0xEE {
			t.Fatal("restore into a removed machine wrote memory")
		}
	}
	if m.Registers().PRI != -1 {
		t.Error("restore into a removed machine wrote registers")
	}
}

func TestContextCapture(t *testing.T) {
	_, inst := testInstance(t)
	ctx := inst.PushContext(4)
	ctx.Result = 9

	s := Capture(inst, true, None, None)
	if s.Context() != ctx {
		t.Fatal("snapshot did not take the context")
	}
	if inst.Top() == ctx || !inst.Top().Empty() {
		t.Fatal("source should hold an empty placeholder")
	}

	placeholderClosed := false
	inst.Top().AddGuard(func() { placeholderClosed = true })
	if !s.Restore() {
		t.Fatal("Restore returned false")
	}
	if inst.Top() != ctx || inst.Top().Result != 9 {
		t.Error("captured context not reinstalled")
	}
	if !placeholderClosed {
		t.Error("replaced context was not closed")
	}
	if s.Context() != nil {
		t.Error("context should move into the instance on Restore")
	}
}

func TestRestoreRegistersOnlyKeepsContext(t *testing.T) {
	_, inst := testInstance(t)
	inst.PushContext(1)
	s := Capture(inst, true, None, None)
	top := inst.Top()

	s.SetPRI(77)
	if !s.RestoreRegistersOnly() {
		t.Fatal("RestoreRegistersOnly returned false")
	}
	if inst.Top() != top {
		t.Error("RestoreRegistersOnly changed the context stack")
	}
	if inst.Machine().PRI() != 77 {
		t.Errorf("PRI = %d, want 77", inst.Machine().PRI())
	}
}

func TestDiscard(t *testing.T) {
	_, inst := testInstance(t)
	released := false
	inst.PushContext(0).AddGuard(func() { released = true })

	s := Capture(inst, true, None, None)
	s.Discard()
	if !released {
		t.Error("Discard did not release the captured guards")
	}
	s.Discard()
}
