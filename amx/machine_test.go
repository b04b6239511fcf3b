package amx_test

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/amx-runtime/amx"
	"github.com/wippyai/amx-runtime/asm"
)

func TestAllotRelease(t *testing.T) {
	b := asm.New()
	b.Global("g", 1)
	m := newMachine(t, b.Public("f").Op(amx.OpRetn))

	a1, err := m.Allot(4)
	if err != nil {
		t.Fatalf("Allot failed: %v", err)
	}
	if a1 != m.HLW() {
		t.Errorf("first block at %d, want HLW %d", a1, m.HLW())
	}
	a2, err := m.Allot(2)
	if err != nil {
		t.Fatalf("Allot failed: %v", err)
	}
	if a2 != a1+16 {
		t.Errorf("second block at %d, want %d", a2, a1+16)
	}
	if err := m.WriteCell(a2, 99); err != nil {
		t.Fatalf("WriteCell failed: %v", err)
	}
	if v, _ := m.ReadCell(a2); v != 99 {
		t.Errorf("ReadCell = %d, want 99", v)
	}

	m.Release(a1)
	if m.Registers().HEA != a1 {
		t.Errorf("HEA = %d after Release, want %d", m.Registers().HEA, a1)
	}

	if _, err := m.Allot(amx.DefaultStackHeap); err != amx.ErrMemory {
		t.Errorf("oversized Allot err = %v, want ErrMemory", err)
	}
	if _, err := m.Allot(-1); err != amx.ErrParams {
		t.Errorf("negative Allot err = %v, want ErrParams", err)
	}
}

func TestReadWriteBounds(t *testing.T) {
	m := newMachine(t, asm.New().Public("f").Op(amx.OpRetn))
	if _, err := m.ReadCell(-4); err == nil {
		t.Error("ReadCell(-4) should fail")
	}
	if err := m.WriteCell(m.STP(), 1); err == nil {
		t.Error("WriteCell(STP) should fail")
	}
}

func TestPushArray(t *testing.T) {
	b := asm.New().
		Public("sum3").
		Op(amx.OpProc).
		Op(amx.OpLoadSAlt, 12).
		Op(amx.OpMovePri).
		Op(amx.OpLoadI).
		Op(amx.OpPushPri).
		Op(amx.OpMovePri).
		Op(amx.OpAddC, 4).
		Op(amx.OpLoadI).
		Op(amx.OpPopAlt).
		Op(amx.OpAdd).
		Op(amx.OpRetn)
	m := newMachine(t, b)
	addr, err := m.PushArray([]amx.Cell{20, 22})
	if err != nil {
		t.Fatalf("PushArray failed: %v", err)
	}
	idx, _ := m.FindPublic("sum3")
	var ret amx.Cell
	if e := m.RawExec(&ret, idx); e != amx.ErrNone {
		t.Fatalf("RawExec = %v", e)
	}
	if ret != 42 {
		t.Errorf("ret = %d, want 42", ret)
	}
	m.Release(addr)
	if m.Registers().HEA != m.HLW() {
		t.Errorf("HEA = %d, want %d", m.Registers().HEA, m.HLW())
	}
}

func TestClone(t *testing.T) {
	b := asm.New()
	g := b.Global("g", 5)
	m := newMachine(t, b.Public("f").Op(amx.OpLoadPri, g).Op(amx.OpRetn))
	m.Register("n", func(*amx.Machine, []amx.Cell) amx.Cell { return 0 })
	if err := m.WriteCell(g, 7); err != nil {
		t.Fatal(err)
	}

	withData, err := m.Clone(true)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if v, _ := withData.ReadCell(g); v != 7 {
		t.Errorf("clone with data g = %d, want 7", v)
	}
	fresh, err := m.Clone(false)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if v, _ := fresh.ReadCell(g); v != 5 {
		t.Errorf("clone without data g = %d, want 5", v)
	}

	if err := withData.WriteCell(g, 9); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadCell(g); v != 7 {
		t.Errorf("writing the clone changed the original: g = %d", v)
	}
	if withData.Registers() != m.Registers() {
		t.Errorf("clone registers %+v differ from %+v", withData.Registers(), m.Registers())
	}
}

func TestUnwind(t *testing.T) {
	m := newMachine(t, asm.New().Public("f").Op(amx.OpRetn))
	base := m.Registers()
	if err := m.Push(1); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Allot(3); err != nil {
		t.Fatal(err)
	}
	m.Unwind()
	got := m.Registers()
	if got.STK != base.ResetStk || got.HEA != base.ResetHea {
		t.Errorf("Unwind left STK=%d HEA=%d, want %d %d", got.STK, got.HEA, base.ResetStk, base.ResetHea)
	}
}

func TestValidate(t *testing.T) {
	halt := amx.Cell(amx.OpHalt)
	tests := []struct {
		name string
		prog amx.Program
	}{
		{"no_halt", amx.Program{Code: []amx.Cell{amx.Cell(amx.OpNop), 0}, Main: -1}},
		{"bad_opcode", amx.Program{Code: []amx.Cell{halt, 0, 999}, Main: -1}},
		{"truncated", amx.Program{Code: []amx.Cell{halt, 0, amx.Cell(amx.OpPushC)}, Main: -1}},
		{"jump_outside", amx.Program{Code: []amx.Cell{halt, 0, amx.Cell(amx.OpJump), 100}, Main: -1}},
		{"unknown_native", amx.Program{Code: []amx.Cell{halt, 0, amx.Cell(amx.OpSysreqC), 0}, Main: -1}},
		{"unaligned_data", amx.Program{Code: []amx.Cell{halt, 0}, Data: []byte{1, 2}, Main: -1}},
		{"public_at_zero", amx.Program{Code: []amx.Cell{halt, 0}, Publics: []amx.Symbol{{Name: "f"}}, Main: -1}},
		{"bad_main", amx.Program{Code: []amx.Cell{halt, 0}, Main: 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.prog.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestImage(t *testing.T) {
	b := asm.New()
	b.Global("g", 1, 2, 3)
	prog := b.Public("f").CallNative("n", 1).Op(amx.OpRetn).MustBuild()

	data, err := amx.MarshalImage(prog)
	if err != nil {
		t.Fatalf("MarshalImage failed: %v", err)
	}
	again, err := amx.MarshalImage(prog)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("image encoding is not deterministic")
	}

	got, err := amx.UnmarshalImage(data)
	if err != nil {
		t.Fatalf("UnmarshalImage failed: %v", err)
	}
	if got.Version != amx.ImageVersion || len(got.Code) != len(prog.Code) || !bytes.Equal(got.Data, prog.Data) {
		t.Errorf("decoded program differs: %+v", got)
	}
	if got.Publics[0] != prog.Publics[0] || got.Natives[0] != "n" {
		t.Errorf("symbols differ: %+v %v", got.Publics, got.Natives)
	}

	newer := *prog
	newer.Version = amx.ImageVersion + 1
	raw, err := cbor.Marshal(&newer)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := amx.UnmarshalImage(raw); err != amx.ErrVersion {
		t.Errorf("newer image err = %v, want ErrVersion", err)
	}
	if _, err := amx.UnmarshalImage([]byte{0xff}); err == nil {
		t.Error("garbage image should fail")
	}
}

func TestErrorString(t *testing.T) {
	if amx.ErrSleep.Error() != "go into sleepmode" {
		t.Errorf("ErrSleep = %q", amx.ErrSleep.Error())
	}
	if amx.Error(99).Error() != "unknown error 99" {
		t.Errorf("Error(99) = %q", amx.Error(99).Error())
	}
	if amx.ErrNative.Code() != 10 {
		t.Errorf("ErrNative.Code() = %d", amx.ErrNative.Code())
	}
}
