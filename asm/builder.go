package asm

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/amx-runtime/amx"
)

type fixup struct {
	label string
	pos   int
}

type public struct {
	name  string
	label string
}

// Builder assembles a program instruction by instruction. Errors are
// collected and reported by Build.
type Builder struct {
	labels    map[string]amx.Cell
	globals   map[string]amx.Cell
	nativeIdx map[string]amx.Cell
	err       error
	code      []amx.Cell
	data      []amx.Cell
	fixups    []fixup
	natives   []string
	publics   []public
	main      amx.Cell
	stackHeap amx.Cell
}

// New returns a builder whose code starts with the mandatory HALT 0.
func New() *Builder {
	return &Builder{
		labels:    make(map[string]amx.Cell),
		globals:   make(map[string]amx.Cell),
		nativeIdx: make(map[string]amx.Cell),
		code:      []amx.Cell{amx.Cell(amx.OpHalt), 0},
		main:      -1,
	}
}

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// Pos returns the current code address.
func (b *Builder) Pos() amx.Cell { return amx.Cell(len(b.code)) }

// StackHeap sets the size of the combined heap and stack in bytes.
func (b *Builder) StackHeap(bytes amx.Cell) *Builder {
	b.stackHeap = bytes
	return b
}

// Label defines name at the current code address.
func (b *Builder) Label(name string) *Builder {
	if _, dup := b.labels[name]; dup {
		b.fail("duplicate label %q", name)
		return b
	}
	b.labels[name] = b.Pos()
	return b
}

// Public defines a label and exports it as a public function.
func (b *Builder) Public(name string) *Builder {
	b.Label(name)
	b.publics = append(b.publics, public{name: name, label: name})
	return b
}

// Main marks the current code address as the main entry.
func (b *Builder) Main() *Builder {
	b.main = b.Pos()
	return b
}

// Global reserves data cells initialized to init (one zero cell when init is
// empty) and returns the byte address of the first one.
func (b *Builder) Global(name string, init ...amx.Cell) amx.Cell {
	if len(init) == 0 {
		init = []amx.Cell{0}
	}
	return b.global(name, init)
}

// Array reserves a zeroed block of data cells.
func (b *Builder) Array(name string, cells int) amx.Cell {
	if cells <= 0 {
		b.fail("array %q: invalid size %d", name, cells)
		cells = 1
	}
	return b.global(name, make([]amx.Cell, cells))
}

func (b *Builder) global(name string, init []amx.Cell) amx.Cell {
	if _, dup := b.globals[name]; dup {
		b.fail("duplicate global %q", name)
		return b.globals[name]
	}
	addr := amx.Cell(len(b.data) * amx.CellSize)
	b.globals[name] = addr
	b.data = append(b.data, init...)
	return addr
}

// GlobalAddr returns the address of a global declared earlier.
func (b *Builder) GlobalAddr(name string) (amx.Cell, bool) {
	addr, ok := b.globals[name]
	return addr, ok
}

// Native returns the import index of a native, adding it on first use.
func (b *Builder) Native(name string) amx.Cell {
	if idx, ok := b.nativeIdx[name]; ok {
		return idx
	}
	idx := amx.Cell(len(b.natives))
	b.natives = append(b.natives, name)
	b.nativeIdx[name] = idx
	return idx
}

// Op emits an instruction with literal operands.
func (b *Builder) Op(op amx.Opcode, args ...amx.Cell) *Builder {
	if !op.Valid() {
		b.fail("invalid opcode %d", op)
		return b
	}
	if len(args) != op.Operands() {
		b.fail("%s takes %d operand(s), got %d", op, op.Operands(), len(args))
		return b
	}
	b.code = append(b.code, amx.Cell(op))
	b.code = append(b.code, args...)
	return b
}

// Ref emits an instruction whose operand is the address of label. The label
// may be defined later.
func (b *Builder) Ref(op amx.Opcode, label string) *Builder {
	if op.Operands() != 1 {
		b.fail("%s does not take a code address", op)
		return b
	}
	b.code = append(b.code, amx.Cell(op), 0)
	b.fixups = append(b.fixups, fixup{label: label, pos: len(b.code) - 1})
	return b
}

// Sysreq calls a native whose nargs arguments were pushed already, then
// drops the argument block.
func (b *Builder) Sysreq(name string, nargs int) *Builder {
	idx := b.Native(name)
	b.Op(amx.OpPushC, amx.Cell(nargs*amx.CellSize))
	b.Op(amx.OpSysreqC, idx)
	b.Op(amx.OpStack, amx.Cell((nargs+1)*amx.CellSize))
	return b
}

// CallNative pushes constant arguments in reverse order and calls a native.
// The native's return value ends up in PRI.
func (b *Builder) CallNative(name string, args ...amx.Cell) *Builder {
	for i := len(args) - 1; i >= 0; i-- {
		b.Op(amx.OpPushC, args[i])
	}
	return b.Sysreq(name, len(args))
}

// Call calls a script function whose nargs arguments were pushed already.
func (b *Builder) Call(label string, nargs int) *Builder {
	b.Op(amx.OpPushC, amx.Cell(nargs*amx.CellSize))
	return b.Ref(amx.OpCall, label)
}

// Build resolves labels and returns the program.
func (b *Builder) Build() (*amx.Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	code := make([]amx.Cell, len(b.code))
	copy(code, b.code)
	for _, f := range b.fixups {
		addr, ok := b.labels[f.label]
		if !ok {
			return nil, fmt.Errorf("unknown label %q", f.label)
		}
		code[f.pos] = addr
	}
	p := &amx.Program{
		Code:      code,
		Data:      make([]byte, len(b.data)*amx.CellSize),
		Natives:   append([]string(nil), b.natives...),
		StackHeap: b.stackHeap,
		Main:      b.main,
	}
	for i, v := range b.data {
		binary.LittleEndian.PutUint32(p.Data[i*amx.CellSize:], uint32(v))
	}
	for _, pub := range b.publics {
		p.Publics = append(p.Publics, amx.Symbol{Name: pub.name, Addr: b.labels[pub.label]})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustBuild is Build for programs known to be valid, such as test fixtures.
func (b *Builder) MustBuild() *amx.Program {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
