package amx

import (
	"encoding/binary"
	"fmt"
)

const (
	// ExecMain runs the program's main entry.
	ExecMain = -1
	// ExecCont continues a call that returned ErrSleep.
	ExecCont = -2
)

// stackMargin is the minimum gap kept between HEA and STK by Allot.
const stackMargin = 16 * CellSize

// Native is a host function callable from scripts. params[0] holds the
// argument block size in bytes, params[1:] the arguments.
type Native func(m *Machine, params []Cell) Cell

// Callback dispatches a SYSREQ to native index. It stores the native's return
// value in result and returns the error raised by the native.
type Callback func(m *Machine, index Cell, result *Cell, params []Cell) Error

// ExecFunc is the signature of the machine entry point.
type ExecFunc func(m *Machine, retval *Cell, index int) Error

// DebugHook runs on every BREAK instruction with the registers synced.
// Returning anything but ErrNone aborts the running call.
type DebugHook func(m *Machine) Error

// Hooks intercept the entry point, the native callback and BREAK.
type Hooks struct {
	Exec     ExecFunc
	Callback Callback
	Debug    DebugHook
}

// Registers is the register file of a machine.
type Registers struct {
	PRI      Cell
	ALT      Cell
	FRM      Cell
	STK      Cell
	HEA      Cell
	CIP      Cell
	ResetStk Cell
	ResetHea Cell
}

type nativeEntry struct {
	name string
	fn   Native
}

// Machine is one instance of a loaded program.
type Machine struct {
	fault      error
	prog       *Program
	hooks      Hooks
	code       []Cell
	mem        []byte
	natives    []nativeEntry
	publics    map[string]int
	regs       Registers
	hlw        Cell
	stp        Cell
	paramCount int
	err        Error
}

// New creates a machine for p.
func New(p *Program) (*Machine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	stackHeap := p.StackHeap
	if stackHeap == 0 {
		stackHeap = DefaultStackHeap
	}
	m := &Machine{
		prog:    p,
		code:    p.Code,
		mem:     make([]byte, len(p.Data)+int(stackHeap)),
		natives: make([]nativeEntry, len(p.Natives)),
		publics: make(map[string]int, len(p.Publics)),
	}
	copy(m.mem, p.Data)
	for i, name := range p.Natives {
		m.natives[i].name = name
	}
	for i, pub := range p.Publics {
		m.publics[pub.Name] = i
	}
	m.hlw = Cell(len(p.Data))
	m.stp = Cell(len(m.mem))
	m.regs.HEA = m.hlw
	m.regs.STK = m.stp
	m.regs.ResetStk = m.stp
	m.regs.ResetHea = m.hlw
	return m, nil
}

// Program returns the program the machine was created from.
func (m *Machine) Program() *Program { return m.prog }

// Registers returns a copy of the register file.
func (m *Machine) Registers() Registers { return m.regs }

// SetRegisters overwrites the register file.
func (m *Machine) SetRegisters(r Registers) { m.regs = r }

// PRI returns the primary register.
func (m *Machine) PRI() Cell { return m.regs.PRI }

// SetPRI sets the primary register.
func (m *Machine) SetPRI(v Cell) { m.regs.PRI = v }

// HLW returns the end of the data section (start of the heap).
func (m *Machine) HLW() Cell { return m.hlw }

// STP returns the top of the stack.
func (m *Machine) STP() Cell { return m.stp }

// Memory returns the machine memory: data, heap and stack.
func (m *Machine) Memory() []byte { return m.mem }

// Data returns the data section.
func (m *Machine) Data() []byte { return m.mem[:m.hlw] }

// Hooks returns the installed hooks.
func (m *Machine) Hooks() Hooks { return m.hooks }

// SetHooks installs interception hooks. Zero fields restore the defaults.
func (m *Machine) SetHooks(h Hooks) { m.hooks = h }

// Exec runs public index (or ExecMain / ExecCont) through the installed
// entry hook.
func (m *Machine) Exec(retval *Cell, index int) Error {
	if m.hooks.Exec != nil {
		return m.hooks.Exec(m, retval, index)
	}
	return m.RawExec(retval, index)
}

// FindPublic returns the index of a public function.
func (m *Machine) FindPublic(name string) (int, bool) {
	idx, ok := m.publics[name]
	return idx, ok
}

// PublicName returns the name of public index.
func (m *Machine) PublicName(index int) (string, bool) {
	if index < 0 || index >= len(m.prog.Publics) {
		return "", false
	}
	return m.prog.Publics[index].Name, true
}

// NumPublics returns the number of publics.
func (m *Machine) NumPublics() int { return len(m.prog.Publics) }

// FindNative returns the index of an imported native.
func (m *Machine) FindNative(name string) (Cell, bool) {
	for i, n := range m.natives {
		if n.name == name {
			return Cell(i), true
		}
	}
	return 0, false
}

// NativeName returns the name of native index.
func (m *Machine) NativeName(index Cell) string {
	if index < 0 || int(index) >= len(m.natives) {
		return ""
	}
	return m.natives[index].name
}

// NumNatives returns the number of imported natives.
func (m *Machine) NumNatives() int { return len(m.natives) }

// Native returns the function bound to index, if any.
func (m *Machine) Native(index Cell) (Native, bool) {
	if index < 0 || int(index) >= len(m.natives) || m.natives[index].fn == nil {
		return nil, false
	}
	return m.natives[index].fn, true
}

// Register binds fn to every import called name. It reports whether the
// program imports the native at all.
func (m *Machine) Register(name string, fn Native) bool {
	found := false
	for i := range m.natives {
		if m.natives[i].name == name {
			m.natives[i].fn = fn
			found = true
		}
	}
	return found
}

// RegisterAll binds every native in fns that the program imports.
func (m *Machine) RegisterAll(fns map[string]Native) int {
	n := 0
	for name, fn := range fns {
		if m.Register(name, fn) {
			n++
		}
	}
	return n
}

// Unbound returns the names of imports without a bound function.
func (m *Machine) Unbound() []string {
	var out []string
	for _, n := range m.natives {
		if n.fn == nil {
			out = append(out, n.name)
		}
	}
	return out
}

// RaiseError records an error for the native currently running.
func (m *Machine) RaiseError(e Error) { m.err = e }

// RaiseFault reports a host-side failure of the running native. The native
// call fails with ErrNative and the fault is kept for the callback to collect.
func (m *Machine) RaiseFault(err error) {
	m.fault = err
	m.err = ErrNative
}

// TakeFault returns and clears the fault raised by the last native.
func (m *Machine) TakeFault() error {
	f := m.fault
	m.fault = nil
	return f
}

// DefaultCallback calls the native bound to index.
func DefaultCallback(m *Machine, index Cell, result *Cell, params []Cell) Error {
	fn, ok := m.Native(index)
	if !ok {
		return ErrNotFound
	}
	m.err = ErrNone
	*result = fn(m, params)
	e := m.err
	m.err = ErrNone
	return e
}

func (m *Machine) callback(index Cell, result *Cell, params []Cell) Error {
	if m.hooks.Callback != nil {
		return m.hooks.Callback(m, index, result, params)
	}
	return DefaultCallback(m, index, result, params)
}

// ReadCell reads the cell at byte address addr.
func (m *Machine) ReadCell(addr Cell) (Cell, error) {
	if addr < 0 || int(addr)+CellSize > len(m.mem) {
		return 0, ErrMemAccess
	}
	return Cell(binary.LittleEndian.Uint32(m.mem[addr:])), nil
}

// WriteCell writes the cell at byte address addr.
func (m *Machine) WriteCell(addr, v Cell) error {
	if addr < 0 || int(addr)+CellSize > len(m.mem) {
		return ErrMemAccess
	}
	binary.LittleEndian.PutUint32(m.mem[addr:], uint32(v))
	return nil
}

// Push pushes an argument for the next Exec.
func (m *Machine) Push(v Cell) error {
	stk := m.regs.STK - CellSize
	if stk < m.regs.HEA+stackMargin {
		return ErrStackErr
	}
	m.regs.STK = stk
	binary.LittleEndian.PutUint32(m.mem[stk:], uint32(v))
	m.paramCount++
	return nil
}

// PushArray copies vals to the heap and pushes its address. The caller
// releases the block with Release once the call returned.
func (m *Machine) PushArray(vals []Cell) (Cell, error) {
	addr, err := m.Allot(len(vals))
	if err != nil {
		return 0, err
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint32(m.mem[int(addr)+i*CellSize:], uint32(v))
	}
	if err := m.Push(addr); err != nil {
		m.Release(addr)
		return 0, err
	}
	return addr, nil
}

// Allot reserves cells on the heap and returns the block address.
func (m *Machine) Allot(cells int) (Cell, error) {
	if cells < 0 {
		return 0, ErrParams
	}
	size := Cell(cells * CellSize)
	if m.regs.STK-m.regs.HEA-size < stackMargin {
		return 0, ErrMemory
	}
	addr := m.regs.HEA
	m.regs.HEA += size
	return addr, nil
}

// Release frees the heap down to addr, including everything allotted after it.
func (m *Machine) Release(addr Cell) {
	if addr >= m.hlw && addr < m.regs.HEA {
		m.regs.HEA = addr
	}
}

// Unwind resets STK and HEA to the bookkeeping values of the innermost
// RawExec, dropping any frames and heap blocks of a suspended call.
func (m *Machine) Unwind() {
	m.regs.STK = m.regs.ResetStk
	m.regs.HEA = m.regs.ResetHea
	m.paramCount = 0
}

// Clone creates an independent machine with the same program, natives and
// registers. When copyData is false the data section is reset to the
// program image; heap and stack are always copied.
func (m *Machine) Clone(copyData bool) (*Machine, error) {
	if m.prog == nil {
		return nil, ErrInit
	}
	c := &Machine{
		prog:    m.prog,
		code:    m.code,
		mem:     make([]byte, len(m.mem)),
		natives: make([]nativeEntry, len(m.natives)),
		publics: m.publics,
		regs:    m.regs,
		hlw:     m.hlw,
		stp:     m.stp,
	}
	copy(c.mem, m.mem)
	if !copyData {
		copy(c.mem[:c.hlw], m.prog.Data)
	}
	copy(c.natives, m.natives)
	return c, nil
}

// String implements fmt.Stringer for logging.
func (m *Machine) String() string {
	return fmt.Sprintf("amx(%p)", m)
}
