package amx

// Opcode is an instruction of the abstract machine.
type Opcode Cell

const (
	OpNop Opcode = iota
	OpHalt
	OpLoadPri
	OpLoadAlt
	OpLoadSPri
	OpLoadSAlt
	OpLrefSPri
	OpLoadI
	OpStorPri
	OpStorAlt
	OpStorSPri
	OpStorSAlt
	OpSrefSPri
	OpStorI
	OpConstPri
	OpConstAlt
	OpAddrPri
	OpAddrAlt
	OpMovePri
	OpMoveAlt
	OpXchg
	OpPushPri
	OpPushAlt
	OpPushC
	OpPush
	OpPushS
	OpPushAdr
	OpPopPri
	OpPopAlt
	OpStack
	OpHeap
	OpProc
	OpRetn
	OpCall
	OpJump
	OpJzer
	OpJnz
	OpEq
	OpNeq
	OpSless
	OpSleq
	OpSgrtr
	OpSgeq
	OpAdd
	OpSub
	OpSmul
	OpSdiv
	OpAnd
	OpOr
	OpXor
	OpNeg
	OpNot
	OpAddC
	OpIncPri
	OpDecPri
	OpInc
	OpIncS
	OpDec
	OpDecS
	OpZeroPri
	OpZeroAlt
	OpZero
	OpZeroS
	OpSysreqC
	OpBounds
	OpFill
	OpBreak

	opCount
)

type opInfo struct {
	name     string
	operands int
	jump     bool
}

var opTable = [opCount]opInfo{
	OpNop:      {"nop", 0, false},
	OpHalt:     {"halt", 1, false},
	OpLoadPri:  {"load.pri", 1, false},
	OpLoadAlt:  {"load.alt", 1, false},
	OpLoadSPri: {"load.s.pri", 1, false},
	OpLoadSAlt: {"load.s.alt", 1, false},
	OpLrefSPri: {"lref.s.pri", 1, false},
	OpLoadI:    {"load.i", 0, false},
	OpStorPri:  {"stor.pri", 1, false},
	OpStorAlt:  {"stor.alt", 1, false},
	OpStorSPri: {"stor.s.pri", 1, false},
	OpStorSAlt: {"stor.s.alt", 1, false},
	OpSrefSPri: {"sref.s.pri", 1, false},
	OpStorI:    {"stor.i", 0, false},
	OpConstPri: {"const.pri", 1, false},
	OpConstAlt: {"const.alt", 1, false},
	OpAddrPri:  {"addr.pri", 1, false},
	OpAddrAlt:  {"addr.alt", 1, false},
	OpMovePri:  {"move.pri", 0, false},
	OpMoveAlt:  {"move.alt", 0, false},
	OpXchg:     {"xchg", 0, false},
	OpPushPri:  {"push.pri", 0, false},
	OpPushAlt:  {"push.alt", 0, false},
	OpPushC:    {"push.c", 1, false},
	OpPush:     {"push", 1, false},
	OpPushS:    {"push.s", 1, false},
	OpPushAdr:  {"push.adr", 1, false},
	OpPopPri:   {"pop.pri", 0, false},
	OpPopAlt:   {"pop.alt", 0, false},
	OpStack:    {"stack", 1, false},
	OpHeap:     {"heap", 1, false},
	OpProc:     {"proc", 0, false},
	OpRetn:     {"retn", 0, false},
	OpCall:     {"call", 1, true},
	OpJump:     {"jump", 1, true},
	OpJzer:     {"jzer", 1, true},
	OpJnz:      {"jnz", 1, true},
	OpEq:       {"eq", 0, false},
	OpNeq:      {"neq", 0, false},
	OpSless:    {"sless", 0, false},
	OpSleq:     {"sleq", 0, false},
	OpSgrtr:    {"sgrtr", 0, false},
	OpSgeq:     {"sgeq", 0, false},
	OpAdd:      {"add", 0, false},
	OpSub:      {"sub", 0, false},
	OpSmul:     {"smul", 0, false},
	OpSdiv:     {"sdiv", 0, false},
	OpAnd:      {"and", 0, false},
	OpOr:       {"or", 0, false},
	OpXor:      {"xor", 0, false},
	OpNeg:      {"neg", 0, false},
	OpNot:      {"not", 0, false},
	OpAddC:     {"add.c", 1, false},
	OpIncPri:   {"inc.pri", 0, false},
	OpDecPri:   {"dec.pri", 0, false},
	OpInc:      {"inc", 1, false},
	OpIncS:     {"inc.s", 1, false},
	OpDec:      {"dec", 1, false},
	OpDecS:     {"dec.s", 1, false},
	OpZeroPri:  {"zero.pri", 0, false},
	OpZeroAlt:  {"zero.alt", 0, false},
	OpZero:     {"zero", 1, false},
	OpZeroS:    {"zero.s", 1, false},
	OpSysreqC:  {"sysreq.c", 1, false},
	OpBounds:   {"bounds", 1, false},
	OpFill:     {"fill", 1, false},
	OpBreak:    {"break", 0, false},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opCount)
	for op := Opcode(0); op < opCount; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

// Valid reports whether op is a known instruction.
func (op Opcode) Valid() bool {
	return op >= 0 && op < opCount
}

// String returns the assembler mnemonic.
func (op Opcode) String() string {
	if !op.Valid() {
		return "invalid"
	}
	return opTable[op].name
}

// Operands returns the number of operand cells following the opcode.
func (op Opcode) Operands() int {
	if !op.Valid() {
		return 0
	}
	return opTable[op].operands
}

// IsJump reports whether the operand is a code address.
func (op Opcode) IsJump() bool {
	return op.Valid() && opTable[op].jump
}

// LookupOpcode resolves an assembler mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}
