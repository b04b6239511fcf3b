package amx

import "encoding/binary"

// RawExec runs public index, the main entry (ExecMain) or continues a
// sleeping call (ExecCont). The value left in PRI by the call is stored in
// retval. Arguments pushed with Push are consumed by the call.
func (m *Machine) RawExec(retval *Cell, index int) Error {
	if m.prog == nil {
		return ErrInit
	}
	var (
		pri, alt, frm, stk, hea, cip Cell
		resetStk, resetHea           Cell
		outerStk, outerHea           Cell
		nested                       bool
	)
	if index == ExecCont {
		r := m.regs
		pri, alt, frm, stk, hea, cip = r.PRI, r.ALT, r.FRM, r.STK, r.HEA, r.CIP
		resetStk, resetHea = r.ResetStk, r.ResetHea
	} else {
		var addr Cell
		switch {
		case index == ExecMain:
			if m.prog.Main < 0 {
				return ErrIndex
			}
			addr = m.prog.Main
		case index >= 0 && index < len(m.prog.Publics):
			addr = m.prog.Publics[index].Addr
		default:
			return ErrIndex
		}
		nested = true
		outerStk, outerHea = m.regs.ResetStk, m.regs.ResetHea
		pri, alt, frm, stk, hea = m.regs.PRI, m.regs.ALT, m.regs.FRM, m.regs.STK, m.regs.HEA
		resetStk = stk + Cell(m.paramCount*CellSize)
		argBytes := Cell(m.paramCount * CellSize)
		m.paramCount = 0
		resetHea = hea
		for _, v := range [2]Cell{argBytes, 0} {
			stk -= CellSize
			if stk < hea {
				m.regs.STK, m.regs.HEA = resetStk, resetHea
				return ErrStackErr
			}
			binary.LittleEndian.PutUint32(m.mem[stk:], uint32(v))
		}
		cip = addr
	}

	code := m.code
	mem := m.mem
	size := Cell(len(code))

	sync := func() {
		m.regs = Registers{
			PRI: pri, ALT: alt, FRM: frm, STK: stk, HEA: hea, CIP: cip,
			ResetStk: resetStk, ResetHea: resetHea,
		}
	}
	abort := func(e Error) Error {
		sync()
		m.regs.STK, m.regs.HEA = resetStk, resetHea
		if nested {
			m.regs.ResetStk, m.regs.ResetHea = outerStk, outerHea
		}
		return e
	}
	valid := func(addr Cell) bool {
		if addr < 0 || int(addr)+CellSize > len(mem) {
			return false
		}
		return addr+CellSize <= hea || addr >= stk
	}
	load := func(addr Cell) (Cell, bool) {
		if !valid(addr) {
			return 0, false
		}
		return Cell(binary.LittleEndian.Uint32(mem[addr:])), true
	}
	store := func(addr, v Cell) bool {
		if !valid(addr) {
			return false
		}
		binary.LittleEndian.PutUint32(mem[addr:], uint32(v))
		return true
	}
	push := func(v Cell) bool {
		if stk-CellSize < hea {
			return false
		}
		stk -= CellSize
		binary.LittleEndian.PutUint32(mem[stk:], uint32(v))
		return true
	}
	pop := func() (Cell, bool) {
		if stk+CellSize > m.stp {
			return 0, false
		}
		v := Cell(binary.LittleEndian.Uint32(mem[stk:]))
		stk += CellSize
		return v, true
	}
	bool2cell := func(b bool) Cell {
		if b {
			return 1
		}
		return 0
	}

	for {
		if cip < 0 || cip >= size {
			return abort(ErrMemAccess)
		}
		op := Opcode(code[cip])
		var arg Cell
		if n := op.Operands(); n > 0 {
			if cip+1 >= size {
				return abort(ErrInvInstr)
			}
			arg = code[cip+1]
		}
		next := cip + 1 + Cell(op.Operands())

		var ok = true
		switch op {
		case OpNop:
		case OpHalt:
			*retval = pri
			cip = next
			sync()
			m.regs.STK, m.regs.HEA = resetStk, resetHea
			if nested {
				m.regs.ResetStk, m.regs.ResetHea = outerStk, outerHea
			}
			return Error(arg)
		case OpLoadPri:
			pri, ok = load(arg)
		case OpLoadAlt:
			alt, ok = load(arg)
		case OpLoadSPri:
			pri, ok = load(frm + arg)
		case OpLoadSAlt:
			alt, ok = load(frm + arg)
		case OpLrefSPri:
			var ref Cell
			if ref, ok = load(frm + arg); ok {
				pri, ok = load(ref)
			}
		case OpLoadI:
			pri, ok = load(pri)
		case OpStorPri:
			ok = store(arg, pri)
		case OpStorAlt:
			ok = store(arg, alt)
		case OpStorSPri:
			ok = store(frm+arg, pri)
		case OpStorSAlt:
			ok = store(frm+arg, alt)
		case OpSrefSPri:
			var ref Cell
			if ref, ok = load(frm + arg); ok {
				ok = store(ref, pri)
			}
		case OpStorI:
			ok = store(alt, pri)
		case OpConstPri:
			pri = arg
		case OpConstAlt:
			alt = arg
		case OpAddrPri:
			pri = frm + arg
		case OpAddrAlt:
			alt = frm + arg
		case OpMovePri:
			pri = alt
		case OpMoveAlt:
			alt = pri
		case OpXchg:
			pri, alt = alt, pri
		case OpPushPri:
			if !push(pri) {
				return abort(ErrStackErr)
			}
		case OpPushAlt:
			if !push(alt) {
				return abort(ErrStackErr)
			}
		case OpPushC:
			if !push(arg) {
				return abort(ErrStackErr)
			}
		case OpPush, OpPushS:
			addr := arg
			if op == OpPushS {
				addr += frm
			}
			var v Cell
			if v, ok = load(addr); ok && !push(v) {
				return abort(ErrStackErr)
			}
		case OpPushAdr:
			if !push(frm + arg) {
				return abort(ErrStackErr)
			}
		case OpPopPri:
			var v Cell
			if v, ok = pop(); !ok {
				return abort(ErrStackLow)
			}
			pri = v
		case OpPopAlt:
			var v Cell
			if v, ok = pop(); !ok {
				return abort(ErrStackLow)
			}
			alt = v
		case OpStack:
			alt = stk
			stk += arg
			if stk < hea {
				return abort(ErrStackErr)
			}
			if stk > m.stp {
				return abort(ErrStackLow)
			}
		case OpHeap:
			alt = hea
			hea += arg
			if hea < m.hlw {
				return abort(ErrHeapLow)
			}
			if hea > stk {
				return abort(ErrStackErr)
			}
		case OpProc:
			if !push(frm) {
				return abort(ErrStackErr)
			}
			frm = stk
		case OpRetn:
			var ret, argBytes Cell
			if frm, ok = pop(); !ok {
				return abort(ErrStackLow)
			}
			if ret, ok = pop(); !ok {
				return abort(ErrStackLow)
			}
			if argBytes, ok = pop(); !ok {
				return abort(ErrStackLow)
			}
			if ret < 0 || ret >= size {
				return abort(ErrMemAccess)
			}
			stk += argBytes
			if stk > m.stp {
				return abort(ErrStackLow)
			}
			next = ret
		case OpCall:
			if !push(next) {
				return abort(ErrStackErr)
			}
			next = arg
		case OpJump:
			next = arg
		case OpJzer:
			if pri == 0 {
				next = arg
			}
		case OpJnz:
			if pri != 0 {
				next = arg
			}
		case OpEq:
			pri = bool2cell(pri == alt)
		case OpNeq:
			pri = bool2cell(pri != alt)
		case OpSless:
			pri = bool2cell(pri < alt)
		case OpSleq:
			pri = bool2cell(pri <= alt)
		case OpSgrtr:
			pri = bool2cell(pri > alt)
		case OpSgeq:
			pri = bool2cell(pri >= alt)
		case OpAdd:
			pri += alt
		case OpSub:
			pri -= alt
		case OpSmul:
			pri *= alt
		case OpSdiv:
			if alt == 0 {
				return abort(ErrDivide)
			}
			pri, alt = pri/alt, pri%alt
		case OpAnd:
			pri &= alt
		case OpOr:
			pri |= alt
		case OpXor:
			pri ^= alt
		case OpNeg:
			pri = -pri
		case OpNot:
			pri = bool2cell(pri == 0)
		case OpAddC:
			pri += arg
		case OpIncPri:
			pri++
		case OpDecPri:
			pri--
		case OpInc, OpIncS, OpDec, OpDecS:
			addr := arg
			if op == OpIncS || op == OpDecS {
				addr += frm
			}
			var v Cell
			if v, ok = load(addr); ok {
				if op == OpInc || op == OpIncS {
					v++
				} else {
					v--
				}
				ok = store(addr, v)
			}
		case OpZeroPri:
			pri = 0
		case OpZeroAlt:
			alt = 0
		case OpZero:
			ok = store(arg, 0)
		case OpZeroS:
			ok = store(frm+arg, 0)
		case OpBounds:
			if pri < 0 || pri > arg {
				return abort(ErrBounds)
			}
		case OpFill:
			for off := Cell(0); off < arg && ok; off += CellSize {
				ok = store(alt+off, pri)
			}
		case OpSysreqC:
			argBytes, good := load(stk)
			if !good || argBytes < 0 || argBytes%CellSize != 0 || stk+argBytes+CellSize > m.stp {
				return abort(ErrParams)
			}
			params := make([]Cell, 1+argBytes/CellSize)
			for i := range params {
				params[i] = Cell(binary.LittleEndian.Uint32(mem[stk+Cell(i*CellSize):]))
			}
			cip = next
			sync()
			var result Cell
			e := m.callback(arg, &result, params)
			if e == ErrSleep {
				m.regs = Registers{
					PRI: result, ALT: alt, FRM: frm, STK: stk, HEA: hea, CIP: next,
					ResetStk: resetStk, ResetHea: resetHea,
				}
				return ErrSleep
			}
			if e != ErrNone {
				return abort(e)
			}
			pri = result
		case OpBreak:
			if m.hooks.Debug != nil {
				cip = next
				sync()
				if e := m.hooks.Debug(m); e != ErrNone {
					return abort(e)
				}
			}
		default:
			return abort(ErrInvInstr)
		}
		if !ok {
			return abort(ErrMemAccess)
		}
		cip = next
	}
}
