// Package amx implements the abstract machine that runs compiled scripts.
//
// The machine follows the classic Pawn AMX model: 32-bit cells, a single
// memory block holding the data section, the heap (growing up from HLW) and
// the stack (growing down from STP), and a small register file:
//
//	PRI, ALT   primary and alternate registers
//	FRM        frame pointer
//	STK, HEA   stack and heap pointers
//	CIP        code instruction pointer
//	ResetStk   STK to restore when the outermost call of a RawExec returns
//	ResetHea   HEA to restore when the outermost call of a RawExec returns
//
// # Calling Convention
//
// Arguments are pushed in reverse order followed by the argument block size
// in bytes. CALL pushes the return address, PROC pushes FRM and sets it to
// STK. Inside a function, FRM+0 holds the saved frame, FRM+4 the return
// address, FRM+8 the argument byte count and FRM+12 the first argument.
// RETN pops all of them. Code address 0 always holds HALT 0, so returning to
// address 0 ends the call started by RawExec.
//
// # Natives and Sleep
//
// SYSREQ.C invokes the machine callback with the native index and the
// parameter block (params[0] is the argument byte count). A native may call
// RaiseError(ErrSleep): RawExec then stores every register, with PRI holding
// the native's return value, and returns ErrSleep. Calling RawExec again with
// ExecCont resumes right after the SYSREQ.
//
// RawExec keeps the registers in locals while running, so a native cannot
// move HEA or STK for the call that invoked it. Anything that has to change
// them must go through the sleep channel and ExecCont, which reloads every
// register from the machine.
//
// # Interception
//
// Hooks replace the entry point, the native callback and the debug hook of a
// single machine. Exec goes through Hooks.Exec when one is installed; the
// wrapped function calls RawExec itself.
package amx
