// Package wasmlib hosts native functions in a WebAssembly module.
//
// Load compiles a module with wazero and exposes every exported function
// whose parameters and results are i32 (at most one result) as an AMX
// native of the same name. Script arguments are passed through unchanged.
//
// Guests may import the "amx" host module to reach the calling machine:
//
//	amx.load(addr i32) i32     read a cell of machine memory
//	amx.store(addr i32, v i32) write a cell of machine memory
//
// A trap never takes the host down. It is classified with guard.FromTrap and
// raised on the calling machine with RaiseFault, so the script sees
// ErrNative. Traps that may leave guest memory inconsistent (out of bounds
// access, stack overflow) throw the instance away and instantiate a fresh
// one before the next call.
package wasmlib
