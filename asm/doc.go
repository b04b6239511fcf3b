// Package asm builds amx programs.
//
// Builder constructs programs from Go code and is what tests use:
//
//	prog := asm.New().
//		Public("run").
//		Op(amx.OpProc).
//		CallNative("wait_ticks", 3).
//		Op(amx.OpRetn).
//		MustBuild()
//
// Parse accepts the same instructions as text, one per line, using the
// AMX mnemonics (load.pri, push.c, sysreq.c, ...). See Parse for the
// directives.
package asm
