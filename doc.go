// Package amxruntime is a Go runtime for AMX bytecode with suspendable
// calls, tasks, forks and worker goroutines.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	amxruntime/          Package documentation
//	├── amx/             Abstract machine: registers, memory, RawExec, natives
//	├── asm/             Program builder and assembler for .pasm text
//	├── engine/          Continuation dispatcher, script natives, host loop
//	├── signal/          Sleep signal encoding shared by natives and dispatcher
//	├── reset/           Register and memory snapshots (continuations)
//	├── registry/        Per-machine instances, call contexts and extras
//	├── tasks/           Task pool, waiters, any/all combinators
//	├── sched/           Tick and timer schedulers
//	├── threads/         Worker goroutines and the main-goroutine bridge
//	├── guard/           Native fault isolation
//	├── wasmlib/         Natives implemented by a wasm module (wazero)
//	├── resource/        Handle tables
//	├── errors/          Structured error types for debugging
//	└── cmd/amxrun/      Command line runner with an interactive mode
//
// # Quick Start
//
//	prog, err := asm.Parse(src)
//	m, err := amx.New(prog)
//	m.RegisterAll(hostNatives)
//
//	eng := engine.New(nil)
//	defer eng.Close()
//	if _, err := eng.Bind(m); err != nil {
//	    log.Fatal(err)
//	}
//
//	ret, err := eng.Call(m, "main")
//	for running {
//	    eng.ProcessTick()
//	}
//
// A call that suspends (wait_ticks, task_await, thread_detach, ...) returns
// right away. Its continuation runs later from ProcessTick, from a task
// resolved by the host or on a worker goroutine.
//
// # Thread Safety
//
// Engine and Machine belong to one host goroutine. Workers started by
// thread_detach borrow the machine through the thread bridge; natives the
// engine marks main-only are handed back to the host goroutine.
//
// # Native Faults
//
// Panics inside natives and wasm traps are caught per call. The call fails
// with ErrNative and the fault is kept as the machine's last fault.
package amxruntime
