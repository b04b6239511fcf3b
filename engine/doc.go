// Package engine wraps the machine entry point with a continuation
// dispatcher.
//
// Bind installs three hooks on a machine: the exec hook that replaces
// RawExec, a guarded native callback, and the BREAK hook used as a worker
// safepoint. Scripts then suspend by calling natives that raise a sleep
// signal (see package signal). The dispatcher decodes the signal, decides
// and loops:
//
//	continue   fork dispatch, scratch vars, misuse, resolved awaits
//	suspend    waits, await on a pending task, wait_forever, thread_detach
//	complete   the call returned, failed, or a forked run ended
//
// A suspended call is captured into a reset.Snapshot, unwound, and returns
// ErrNone with the value last passed to yield. The snapshot is resumed by
// whoever holds it: a task (task_await, wait_ticks, wait_ms), the thread
// bridge (thread_attach) or the host (ResumeParked).
//
// # Host loop
//
//	eng := engine.New(cfg)
//	inst, err := eng.Bind(m)
//	ret, err := eng.Call(m, "main")
//	for running {
//	    eng.ProcessTick()
//	}
//
// ProcessTick advances the tick scheduler, drains due timers and runs the
// thread bridge's Sync, in that order.
//
// # Script natives
//
//	wait_ticks(n) wait_ms(ms) wait_forever() yield(value)
//	task_new() task_delete(t) task_keep(t, keep) task_set_result(t, v)
//	task_set_error(t, code) task_reset(t) task_state(t) task_result(t)
//	task_await(t) task_ticks(n) task_ms(ms) task_any(ids[], n) task_all(ids[], n)
//	fork_start(method, flags, &result, &error) fork_commit(value, keep) fork_end(value)
//	thread_detach(flags) thread_attach() thread_sync()
//	var_alloc(cells, zero) var_free(addr) last_fault()
//
// Arguments carried in the suspension signal (durations, tick counts, task
// ids, var sizes and addresses) must fit in 24 bits; larger values fail the
// native with ErrParams.
//
// # Forks
//
// fork_start returns 1 in the forked run and 0 in the caller once the forked
// run is over. Method 0 restores the control registers only. Method 1 also
// rolls back heap and stack, and the data section with ForkCopyData. Method
// 2 runs a clone of the machine. A run that commits with keep replaces the
// caller's state (methods 0 and 1) or keeps the clone running (method 2).
//
// Native faults (panics, wasm traps) surface as ErrNative; LastFault and the
// last_fault native return the recorded fault.
package engine
