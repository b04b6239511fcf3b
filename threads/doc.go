// Package threads runs script continuations on worker goroutines.
//
// Exactly one goroutine owns a machine at a time. Ownership is a token per
// machine: a worker holds it while running and gives it up at hand-offs,
// safepoints and exit; the main goroutine takes it with Pause and returns
// it with Resume.
//
// A worker starts from a snapshot handed over by Detach and runs the
// machine directly, interpreting sleep signals itself:
//
//	attach   the call is captured and resumed on the main goroutine
//	sync     explicit mode waits for the next Sync drain
//	detach   the worker's flags change, execution continues
//	other    the call is captured and the signal replayed on main
//
// Natives that must run on the main goroutine are handed off: the worker
// queues the call and blocks until Sync (or a Pause waiting for the worker)
// runs it. With SyncAuto every native is handed off. With SyncInterrupt the
// main goroutine may park the worker at a safepoint, which is every native
// call boundary and every BREAK.
//
// Install Callback and Debug as the machine's hooks so workers see their
// natives and safepoints.
package threads
