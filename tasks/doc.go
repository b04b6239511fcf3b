// Package tasks implements futures that resume suspended scripts.
//
// A Task starts pending and resolves exactly once, either completed with a
// result cell or faulted with an AMX error code. Suspended calls register
// their snapshot with Wait; on resolution every snapshot is handed to the
// pool's Resumer in registration order, then every OnDone handler runs.
//
//	t, _ := pool.New()        // caller holds one reference
//	t.Wait(snapshot)          // resumed by pool.Resumer() later
//	t.Complete(42)
//	pool.Release(t)           // collected once unreferenced and not kept
//
// Any and All compose tasks through handlers. Any unregisters the losing
// handlers as soon as a winner resolves.
//
// Tasks are driven from the goroutine that owns the scripts: natives, the
// schedulers and the thread bridge's sync drain all run there.
package tasks
