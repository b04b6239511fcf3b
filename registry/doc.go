// Package registry keeps the host-side state of every machine.
//
// An Instance is created lazily for each machine the engine touches. It
// holds extras, arbitrary per-machine state keyed by Go type, and a stack
// of execution contexts, one per nested call into the machine:
//
//	inst := reg.Get(m)
//	vars := registry.ExtraOf(inst, newScratchTable)
//
//	ctx := inst.PushContext(entry)
//	ctx.AddGuard(func() { pool.Release(id) })
//	...
//	inst.PopContext().Close() // guards run in reverse order
//
// Removing a machine invalidates its instance. Snapshots hold instances
// through weak pointers and refuse to restore into invalid ones.
//
// The registry map is guarded by a mutex. Instances and contexts are owned
// by whichever goroutine currently runs the machine.
package registry
