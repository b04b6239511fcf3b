// Package resource provides reference-counted handle tables.
//
// Scripts only see cells, so host-side objects such as tasks, scratch
// variables and native hooks are handed out as small integer handles. A
// Table maps handles to Go values tagged with a Kind:
//
//	table := resource.NewTable(0)
//
//	// Insert a value, get a handle
//	h, err := table.Insert(resource.KindTask, task)
//
//	// Kind-checked retrieval
//	v, ok := table.Get(h, resource.KindTask)       // ok
//	v, ok = table.Get(h, resource.KindScratchVar)  // !ok
//
// # Reference Counting
//
// Acquire and Release maintain a reference count per handle. Remove refuses
// to drop a value while references are outstanding; ForceRemove does not.
// Owners decide when an unreferenced value is collected.
//
// # Limits
//
// A table created with a positive limit rejects inserts beyond it with
// ErrFull, leaving the table unchanged.
//
// # Observers
//
// Observers receive created, dropped, acquired and released events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//		log.Printf("%v %d", e.Kind, e.Handle)
//	}))
package resource
