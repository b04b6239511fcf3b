// Package reset captures and restores machine state.
//
// A Snapshot holds the register file, owned copies of parts of the heap and
// stack, and optionally the innermost execution context moved out of the
// registry. The copied ranges depend on the granularity:
//
//	            heap                 stack
//	Frame       [ResetHea, HEA)      [STK, FRM+12+argbytes)
//	Context     [ResetHea, HEA)      [STK, ResetStk)
//	Full        [HLW, HEA)           [STK, STP)
//
// Narrow granularities are only safe when nothing writes the uncopied
// memory between capture and restore.
//
// Snapshots reference their instance weakly. Restoring into a machine that
// was removed from the registry is a no-op that returns false.
package reset
