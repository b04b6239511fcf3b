// Package errors provides structured error types for the amx runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Native faults additionally carry the native name, a platform
// fault code and whether the fault may have left memory corrupted.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseNative, errors.KindFault).
//		Native("print_number").
//		Code(0xC0000005).
//		Corrupted(true).
//		Detail("invalid memory address").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Misuse(errors.PhaseFork, "fork_commit outside a fork")
//	err := errors.Exhausted(errors.PhaseNative, "hook table", 64)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
