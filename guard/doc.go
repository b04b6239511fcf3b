// Package guard isolates faults raised by native functions.
//
// Call runs a native under a recover boundary and turns runtime panics into
// structured fault errors carrying an NTSTATUS-style FaultCode. Wasm-hosted
// natives never panic on bad memory access; their traps come back as
// errors and FromTrap maps them onto the same codes.
//
// Access violations and stack overflows are flagged as possibly corrupting
// host memory. Everything else is reported as a clean failure.
package guard
