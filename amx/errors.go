package amx

import "strconv"

// Cell is the machine word.
type Cell = int32

// CellSize is the size of a cell in bytes.
const CellSize = 4

// Error is a status code returned by the machine. The numbering matches the
// AMX error codes so scripts and hosts can share constants.
type Error int32

const (
	ErrNone      Error = 0
	ErrExit      Error = 1
	ErrAssert    Error = 2
	ErrStackErr  Error = 3
	ErrBounds    Error = 4
	ErrMemAccess Error = 5
	ErrInvInstr  Error = 6
	ErrStackLow  Error = 7
	ErrHeapLow   Error = 8
	ErrCallback  Error = 9
	ErrNative    Error = 10
	ErrDivide    Error = 11
	ErrSleep     Error = 12
	ErrInvState  Error = 13
	ErrMemory    Error = 16
	ErrFormat    Error = 17
	ErrVersion   Error = 18
	ErrNotFound  Error = 19
	ErrIndex     Error = 20
	ErrDebug     Error = 21
	ErrInit      Error = 22
	ErrUserData  Error = 23
	ErrInitJIT   Error = 24
	ErrParams    Error = 25
	ErrDomain    Error = 26
	ErrGeneral   Error = 27
)

var errorNames = map[Error]string{
	ErrNone:      "no error",
	ErrExit:      "forced exit",
	ErrAssert:    "assertion failed",
	ErrStackErr:  "stack/heap collision",
	ErrBounds:    "index out of bounds",
	ErrMemAccess: "invalid memory access",
	ErrInvInstr:  "invalid instruction",
	ErrStackLow:  "stack underflow",
	ErrHeapLow:   "heap underflow",
	ErrCallback:  "no callback, or invalid callback",
	ErrNative:    "native function failed",
	ErrDivide:    "divide by zero",
	ErrSleep:     "go into sleepmode",
	ErrInvState:  "invalid state for this access",
	ErrMemory:    "out of memory",
	ErrFormat:    "invalid file format",
	ErrVersion:   "file is for a newer version of the AMX",
	ErrNotFound:  "function not found",
	ErrIndex:     "invalid index parameter",
	ErrDebug:     "debugger cannot run",
	ErrInit:      "AMX not initialized",
	ErrUserData:  "unable to set user data field",
	ErrInitJIT:   "cannot initialize the JIT",
	ErrParams:    "parameter error",
	ErrDomain:    "domain error",
	ErrGeneral:   "general error",
}

// Error implements the error interface.
func (e Error) Error() string {
	if s, ok := errorNames[e]; ok {
		return s
	}
	return "unknown error " + strconv.Itoa(int(e))
}

// Code returns the numeric value of e.
func (e Error) Code() int {
	return int(e)
}
