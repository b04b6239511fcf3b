package guard

import (
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/amx-runtime/errors"
)

// FaultCode is an NTSTATUS-style code identifying a native fault.
type FaultCode uint32

const (
	Unsuccessful       FaultCode = 0xC0000001
	AccessViolation    FaultCode = 0xC0000005
	IllegalInstruction FaultCode = 0xC000001D
	ArrayBounds        FaultCode = 0xC000008C
	IntDivideByZero    FaultCode = 0xC0000094
	IntOverflow        FaultCode = 0xC0000095
	StackOverflow      FaultCode = 0xC00000FD
	Panic              FaultCode = 0xE0000001
)

var faultNames = map[FaultCode]string{
	Unsuccessful:       "native failure",
	AccessViolation:    "access violation",
	IllegalInstruction: "illegal instruction",
	ArrayBounds:        "array bounds exceeded",
	IntDivideByZero:    "integer divide by zero",
	IntOverflow:        "integer overflow",
	StackOverflow:      "stack overflow",
	Panic:              "native panic",
}

func (c FaultCode) String() string {
	if s, ok := faultNames[c]; ok {
		return s
	}
	return fmt.Sprintf("fault 0x%08X", uint32(c))
}

// Corrupting reports faults after which host memory may be inconsistent.
func (c FaultCode) Corrupting() bool {
	return c == AccessViolation || c == StackOverflow
}

// Fault builds the structured error for a fault of native.
func Fault(native string, code FaultCode, detail string) *errors.Error {
	if detail == "" {
		detail = code.String()
	}
	return errors.Fault(native, uint32(code), code.Corrupting(), detail)
}

// Call runs fn and converts a panic inside it into a fault error. Go stack
// exhaustion aborts the process and cannot be caught here.
func Call(native string, fn func()) (err *errors.Error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		code, detail := classify(r)
		err = Fault(native, code, detail)
		if cause, ok := r.(error); ok {
			err.Cause = cause
		}
		Logger().Error("native fault",
			zap.String("native", native),
			zap.Stringer("code", code),
			zap.Bool("corrupted", code.Corrupting()),
			zap.Any("panic", r))
	}()
	fn()
	return nil
}

func classify(r any) (FaultCode, string) {
	re, ok := r.(runtime.Error)
	if !ok {
		return Panic, fmt.Sprint(r)
	}
	msg := re.Error()
	switch {
	case strings.Contains(msg, "invalid memory address"), strings.Contains(msg, "nil pointer"):
		return AccessViolation, msg
	case strings.Contains(msg, "index out of range"), strings.Contains(msg, "slice bounds out of range"):
		return ArrayBounds, msg
	case strings.Contains(msg, "integer divide by zero"):
		return IntDivideByZero, msg
	case strings.Contains(msg, "integer overflow"):
		return IntOverflow, msg
	}
	return Unsuccessful, msg
}

var trapCodes = []struct {
	text string
	code FaultCode
}{
	{"out of bounds memory access", AccessViolation},
	{"invalid table access", ArrayBounds},
	{"indirect call type mismatch", AccessViolation},
	{"integer divide by zero", IntDivideByZero},
	{"integer overflow", IntOverflow},
	{"invalid conversion to integer", IntOverflow},
	{"stack overflow", StackOverflow},
	{"unreachable", IllegalInstruction},
}

// FromTrap classifies an error returned by a wasm call. It reports false
// for errors that are not traps.
func FromTrap(err error) (FaultCode, bool) {
	if err == nil {
		return 0, false
	}
	msg := err.Error()
	if !strings.Contains(msg, "wasm error:") {
		return 0, false
	}
	for _, t := range trapCodes {
		if strings.Contains(msg, t.text) {
			return t.code, true
		}
	}
	return Unsuccessful, true
}
