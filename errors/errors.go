package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // program loading and validation
	PhaseParse    Phase = "parse"    // assembler source
	PhaseExec     Phase = "exec"     // wrapped execution entry point
	PhaseNative   Phase = "native"   // native function calls
	PhaseFork     Phase = "fork"     // fork dispatch
	PhaseTask     Phase = "task"     // task engine
	PhaseThread   Phase = "thread"   // worker threads
	PhaseSchedule Phase = "schedule" // tick and timer schedulers
	PhaseConfig   Phase = "config"   // configuration files
	PhaseWasm     Phase = "wasm"     // wasm-hosted natives
)

// Kind categorizes the error
type Kind string

const (
	KindFault          Kind = "fault"
	KindMisuse         Kind = "misuse"
	KindExhausted      Kind = "exhausted"
	KindDeadTarget     Kind = "dead_target"
	KindInitFailed     Kind = "init_failed"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidData    Kind = "invalid_data"
	KindNotInitialized Kind = "not_initialized"
	KindUnsupported    Kind = "unsupported"
	KindInstantiation  Kind = "instantiation"
	KindUnbound        Kind = "unbound"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Native    string
	Detail    string
	Code      uint32
	Corrupted bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Native != "" {
		b.WriteString(" in ")
		b.WriteString(e.Native)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (code 0x%08X", e.Code)
		if e.Corrupted {
			b.WriteString(", memory possibly corrupted")
		}
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Native sets the native function name
func (b *Builder) Native(name string) *Builder {
	b.err.Native = name
	return b
}

// Code sets the platform fault code
func (b *Builder) Code(code uint32) *Builder {
	b.err.Code = code
	return b
}

// Corrupted marks the fault as leaving memory in an undefined state
func (b *Builder) Corrupted(c bool) *Builder {
	b.err.Corrupted = c
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Fault creates a native fault error carrying the platform code
func Fault(native string, code uint32, corrupted bool, detail string) *Error {
	return &Error{
		Phase:     PhaseNative,
		Kind:      KindFault,
		Native:    native,
		Code:      code,
		Corrupted: corrupted,
		Detail:    detail,
	}
}

// Misuse creates a protocol misuse error. These are logged, never returned
// to scripts.
func Misuse(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMisuse,
		Detail: detail,
	}
}

// Exhausted creates a resource exhaustion error
func Exhausted(phase Phase, what string, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindExhausted,
		Detail: fmt.Sprintf("%s full (limit %d)", what, limit),
		Value:  limit,
	}
}

// DeadTarget creates an error for a resumption against an unloaded machine
func DeadTarget(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDeadTarget,
		Detail: detail,
	}
}

// InitFailed creates an initialization failure error
func InitFailed(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInitFailed,
		Detail: fmt.Sprintf("initialize %s", what),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnboundNativesError is returned when a program imports natives that no
// library provides.
type UnboundNativesError struct {
	Natives []string
}

// NewUnboundNativesError creates an error listing the unbound imports
func NewUnboundNativesError(natives []string) *UnboundNativesError {
	return &UnboundNativesError{Natives: append([]string(nil), natives...)}
}

func (e *UnboundNativesError) Error() string {
	if len(e.Natives) == 0 {
		return "[load] unbound: no natives specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d native(s):\n", len(e.Natives))
	for _, n := range e.Natives {
		b.WriteString("  - ")
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnboundNativesError) Is(target error) bool {
	_, ok := target.(*UnboundNativesError)
	return ok
}

// Runtime package convenience constructors

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseWasm,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a program loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
