package signal

import (
	"fmt"

	"github.com/wippyai/amx-runtime/amx"
)

// Reason identifies why a native requested suspension.
type Reason uint8

// Tags occupy the high byte of the signal word. The high bit is always set
// so no ordinary small return value decodes as a suspension.
const (
	Await Reason = 0x80 + iota
	WaitTicks
	WaitMs
	WaitForever
	Detach
	Attach
	Sync
	Fork
	ForkCommit
	ForkEnd
	AllocVar
	AllocVarZeroed
	FreeVar

	lastReason = FreeVar
)

// MaxPayload is the largest payload a signal word carries.
const MaxPayload = 1<<24 - 1

var reasonNames = [...]string{
	"await",
	"wait_ticks",
	"wait_ms",
	"wait_forever",
	"detach",
	"attach",
	"sync",
	"fork",
	"fork_commit",
	"fork_end",
	"alloc_var",
	"alloc_var_zeroed",
	"free_var",
}

func (r Reason) String() string {
	if r.Valid() {
		return reasonNames[r-Await]
	}
	return fmt.Sprintf("reason(0x%02X)", uint8(r))
}

// Valid reports whether r is a known tag.
func (r Reason) Valid() bool { return r >= Await && r <= lastReason }

// Suspension is a decoded signal word.
type Suspension struct {
	Reason  Reason
	Payload uint32
}

func (s Suspension) String() string {
	return fmt.Sprintf("%s(%d)", s.Reason, s.Payload)
}

// Encode packs s into a signal word. Payloads above MaxPayload are clamped.
func Encode(s Suspension) amx.Cell {
	p := min(s.Payload, MaxPayload)
	return amx.Cell(uint32(s.Reason)<<24 | p)
}

// Decode unpacks a signal word. It reports false when the tag is unknown.
func Decode(c amx.Cell) (Suspension, bool) {
	r := Reason(uint32(c) >> 24)
	if !r.Valid() {
		return Suspension{}, false
	}
	return Suspension{Reason: r, Payload: uint32(c) & MaxPayload}, true
}

// Raise stores the signal for s in result and makes the running native
// return ErrSleep. It returns the encoded word so natives can write
// `return signal.Raise(m, ...)`.
func Raise(m *amx.Machine, r Reason, payload uint32) amx.Cell {
	m.RaiseError(amx.ErrSleep)
	return Encode(Suspension{Reason: r, Payload: payload})
}

// Payload converts a script cell into a payload, mapping negatives to zero.
// It reports false for values above MaxPayload.
func Payload(v amx.Cell) (uint32, bool) {
	if v < 0 {
		return 0, true
	}
	if uint32(v) > MaxPayload {
		return 0, false
	}
	return uint32(v), true
}
