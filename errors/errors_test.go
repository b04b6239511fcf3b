package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "native fault",
			err: &Error{
				Phase:     PhaseNative,
				Kind:      KindFault,
				Native:    "peek",
				Code:      0xC0000005,
				Corrupted: true,
				Detail:    "invalid memory address",
			},
			contains: []string{"[native]", "fault", "in peek", "invalid memory address", "0xC0000005", "possibly corrupted"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseFork,
				Kind:  KindMisuse,
			},
			contains: []string{"[fork]", "misuse"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseWasm,
				Kind:   KindInstantiation,
				Detail: "instantiate module",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[wasm]", "instantiation", "instantiate module", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !containsSubstring(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_ErrorWithoutCode(t *testing.T) {
	err := &Error{Phase: PhaseTask, Kind: KindNotFound, Detail: "task 4"}
	if containsSubstring(err.Error(), "code") {
		t.Errorf("error without code mentions one: %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	// Test with errors.Unwrap
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:  PhaseNative,
		Kind:   KindFault,
		Native: "foo",
	}

	// Same phase and kind
	if !err.Is(&Error{Phase: PhaseNative, Kind: KindFault}) {
		t.Error("Is should match same phase and kind")
	}

	// Different phase
	if err.Is(&Error{Phase: PhaseWasm, Kind: KindFault}) {
		t.Error("Is should not match different phase")
	}

	// Different kind
	if err.Is(&Error{Phase: PhaseNative, Kind: KindMisuse}) {
		t.Error("Is should not match different kind")
	}

	// Test with errors.Is
	target := &Error{Phase: PhaseNative, Kind: KindFault}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseNative, KindFault).
		Native("divide").
		Code(0xC0000094).
		Corrupted(false).
		Value(42).
		Cause(cause).
		Detail("integer %s by %s", "divide", "zero").
		Build()

	if err.Phase != PhaseNative {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseNative)
	}
	if err.Kind != KindFault {
		t.Errorf("Kind = %v, want %v", err.Kind, KindFault)
	}
	if err.Native != "divide" {
		t.Errorf("Native = %v, want 'divide'", err.Native)
	}
	if err.Code != 0xC0000094 {
		t.Errorf("Code = %#x", err.Code)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "integer divide by zero" {
		t.Errorf("Detail = %v, want 'integer divide by zero'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Fault", func(t *testing.T) {
		err := Fault("peek", 0xC0000005, true, "nil dereference")
		if err.Kind != KindFault || err.Phase != PhaseNative {
			t.Errorf("Phase=%v Kind=%v", err.Phase, err.Kind)
		}
		if !err.Corrupted || err.Native != "peek" {
			t.Errorf("Corrupted=%v Native=%v", err.Corrupted, err.Native)
		}
	})

	t.Run("Misuse", func(t *testing.T) {
		err := Misuse(PhaseThread, "thread_sync outside a worker")
		if err.Kind != KindMisuse {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMisuse)
		}
	})

	t.Run("Exhausted", func(t *testing.T) {
		err := Exhausted(PhaseNative, "hook table", 8)
		if err.Kind != KindExhausted {
			t.Errorf("Kind = %v, want %v", err.Kind, KindExhausted)
		}
		if !containsSubstring(err.Detail, "8") || err.Value != 8 {
			t.Errorf("Detail = %v, Value = %v", err.Detail, err.Value)
		}
	})

	t.Run("DeadTarget", func(t *testing.T) {
		err := DeadTarget(PhaseTask, "machine unloaded")
		if err.Kind != KindDeadTarget {
			t.Errorf("Kind = %v, want %v", err.Kind, KindDeadTarget)
		}
	})

	t.Run("InitFailed", func(t *testing.T) {
		cause := errors.New("no memory")
		err := InitFailed(PhaseFork, "clone", cause)
		if err.Kind != KindInitFailed || !errors.Is(err, cause) {
			t.Errorf("Kind = %v, cause chain broken", err.Kind)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseWasm, "i64 parameters")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := NotFound(PhaseExec, "public", "tick")
		if err.Kind != KindNotFound || !containsSubstring(err.Detail, `"tick"`) {
			t.Errorf("Kind = %v Detail = %v", err.Kind, err.Detail)
		}
	})

	t.Run("ParseFailed", func(t *testing.T) {
		err := ParseFailed("script.pasm", errors.New("line 3"))
		if err.Phase != PhaseParse || !containsSubstring(err.Error(), "line 3") {
			t.Errorf("unexpected error %v", err)
		}
	})
}

func TestUnboundNativesError(t *testing.T) {
	t.Run("lists natives", func(t *testing.T) {
		err := NewUnboundNativesError([]string{"print", "beep"})
		msg := err.Error()
		if !containsSubstring(msg, "missing 2 native") {
			t.Errorf("error should contain count: %s", msg)
		}
		if !containsSubstring(msg, "- print") || !containsSubstring(msg, "- beep") {
			t.Errorf("error should list natives: %s", msg)
		}
	})

	t.Run("empty", func(t *testing.T) {
		err := NewUnboundNativesError(nil)
		if !containsSubstring(err.Error(), "no natives specified") {
			t.Errorf("empty error should have specific message, got: %s", err.Error())
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewUnboundNativesError([]string{"x"})
		if !errors.Is(err, &UnboundNativesError{}) {
			t.Error("errors.Is should match UnboundNativesError")
		}
	})
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && containsSubstringHelper(s, substr)))
}

func containsSubstringHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
