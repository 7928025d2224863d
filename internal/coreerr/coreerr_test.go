package coreerr

import (
	"errors"
	"testing"
)

func TestConfigErrorUnwrapsToInnerError(t *testing.T) {
	inner := errors.New("missing rustc path")
	err := &ConfigError{Reason: "no compiler configured", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped inner error")
	}
	if got := err.Error(); got == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestGraphErrorFormatsCycleWhenPresent(t *testing.T) {
	withCycle := &GraphError{Reason: "dependency cycle", Cycle: []string{"a", "b", "a"}}
	withoutCycle := &GraphError{Reason: "missing dependency"}

	if !contains(withCycle.Error(), "cycle") {
		t.Errorf("expected cycle in message, got %q", withCycle.Error())
	}
	if contains(withoutCycle.Error(), "cycle") {
		t.Errorf("did not expect cycle in message, got %q", withoutCycle.Error())
	}
}

func TestScriptNonZeroExitIncludesCodeAndStderr(t *testing.T) {
	err := &ScriptNonZeroExit{Package: "foo", Code: 1, Stderr: "panicked at src/build.rs"}
	msg := err.Error()
	if !contains(msg, "foo") || !contains(msg, "panicked at src/build.rs") {
		t.Errorf("Error() = %q, want it to mention package and stderr", msg)
	}
}

func TestSpawnErrorUnwraps(t *testing.T) {
	inner := errors.New("exec: not found")
	err := &SpawnError{Unit: "foo v1.0.0", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped inner error")
	}
}

func TestFingerprintIoErrorUnwraps(t *testing.T) {
	inner := errors.New("permission denied")
	err := &FingerprintIoError{Unit: "foo v1.0.0", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped inner error")
	}
}

func TestPanicInCoreIncludesValue(t *testing.T) {
	err := &PanicInCore{Unit: "foo v1.0.0", Value: "index out of range"}
	if !contains(err.Error(), "index out of range") {
		t.Errorf("Error() = %q, want it to mention the panic value", err.Error())
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
