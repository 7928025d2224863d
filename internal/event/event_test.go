package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRecorderPreservesEmitOrder(t *testing.T) {
	r := &Recorder{}
	r.Emit(Event{Kind: Running, Unit: "a"})
	r.Emit(Event{Kind: Stdout, Unit: "a", Line: "building"})
	r.Emit(Event{Kind: Finished, Unit: "a"})

	got := r.Events()
	if len(got) != 3 {
		t.Fatalf("len(Events()) = %d, want 3", len(got))
	}
	wantKinds := []Kind{Running, Stdout, Finished}
	for i, e := range got {
		if e.Kind != wantKinds[i] {
			t.Errorf("Events()[%d].Kind = %v, want %v", i, e.Kind, wantKinds[i])
		}
	}
}

func TestRecorderEventsReturnsACopy(t *testing.T) {
	r := &Recorder{}
	r.Emit(Event{Kind: Running})
	got := r.Events()
	got[0].Kind = Failed

	again := r.Events()
	if again[0].Kind != Running {
		t.Error("mutating a returned slice should not affect the recorder's internal state")
	}
}

func TestJSONEncoderEmitsLineDelimitedJSON(t *testing.T) {
	var buf bytes.Buffer
	enc := NewJSONEncoder(&buf)
	enc.Emit(Event{Kind: Stdout, Unit: "foo v1.0.0 lib(lib) [target]", Line: "compiling"})
	enc.Emit(Event{Kind: Finished, Unit: "foo v1.0.0 lib(lib) [target]"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d: %q", len(lines), buf.String())
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if e.Kind != Stdout || e.Line != "compiling" {
		t.Errorf("decoded event = %+v, want Kind=stdout Line=compiling", e)
	}
}

func TestMultiFansOutToEverySink(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b}
	m.Emit(Event{Kind: Running})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Error("Multi.Emit should deliver to every sink")
	}
}

func TestNewCorrelationIDIsUniquePerCall(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	if a == b {
		t.Error("expected distinct correlation ids across calls")
	}
	if a == "" {
		t.Error("expected a non-empty correlation id")
	}
}
