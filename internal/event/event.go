// Package event implements the typed event sink: Running/Stdout/Stderr/
// Finished/Failed, plus the JSON-messages-mode BuildScriptDiscovered event.
// Adapted from distri's internal/trace, which emits a similar append-only
// stream of JSON objects to a single sink, but restructured around named
// event variants instead of a generic Chrome-trace record.
package event

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Kind is the variant of a Event.
type Kind string

const (
	Running               Kind = "running"
	Stdout                Kind = "stdout"
	Stderr                Kind = "stderr"
	Finished              Kind = "finished"
	Failed                Kind = "failed"
	BuildScriptDiscovered Kind = "build-script-discovered"
)

// Event is one structured progress/diagnostic event emitted to the caller.
type Event struct {
	Kind Kind   `json:"kind"`
	Unit string `json:"unit"` // human-readable unit identity, e.g. "foo v1.2.3 foo(lib) [target]"

	// CorrelationID lets a JSON consumer join the Stdout/Stderr lines of one
	// compile or build-script run (and the build-script runner's own
	// Running/Finished/Failed events) even when several units stream
	// concurrently. The scheduler's Running/Finished/Failed events leave it
	// empty.
	CorrelationID string `json:"correlation_id"`

	Command  string `json:"command,omitempty"`
	Line     string `json:"line,omitempty"`
	Fresh    *bool  `json:"fresh,omitempty"` // set on Finished: true=Fresh, false=Dirty
	Error    string `json:"error,omitempty"`

	PackageID    string   `json:"package_id,omitempty"`
	LinkedLibs   []string `json:"linked_libs,omitempty"`
	LinkedPaths  []string `json:"linked_paths,omitempty"`
	Cfgs         []string `json:"cfgs,omitempty"`
}

// Sink receives the event stream. A caller wanting the raw struct stream
// (tests, in-process consumers) should implement Sink directly; callers
// wanting cargo's own --message-format=json wire format should wrap a Sink
// around a JSONEncoder.
type Sink interface {
	Emit(Event)
}

// Recorder is a Sink that appends every event to an in-memory slice, used
// by tests to assert ordering properties.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// JSONEncoder is a Sink that writes each event as a line of JSON to w,
// matching cargo's --message-format=json line-delimited protocol.
type JSONEncoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{enc: json.NewEncoder(w)}
}

func (j *JSONEncoder) Emit(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	// Encoder errors here are not actionable by the scheduler; swallow to
	// match the fire-and-forget nature of progress reporting. (Disk-full on
	// the event stream is not distinguished from lost interest from the
	// caller.)
	_ = j.enc.Encode(e)
}

// NewCorrelationID mints a fresh correlation id for a unit about to start
// running.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Multi fans events out to several sinks, e.g. a human-readable log plus a
// Recorder for tests.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
