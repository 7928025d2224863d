package buildscript

import (
	"sync"

	"github.com/raspbian-packages/cargo/internal/model"
)

// BuildState is the process-wide map from (PackageId, Kind) to BuildOutput,
// shared across workers under mutual exclusion. Writers
// are build-script workers; readers are compile workers. The scheduler
// guarantees insertion happens-before any dependent unit starts, so no
// additional synchronization beyond the mutex is required for correctness
// — the mutex exists only to make concurrent map access itself safe.
type BuildState struct {
	mu        sync.Mutex
	outputs   map[model.BuildStateKey]model.BuildOutput
	overrides map[model.OverrideKey]model.Override
}

// NewBuildState creates a BuildState with the given static overrides table,
// applied at build-start.
func NewBuildState(overrides map[model.OverrideKey]model.Override) *BuildState {
	s := &BuildState{
		outputs:   make(map[model.BuildStateKey]model.BuildOutput),
		overrides: overrides,
	}
	return s
}

// Override returns the configured override for a links name at a Kind, if
// any. When present, the run-script job for that key is skipped entirely.
func (s *BuildState) Override(linksName string, kind model.Kind) (model.Override, bool) {
	o, ok := s.overrides[model.OverrideKey{LinksName: linksName, Kind: kind}]
	return o, ok
}

// Set records the BuildOutput produced for key, either by a completed
// run-script job or by an override applied at init.
func (s *BuildState) Set(key model.BuildStateKey, out model.BuildOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[key] = out
}

// Get returns the BuildOutput for key, if present.
func (s *BuildState) Get(key model.BuildStateKey) (model.BuildOutput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outputs[key]
	return out, ok
}

// ApplyOverrides seeds the shared map from the overrides table, called once
// before scheduling begins for every package whose links name is
// overridden and appears in the unit graph.
func (s *BuildState) ApplyOverrides(present map[model.BuildStateKey]string) {
	for key, linksName := range present {
		if o, ok := s.Override(linksName, key.Kind); ok {
			s.Set(key, o.Output)
		}
	}
}
