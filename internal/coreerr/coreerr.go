// Package coreerr defines the error kinds the core can fail with, wrapped in distri's xerrors idiom so callers can both print a
// command-identifying message and unwrap to the underlying cause.
package coreerr

import "golang.org/x/xerrors"

// ConfigError reports a problem with the build configuration, discovered
// before scheduling begins (e.g. a missing compiler path).
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return xerrors.Errorf("config: %s: %w", e.Reason, e.Err).Error()
}
func (e *ConfigError) Unwrap() error { return e.Err }

// GraphError reports a structural problem with the unit graph: a cycle or a
// missing dependency. Fatal before any unit is scheduled.
type GraphError struct {
	Reason string
	Cycle  []string // named units forming the cycle, if applicable
}

func (e *GraphError) Error() string {
	if len(e.Cycle) > 0 {
		return xerrors.Errorf("graph: %s: cycle %v", e.Reason, e.Cycle).Error()
	}
	return xerrors.Errorf("graph: %s", e.Reason).Error()
}

// SpawnError reports that a child process could not be started at all.
type SpawnError struct {
	Unit string
	Err  error
}

func (e *SpawnError) Error() string {
	return xerrors.Errorf("spawn %s: %w", e.Unit, e.Err).Error()
}
func (e *SpawnError) Unwrap() error { return e.Err }

// ScriptNonZeroExit reports that a build script exited non-zero.
type ScriptNonZeroExit struct {
	Package string
	Code    int
	Stderr  string
}

func (e *ScriptNonZeroExit) Error() string {
	return xerrors.Errorf("build script for %s exited with code %d: %s", e.Package, e.Code, e.Stderr).Error()
}

// ScriptParseError reports a malformed cargo:key=value line.
type ScriptParseError struct {
	Package string
	Line    string
	Reason  string
}

func (e *ScriptParseError) Error() string {
	return xerrors.Errorf("build script output of %s: %s: %q", e.Package, e.Reason, e.Line).Error()
}

// CompileError reports that the compiler exited non-zero.
type CompileError struct {
	Unit   string
	Code   int
	Stderr string
}

func (e *CompileError) Error() string {
	return xerrors.Errorf("compiling %s failed with code %d: %s", e.Unit, e.Code, e.Stderr).Error()
}

// FingerprintIoError reports a fingerprint file that could not be read or
// written.
type FingerprintIoError struct {
	Unit string
	Err  error
}

func (e *FingerprintIoError) Error() string {
	return xerrors.Errorf("fingerprint for %s: %w", e.Unit, e.Err).Error()
}
func (e *FingerprintIoError) Unwrap() error { return e.Err }

// PanicInCore reports that a worker goroutine panicked; the build is
// aborted with no partial commit.
type PanicInCore struct {
	Unit  string
	Value interface{}
}

func (e *PanicInCore) Error() string {
	return xerrors.Errorf("panic in core while building %s: %v", e.Unit, e.Value).Error()
}
