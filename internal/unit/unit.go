// Package unit defines the Unit identity and the per-build
// Context it is resolved against: host/target triples, job count, and the
// filesystem layout a unit's artifacts live under.
//
// Grounded on distri's internal/build.Ctx, which similarly threads
// Arch/Version/Jobs/Prefix through every build operation and derives
// filesystem paths (FullName, out dirs) from them.
package unit

import (
	"fmt"
	"path/filepath"

	"github.com/raspbian-packages/cargo/internal/model"
)

// Unit is the atom of scheduling: a tuple (Package, Target, Profile, Kind).
// Two units are equal iff all four components are equal.
type Unit struct {
	Package model.PackageID
	Target  model.Target
	Profile model.Profile
	Kind    model.Kind
}

// Key returns a value usable as a map key; model.Target and model.Profile
// contain only comparable fields, so Unit itself is comparable, but Key
// documents the identity contract at call sites that build lookup maps.
func (u Unit) Key() Unit { return u }

// String renders a human-readable identity, used in event.Event.Unit and
// error messages.
func (u Unit) String() string {
	return fmt.Sprintf("%s v%s %s(%s) [%s]", u.Package.Name, u.Package.Version, u.Target.Name, u.Target.Kind, u.Kind)
}

// IsCompileScript reports whether this unit compiles (rather than runs) a
// custom build script.
func (u Unit) IsCompileScript() bool {
	return u.Target.Kind == model.TargetCustomBuild && !u.Profile.RunCustomBuild
}

// IsRunScript reports whether this unit executes a compiled custom build
// script.
func (u Unit) IsRunScript() bool {
	return u.Target.Kind == model.TargetCustomBuild && u.Profile.RunCustomBuild
}

// Context carries configuration and layout shared by every unit in a build.
type Context struct {
	Config *model.BuildConfig
	Layout Layout

	defaultJobs int
}

// NewContext builds a Context from a BuildConfig and a workspace Layout.
// defaultJobs is the fallback job count (typically runtime.NumCPU()) used
// when the config does not pin one.
func NewContext(cfg *model.BuildConfig, layout Layout, defaultJobs int) *Context {
	return &Context{Config: cfg, Layout: layout, defaultJobs: defaultJobs}
}

func (c *Context) HostTriple() string   { return c.Config.HostTriple }
func (c *Context) TargetTriple() string {
	if c.Config.TargetTriple == "" {
		return c.Config.HostTriple
	}
	return c.Config.TargetTriple
}
func (c *Context) Jobs() int { return c.Config.EffectiveJobs(c.defaultJobs) }

// EffectiveKind collapses Host into Target when host and target triples
// coincide.
func (c *Context) EffectiveKind(k model.Kind) model.Kind {
	return c.Config.EffectiveKind(k)
}

// Cfg returns the active configuration predicates for a unit's Kind,
// feeding the CARGO_CFG_* environment variables a build script observes. A
// KV with an empty Value is a bare predicate (e.g. "unix"); a non-empty
// Value makes it a key=value predicate (e.g. target_os="linux"). The base
// set here is the triple-derived predicates every unit of that Kind
// shares; the command builder layers per-unit feature cfgs and consumed
// build-script cfgs on top, while the build-script runner exposes features
// as CARGO_FEATURE_* variables instead.
func (c *Context) Cfg(k model.Kind) []model.KV {
	triple := c.TargetTriple()
	if c.EffectiveKind(k) == model.KindHost {
		triple = c.HostTriple()
	}
	return []model.KV{{Key: "target_triple", Value: triple}}
}

// Layout derives per-unit filesystem locations from the workspace root.
type Layout struct {
	Root string // e.g. target/
}

// OutDir is the out-directory a custom-build execution writes into
// (OUT_DIR).
func (l Layout) OutDir(u Unit) string {
	return filepath.Join(l.Root, "build", unitDirName(u), "out")
}

// ArtifactDir is the directory a unit's compiled output (a library, a
// binary, or a build-script executable) is written into.
func (l Layout) ArtifactDir(u Unit) string {
	return filepath.Join(l.Root, "build", unitDirName(u))
}

// ScriptExeDir is the directory receiving the compiled build-script
// executable; an alias of ArtifactDir kept distinct at call sites that
// specifically mean "the compile-script unit's output."
func (l Layout) ScriptExeDir(u Unit) string {
	return l.ArtifactDir(u)
}

// FingerprintDir is the directory holding this unit's persisted
// fingerprint file.
func (l Layout) FingerprintDir(u Unit) string {
	return filepath.Join(l.Root, ".fingerprint", unitDirName(u))
}

// FingerprintFile is the path to this unit's persisted fingerprint.
func (l Layout) FingerprintFile(u Unit) string {
	return filepath.Join(l.FingerprintDir(u), "fingerprint.json")
}

// OutputFile is the path a build script's raw captured stdout is persisted
// to, for later replay through the cargo: output parser.
func (l Layout) OutputFile(u Unit) string {
	return filepath.Join(l.FingerprintDir(u), "output")
}

// DepInfoFile is the dep-info.json path beside a unit's fingerprint file.
// Nothing in this repository reads or writes it: run-script fingerprints
// are computed without the prior run's rerun-if-changed paths or
// rerun-if-env-changed values.
func (l Layout) DepInfoFile(u Unit) string {
	return filepath.Join(l.FingerprintDir(u), "dep-info.json")
}

func unitDirName(u Unit) string {
	return fmt.Sprintf("%s-%s-%s-%s", u.Package.Name, u.Package.Version, u.Target.Name, u.Kind)
}
