// Package model defines the data the core accepts from, and hands back to,
// its external collaborators: the resolved dependency graph produced by the
// (out of scope) resolver, the build request a caller wants satisfied, and
// the build configuration governing how units are compiled.
package model

import (
	"fmt"
	"sort"

	"golang.org/x/mod/semver"
)

// PackageID stably identifies a package independent of how it was resolved.
type PackageID struct {
	Name    string
	Version string
	Source  string // e.g. "registry+https://crates.example/index", "path+file:///...", "git+https://..."
}

func (id PackageID) String() string {
	if id.Source == "" {
		return fmt.Sprintf("%s v%s", id.Name, id.Version)
	}
	return fmt.Sprintf("%s v%s (%s)", id.Name, id.Version, id.Source)
}

// TargetKind is the variant of buildable entity within a package.
type TargetKind int

const (
	TargetLibrary TargetKind = iota
	TargetBinary
	TargetExample
	TargetTest
	TargetBenchmark
	TargetCustomBuild
	TargetDocumentation
)

func (k TargetKind) String() string {
	switch k {
	case TargetLibrary:
		return "lib"
	case TargetBinary:
		return "bin"
	case TargetExample:
		return "example"
	case TargetTest:
		return "test"
	case TargetBenchmark:
		return "bench"
	case TargetCustomBuild:
		return "custom-build"
	case TargetDocumentation:
		return "doc"
	default:
		return "unknown"
	}
}

// Target is a buildable entity within a package.
type Target struct {
	Name       string
	Kind       TargetKind
	SourceRoot string // crate-root source file path

	ForHost      bool // plugin/proc-macro-style target; the unit graph takes a unit's Kind from DependencyEdge.ForHost, not from this flag
	Linkable     bool // produces something a dependent can link against
	IsCustomBuild bool
}

// Profile carries the compilation settings applied to a unit.
type Profile struct {
	Name string // e.g. "dev", "release", "test"

	OptLevel        string // "0".."3", "s", "z"
	DebugInfo       bool
	Test            bool
	RunCustomBuild  bool // true only for the synthetic profile executing a build script
	Release         bool
	Incremental     bool
	Strip           bool
}

// Kind is whether a unit is built for the host machine or the ultimate
// target platform.
type Kind int

const (
	KindTarget Kind = iota
	KindHost
)

func (k Kind) String() string {
	if k == KindHost {
		return "host"
	}
	return "target"
}

// Package is immutable manifest metadata for the duration of a build.
type Package struct {
	ID PackageID

	LinksKey       string // the "links=" manifest key, empty if unset
	HasCustomBuild bool
	Targets        []Target
	Features       []string // the full set of features this package declares
}

// DepKind distinguishes the three dependency edges the graph builder must
// treat differently: a plain runtime dependency, a build-time/plugin
// dependency, and a dev-only dependency gated out of non-test profiles.
type DepKind int

const (
	DepNormal DepKind = iota
	DepBuild
	DepDev
)

// DependencyEdge is one edge of the resolved package graph: From depends on
// To.
type DependencyEdge struct {
	From, To PackageID
	Kind     DepKind
	ForHost  bool // plugin/build-time dependency, forces Kind=Host on the derived unit
}

// ResolvedGraph is the external contract the (out of scope) dependency
// resolver hands to the core.
type ResolvedGraph struct {
	Packages map[PackageID]*Package
	Edges    []DependencyEdge
}

func (g *ResolvedGraph) DependenciesOf(id PackageID) []DependencyEdge {
	var out []DependencyEdge
	for _, e := range g.Edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// RootRequest names one target to build, of one package, under one profile.
type RootRequest struct {
	Package PackageID
	Target  string // target name within the package; empty means "the library target"
	Profile string // profile name, resolved against BuildConfig.Profiles
}

// BuildRequest is the list of root targets a caller wants built.
type BuildRequest struct {
	Roots []RootRequest
}

// Override is a preconfigured substitute for a package's build-script
// output, keyed by the package's "links=" name.
type Override struct {
	LinksName string
	Output    BuildOutput
}

// BuildConfig carries the configuration surface a build invocation needs:
// host/target platform, job parallelism, release mode, and per-package
// script-output overrides.
type BuildConfig struct {
	HostTriple   string
	TargetTriple string // empty means "same as host"
	Jobs         int    // positive; 0 means "default to logical CPU count"
	Release      bool
	JSONMessages bool

	Profiles map[string]Profile

	// Overrides maps (links name, Kind) to a preconfigured BuildOutput that
	// replaces script execution for that key entirely.
	Overrides map[OverrideKey]Override

	RustcPath  string
	RustdocPath string
}

// OverrideKey identifies an override entry.
type OverrideKey struct {
	LinksName string
	Kind      Kind
}

// EffectiveKind collapses Host into Target when the two triples coincide, to
// avoid duplicate compilation.
func (c *BuildConfig) EffectiveKind(k Kind) Kind {
	if c.TargetTriple == "" || c.TargetTriple == c.HostTriple {
		return KindTarget
	}
	return k
}

// EffectiveJobs returns the configured job count, defaulting to the
// caller-supplied fallback (typically runtime.NumCPU()) when unset.
func (c *BuildConfig) EffectiveJobs(defaultJobs int) int {
	if c.Jobs > 0 {
		return c.Jobs
	}
	return defaultJobs
}

// BuildOutput is the parsed directives emitted by an executed build script.
type BuildOutput struct {
	LibraryPaths     []string          // ordered, from rustc-link-search
	LibraryLinks     []string          // ordered, from rustc-link-lib / rustc-flags -l
	Cfgs             []string          // set semantics, insertion order preserved for determinism
	Metadata         []KV              // ordered (key, value) pairs consumed by dependents as DEP_*_*
	RerunIfChanged   []string          // ordered paths
	RerunIfEnvChanged []string         // ordered env var names
	Warnings         []string          // ordered, surfaced to the user
}

// KV is an ordered key/value pair.
type KV struct {
	Key, Value string
}

// MetadataValue returns the value for the given metadata key and whether it
// was present. Later occurrences win, matching the parse grammar's
// left-to-right line processing.
func (b BuildOutput) MetadataValue(key string) (string, bool) {
	val, ok := "", false
	for _, kv := range b.Metadata {
		if kv.Key == key {
			val, ok = kv.Value, true
		}
	}
	return val, ok
}

// Equal reports whether two BuildOutputs are equal modulo slice nil-vs-empty
// distinctions, used by the parser round-trip property test.
func (b BuildOutput) Equal(o BuildOutput) bool {
	return stringsEqual(b.LibraryPaths, o.LibraryPaths) &&
		stringsEqual(b.LibraryLinks, o.LibraryLinks) &&
		stringsEqual(b.Cfgs, o.Cfgs) &&
		kvsEqual(b.Metadata, o.Metadata) &&
		stringsEqual(b.RerunIfChanged, o.RerunIfChanged) &&
		stringsEqual(b.RerunIfEnvChanged, o.RerunIfEnvChanged) &&
		stringsEqual(b.Warnings, o.Warnings)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func kvsEqual(a, b []KV) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// BuildStateKey identifies a BuildOutput producer: a package at a given
// Kind.
type BuildStateKey struct {
	Package PackageID
	Kind    Kind
}

// SortedPackageIDs is a small helper for iterating a map of packages
// deterministically (fingerprints and command lines must not depend on map
// iteration order). No component in this repository calls it. Versions within a name are ordered
// semantically (1.9.0 before 1.10.0), not lexicographically.
func SortedPackageIDs(m map[PackageID]*Package) []PackageID {
	ids := make([]PackageID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Name != ids[j].Name {
			return ids[i].Name < ids[j].Name
		}
		return compareVersions(ids[i].Version, ids[j].Version) < 0
	})
	return ids
}

// compareVersions orders two crate version strings semantically via
// golang.org/x/mod/semver, which requires a leading "v"; Cargo versions
// don't carry one, so it's added before comparing. Falls back to a plain
// string compare for non-semver version strings (semver.Compare treats an
// invalid version as sorting before any valid one, which would otherwise
// silently misorder malformed fixture data).
func compareVersions(a, b string) int {
	va, vb := "v"+a, "v"+b
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
