// Package fingerprint implements C3: the deterministic summary of every
// input that could invalidate a unit's output, compared against the
// on-disk record from the prior build to decide Freshness.
//
// Grounded on distri's internal/build.Ctx.Digest, which hashes the
// package's proto-text, its globbed build/runtime dependency names, and its
// cherry-pick patch file contents with fnv.New128a, caching the result on
// the Ctx. The same "hash everything that could change the output, in a
// fixed field order" approach is used here, widened to the fuller input
// list a build-script-aware fingerprint needs, and persisted with distri's renameio atomic-
// write idiom instead of Ctx's plain ioutil.TempFile (a fingerprint file is
// read back and compared on every subsequent build, so a torn write must
// not be observable).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/raspbian-packages/cargo/internal/coreerr"
	"github.com/raspbian-packages/cargo/internal/fsx"
	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/unit"
)

// Verdict is whether a unit can be skipped.
type Verdict int

const (
	Dirty Verdict = iota
	Fresh
)

func (v Verdict) String() string {
	if v == Fresh {
		return "fresh"
	}
	return "dirty"
}

// SourceFile is one file reachable from a unit's crate root, stamped by
// content hash.
type SourceFile struct {
	Path string
	Hash string // hex sha256 of the file's content
}

// HashFile computes the SourceFile stamp for path.
func HashFile(path string) (SourceFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return SourceFile{}, err
	}
	sum := sha256.Sum256(b)
	return SourceFile{Path: path, Hash: hex.EncodeToString(sum[:])}, nil
}

// Inputs is every field that can invalidate a unit's output, already
// resolved by the caller (the scheduler, which alone knows dependency order
// and which build scripts a unit consumes).
type Inputs struct {
	CompilerPath    string
	CompilerVersion string
	CommandLine     []string // the canonical command this unit would run, from internal/command
	Features        []string // any order; Compute hashes a sorted copy
	Kind            model.Kind
	TargetTriple    string
	Profile         model.Profile

	// DependencyFingerprints are the already-computed hashes of this unit's
	// dependencies, in dependency order. Order-sensitive: do not sort.
	DependencyFingerprints []string
	// AnyDependencyDirty forces this unit Dirty regardless of hash
	// equality, implementing the transitive-dirty edge case.
	AnyDependencyDirty bool

	SourceFiles []SourceFile // per-file content stamps, already hashed

	// The following three apply only to run-script units.
	RerunIfChanged    []SourceFile // hashes of paths from the prior run's rerun-if-changed list
	RerunIfChangedMissing bool     // true if any declared path no longer exists
	EnvValues         []model.KV  // values of env vars named by rerun-if-env-changed, in declared order

	// ConsumedBuildScriptFingerprints are the fingerprints of the build
	// scripts this unit depends on, in BuildScripts
	// to_link order.
	ConsumedBuildScriptFingerprints []string

	// Overridden is true when this unit's script execution was replaced by
	// a configured override; overridden scripts are always Fresh for the
	// script execution itself.
	Overridden bool
}

// Fingerprint is the computed, comparable summary.
type Fingerprint struct {
	Hash string `json:"hash"`
}

// Compute hashes Inputs into a Fingerprint. Field order is fixed, matching
// the Inputs struct field order, so that two equivalent builds produce
// byte-identical fingerprints.
func Compute(in Inputs) Fingerprint {
	h := sha256.New()
	write := func(s string) { fmt.Fprintf(h, "%d:%s,", len(s), s) }
	writeAll := func(ss []string) {
		for _, s := range ss {
			write(s)
		}
		write("--")
	}

	write(in.CompilerPath)
	write(in.CompilerVersion)
	writeAll(in.CommandLine)
	writeAll(sortedCopy(in.Features))
	write(in.Kind.String())
	write(in.TargetTriple)
	write(profileKey(in.Profile))
	writeAll(in.DependencyFingerprints) // order preserved, not sorted

	for _, sf := range in.SourceFiles {
		write(sf.Path)
		write(sf.Hash)
	}
	write("--")

	for _, sf := range in.RerunIfChanged {
		write(sf.Path)
		write(sf.Hash)
	}
	write(fmt.Sprintf("missing=%v", in.RerunIfChangedMissing))
	for _, kv := range in.EnvValues {
		write(kv.Key)
		write(kv.Value)
	}
	write("--")

	writeAll(in.ConsumedBuildScriptFingerprints)

	return Fingerprint{Hash: hex.EncodeToString(h.Sum(nil))}
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func profileKey(p model.Profile) string {
	return strings.Join([]string{
		p.Name, p.OptLevel,
		boolStr(p.DebugInfo), boolStr(p.Test), boolStr(p.RunCustomBuild),
		boolStr(p.Release), boolStr(p.Incremental), boolStr(p.Strip),
	}, "|")
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// record is the on-disk shape of a persisted fingerprint.
type record struct {
	Fingerprint Fingerprint `json:"fingerprint"`
}

// Decision is the outcome of evaluating a unit's freshness.
type Decision struct {
	Verdict     Verdict
	Fingerprint Fingerprint
}

// Engine evaluates and persists fingerprints under a workspace Layout.
type Engine struct {
	Layout unit.Layout
}

// Decide computes u's fingerprint from in and compares it against the
// on-disk record, handling the following edge cases:
//   - no prior fingerprint  -> Dirty
//   - any dependency dirty  -> Dirty (transitively)
//   - rerun-if-changed path missing -> Dirty (run-script units)
//   - overridden script     -> always Fresh
func (e *Engine) Decide(u unit.Unit, in Inputs) (Decision, error) {
	fp := Compute(in)

	if in.Overridden {
		return Decision{Verdict: Fresh, Fingerprint: fp}, nil
	}
	if in.AnyDependencyDirty {
		return Decision{Verdict: Dirty, Fingerprint: fp}, nil
	}
	if in.RerunIfChangedMissing {
		return Decision{Verdict: Dirty, Fingerprint: fp}, nil
	}

	prior, err := e.read(u)
	if err != nil {
		if os.IsNotExist(err) {
			return Decision{Verdict: Dirty, Fingerprint: fp}, nil
		}
		return Decision{}, &coreerr.FingerprintIoError{Unit: u.String(), Err: err}
	}
	if prior.Fingerprint.Hash != fp.Hash {
		return Decision{Verdict: Dirty, Fingerprint: fp}, nil
	}
	return Decision{Verdict: Fresh, Fingerprint: fp}, nil
}

func (e *Engine) read(u unit.Unit) (record, error) {
	b, err := fsx.ReadFile(e.Layout.FingerprintFile(u))
	if err != nil {
		return record{}, err
	}
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return record{}, err
	}
	return r, nil
}

// Persist atomically writes fp to disk as u's new fingerprint record, so a
// subsequent build's Decide sees this build's output as the new baseline.
func (e *Engine) Persist(u unit.Unit, fp Fingerprint) error {
	b, err := json.Marshal(record{Fingerprint: fp})
	if err != nil {
		return &coreerr.FingerprintIoError{Unit: u.String(), Err: err}
	}
	if err := fsx.WriteAtomic(e.Layout.FingerprintFile(u), b, 0o644); err != nil {
		return &coreerr.FingerprintIoError{Unit: u.String(), Err: err}
	}
	return nil
}

// VerifyUnchanged re-reads the on-disk fingerprint and confirms it still
// matches fp, guarding against a concurrent build of the same unit racing
// this one between Decide and Persist.
func (e *Engine) VerifyUnchanged(u unit.Unit, fp Fingerprint) (bool, error) {
	prior, err := e.read(u)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &coreerr.FingerprintIoError{Unit: u.String(), Err: err}
	}
	return prior.Fingerprint.Hash == fp.Hash, nil
}
