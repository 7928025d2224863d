package fingerprint

import (
	"os"
	"testing"

	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/unit"
)

func baseInputs() Inputs {
	return Inputs{
		CompilerPath:    "/usr/bin/rustc",
		CompilerVersion: "1.70.0",
		CommandLine:     []string{"--crate-name", "foo"},
		Features:        []string{"b", "a"},
		Kind:            model.KindTarget,
		TargetTriple:    "x86_64-unknown-linux-gnu",
		Profile:         model.Profile{Name: "dev", OptLevel: "0"},
		SourceFiles:     []SourceFile{{Path: "src/lib.rs", Hash: "abc"}},
	}
}

// Compute must be deterministic regardless of map-derived ordering: two
// equal Inputs values always hash to the same Fingerprint.
func TestComputeDeterministic(t *testing.T) {
	a := Compute(baseInputs())
	b := Compute(baseInputs())
	if a.Hash != b.Hash {
		t.Fatalf("Compute is not deterministic: %q != %q", a.Hash, b.Hash)
	}
}

// Feature order must not affect the hash (Features is sorted internally)
// but Features must affect the hash.
func TestComputeFeatureOrderInsensitive(t *testing.T) {
	in1 := baseInputs()
	in1.Features = []string{"a", "b"}
	in2 := baseInputs()
	in2.Features = []string{"b", "a"}
	if Compute(in1).Hash != Compute(in2).Hash {
		t.Error("feature order should not change the fingerprint")
	}

	in3 := baseInputs()
	in3.Features = []string{"a"}
	if Compute(in1).Hash == Compute(in3).Hash {
		t.Error("different feature sets should produce different fingerprints")
	}
}

// DependencyFingerprints order must matter: it is deliberately not sorted,
// since the caller's topological dependency order is itself significant.
func TestComputeDependencyOrderSensitive(t *testing.T) {
	in1 := baseInputs()
	in1.DependencyFingerprints = []string{"x", "y"}
	in2 := baseInputs()
	in2.DependencyFingerprints = []string{"y", "x"}
	if Compute(in1).Hash == Compute(in2).Hash {
		t.Error("dependency fingerprint order should change the hash")
	}
}

func tmpEngine(t *testing.T) *Engine {
	t.Helper()
	return &Engine{Layout: unit.Layout{Root: t.TempDir()}}
}

func testUnit() unit.Unit {
	return unit.Unit{
		Package: model.PackageID{Name: "foo", Version: "1.0.0"},
		Target:  model.Target{Name: "foo", Kind: model.TargetLibrary},
		Profile: model.Profile{Name: "dev"},
		Kind:    model.KindTarget,
	}
}

func TestDecideNoPriorFingerprintIsDirty(t *testing.T) {
	e := tmpEngine(t)
	u := testUnit()
	d, err := e.Decide(u, baseInputs())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Verdict != Dirty {
		t.Errorf("Verdict = %v, want Dirty (no prior fingerprint)", d.Verdict)
	}
}

func TestDecidePersistThenFresh(t *testing.T) {
	e := tmpEngine(t)
	u := testUnit()
	in := baseInputs()

	d1, err := e.Decide(u, in)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := e.Persist(u, d1.Fingerprint); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	d2, err := e.Decide(u, in)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d2.Verdict != Fresh {
		t.Errorf("Verdict = %v, want Fresh after persisting an identical fingerprint", d2.Verdict)
	}
	if d2.Fingerprint.Hash != d1.Fingerprint.Hash {
		t.Errorf("fingerprint changed between identical builds: %q != %q", d1.Fingerprint.Hash, d2.Fingerprint.Hash)
	}
}

func TestDecideChangedInputsIsDirty(t *testing.T) {
	e := tmpEngine(t)
	u := testUnit()
	in := baseInputs()

	d1, err := e.Decide(u, in)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := e.Persist(u, d1.Fingerprint); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	in2 := baseInputs()
	in2.CommandLine = append(in2.CommandLine, "--cfg", "new_feature")
	d2, err := e.Decide(u, in2)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d2.Verdict != Dirty {
		t.Error("changed command line should produce Dirty")
	}
}

func TestDecideAnyDependencyDirtyForcesDirty(t *testing.T) {
	e := tmpEngine(t)
	u := testUnit()
	in := baseInputs()

	d1, _ := e.Decide(u, in)
	_ = e.Persist(u, d1.Fingerprint)

	in2 := baseInputs()
	in2.AnyDependencyDirty = true
	d2, err := e.Decide(u, in2)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d2.Verdict != Dirty {
		t.Error("a dirty dependency should force Dirty regardless of hash match")
	}
}

func TestDecideOverriddenAlwaysFresh(t *testing.T) {
	e := tmpEngine(t)
	u := testUnit()
	in := baseInputs()
	in.Overridden = true
	in.AnyDependencyDirty = true // even with a dirty dependency

	d, err := e.Decide(u, in)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Verdict != Fresh {
		t.Error("an overridden script execution must always be Fresh")
	}
}

func TestDecideRerunIfChangedMissingIsDirty(t *testing.T) {
	e := tmpEngine(t)
	u := testUnit()
	in := baseInputs()

	d1, _ := e.Decide(u, in)
	_ = e.Persist(u, d1.Fingerprint)

	in2 := baseInputs()
	in2.RerunIfChangedMissing = true
	d2, err := e.Decide(u, in2)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d2.Verdict != Dirty {
		t.Error("a missing rerun-if-changed path should force Dirty")
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/lib.rs"
	if err := os.WriteFile(path, []byte("fn main() {}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sf1, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	sf2, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if sf1.Hash != sf2.Hash {
		t.Error("HashFile should be deterministic for unchanged content")
	}
	if err := os.WriteFile(path, []byte("fn main() { panic!() }"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sf3, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if sf3.Hash == sf1.Hash {
		t.Error("HashFile should change when content changes")
	}
}
