package command

import (
	"testing"

	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/unit"
	"github.com/raspbian-packages/cargo/internal/unitgraph"
)

type fakeState map[model.BuildStateKey]model.BuildOutput

func (s fakeState) Get(k model.BuildStateKey) (model.BuildOutput, bool) {
	v, ok := s[k]
	return v, ok
}

func testCtx() *unit.Context {
	cfg := &model.BuildConfig{HostTriple: "x86_64-unknown-linux-gnu", RustcPath: "/usr/bin/rustc"}
	return unit.NewContext(cfg, unit.Layout{Root: "target"}, 1)
}

func testUnit() unit.Unit {
	return unit.Unit{
		Package: model.PackageID{Name: "foo", Version: "1.0.0"},
		Target:  model.Target{Name: "foo", Kind: model.TargetLibrary, Linkable: true, SourceRoot: "src/lib.rs"},
		Profile: model.Profile{Name: "dev"},
		Kind:    model.KindTarget,
	}
}

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}

func TestAssembleBasicFlags(t *testing.T) {
	u := testUnit()
	line := Assemble(testCtx(), u, &model.Package{ID: u.Package}, unitgraph.BuildScripts{}, nil, "target/out", fakeState{})

	if line.Path != "/usr/bin/rustc" {
		t.Errorf("Path = %q, want rustc path from config", line.Path)
	}
	if indexOf(line.Args, "--crate-name") == -1 {
		t.Error("missing --crate-name")
	}
	if indexOf(line.Args, "target/out") == -1 {
		t.Error("missing --out-dir value")
	}
	if line.Args[len(line.Args)-1] != u.Target.SourceRoot {
		t.Errorf("last arg = %q, want the crate source root %q", line.Args[len(line.Args)-1], u.Target.SourceRoot)
	}
}

func TestAssembleSearchPathOrderPluginsBeforeToLink(t *testing.T) {
	u := testUnit()
	pluginKey := model.BuildStateKey{Package: model.PackageID{Name: "macro"}, Kind: model.KindHost}
	sysKey := model.BuildStateKey{Package: model.PackageID{Name: "sys"}, Kind: model.KindTarget}

	bs := unitgraph.BuildScripts{
		ToLink:  []model.BuildStateKey{sysKey},
		Plugins: map[model.BuildStateKey]bool{pluginKey: true},
	}
	state := fakeState{
		pluginKey: {LibraryPaths: []string{"/plugin/lib"}},
		sysKey:    {LibraryPaths: []string{"/sys/lib"}, LibraryLinks: []string{"sys"}},
	}

	line := Assemble(testCtx(), u, &model.Package{ID: u.Package}, bs, nil, "target/out", state)

	pluginIdx := indexOf(line.Args, "/plugin/lib")
	sysIdx := indexOf(line.Args, "/sys/lib")
	if pluginIdx == -1 || sysIdx == -1 {
		t.Fatalf("expected both search paths present, got %v", line.Args)
	}
	if pluginIdx > sysIdx {
		t.Errorf("plugin search path (%d) must precede to-link search path (%d): %v", pluginIdx, sysIdx, line.Args)
	}

	if indexOf(line.Args, "sys") == -1 {
		t.Error("missing -l sys from ToLink's LibraryLinks")
	}
}

func TestAssembleCfgFromContextAndBuildOutput(t *testing.T) {
	u := testUnit()
	sysKey := model.BuildStateKey{Package: model.PackageID{Name: "sys"}, Kind: model.KindTarget}
	bs := unitgraph.BuildScripts{ToLink: []model.BuildStateKey{sysKey}}
	state := fakeState{sysKey: {Cfgs: []string{"have_feature"}}}

	line := Assemble(testCtx(), u, &model.Package{ID: u.Package}, bs, nil, "target/out", state)

	if indexOf(line.Args, "have_feature") == -1 {
		t.Error("expected --cfg have_feature from the consumed build script output")
	}
	if indexOf(line.Args, "--cfg") == -1 {
		t.Error("expected at least one --cfg flag from the unit's base context predicates")
	}
}

func TestAssembleExternOnlyForLinkableDeps(t *testing.T) {
	u := testUnit()
	linkableDep := unit.Unit{
		Package: model.PackageID{Name: "linkable"},
		Target:  model.Target{Name: "linkable", Kind: model.TargetLibrary, Linkable: true, SourceRoot: "src/lib.rs"},
		Kind:    model.KindTarget,
	}
	nonLinkableDep := unit.Unit{
		Package: model.PackageID{Name: "scriptdep"},
		Target:  model.Target{Name: "scriptdep", Kind: model.TargetCustomBuild, Linkable: false, SourceRoot: "build.rs"},
		Kind:    model.KindTarget,
	}

	line := Assemble(testCtx(), u, &model.Package{ID: u.Package}, unitgraph.BuildScripts{}, []unit.Unit{linkableDep, nonLinkableDep}, "target/out", fakeState{})

	externIdx := indexOf(line.Args, "--extern")
	if externIdx == -1 {
		t.Fatal("expected an --extern flag for the linkable dependency")
	}
	if line.Args[externIdx+1] != "linkable=linkable" {
		t.Errorf("--extern value = %q, want %q", line.Args[externIdx+1], "linkable=linkable")
	}

	count := 0
	for _, a := range line.Args {
		if a == "--extern" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one --extern flag (skipping the non-linkable dep), got %d", count)
	}
}

func TestLineString(t *testing.T) {
	l := Line{Path: "/usr/bin/rustc", Args: []string{"--crate-name", "foo"}}
	want := "/usr/bin/rustc --crate-name foo"
	if got := l.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
