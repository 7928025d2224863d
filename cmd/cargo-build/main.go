// Command cargo-build drives a build from a YAML fixture describing a
// resolved package graph, the roots to build, and a build configuration:
// it expands the unit DAG, schedules units through a bounded worker pool,
// running build scripts and compile steps as their dependencies finish, and
// reports progress as a stream of events.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"

	"golang.org/x/xerrors"

	"github.com/raspbian-packages/cargo/internal/buildscript"
	"github.com/raspbian-packages/cargo/internal/command"
	"github.com/raspbian-packages/cargo/internal/env"
	"github.com/raspbian-packages/cargo/internal/event"
	"github.com/raspbian-packages/cargo/internal/fingerprint"
	"github.com/raspbian-packages/cargo/internal/fixture"
	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/schedule"
	"github.com/raspbian-packages/cargo/internal/spawn"
	"github.com/raspbian-packages/cargo/internal/unit"
	"github.com/raspbian-packages/cargo/internal/unitgraph"
)

var (
	debug        = flag.Bool("debug", false, "format error messages with additional detail")
	graphPath    = flag.String("graph", "", "path to the YAML resolved-graph fixture to build")
	targetDir    = flag.String("target-dir", env.DefaultTargetDir(), "workspace root for build artifacts and fingerprints ($CARGO_TARGET_DIR)")
	jsonMessages = flag.Bool("message-format-json", false, "emit line-delimited JSON events instead of plain text")
	throttle     = flag.Float64("idle-throttle-floor", 0, "advisory CPU-idle percentage floor below which spawns are throttled (0 disables)")
)

func interruptibleContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		signal.Stop(sig)
		cancel()
	}()
	return ctx, cancel
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		if *debug {
			fmt.Fprintf(os.Stderr, "cargo-build: %+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "cargo-build: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	if *graphPath == "" {
		return xerrors.Errorf("syntax: cargo-build -graph <fixture.yaml>")
	}

	rg, req, cfg, err := fixture.Load(*graphPath)
	if err != nil {
		return xerrors.Errorf("loading %s: %w", *graphPath, err)
	}
	if *jsonMessages {
		cfg.JSONMessages = true
	}

	layout := unit.Layout{Root: *targetDir}
	ctxu := unit.NewContext(cfg, layout, runtime.NumCPU())

	graph, err := unitgraph.Build(ctxu, rg, req)
	if err != nil {
		return err
	}

	var sink event.Sink
	if cfg.JSONMessages {
		sink = event.NewJSONEncoder(os.Stdout)
	} else {
		sink = plainSink{}
	}
	for _, w := range graph.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	state := buildscript.NewBuildState(cfg.Overrides)
	state.ApplyOverrides(presentLinksKeys(graph, rg))

	runner := &buildscript.Runner{Spawner: spawn.Exec{}, State: state, Sink: sink, Graph: graph, RG: rg}
	engine := &fingerprint.Engine{Layout: layout}

	fp := &fpStore{m: make(map[unit.Unit]fpResult)}

	jobs := make(map[unit.Unit]schedule.Job, len(graph.Units()))
	for _, u := range graph.Units() {
		u := u
		jobs[u] = schedule.Job{Unit: u, Run: func(ctx context.Context) (bool, error) {
			return runUnit(ctx, ctxu, u, rg, graph, runner, engine, state, fp, sink)
		}}
	}

	sched := &schedule.Scheduler{
		Graph:    graph,
		Jobs:     jobs,
		Sink:     sink,
		Workers:  ctxu.Jobs(),
		Throttle: schedule.ThrottleConfig{FloorPercent: *throttle},
	}

	ctx, cancel := interruptibleContext()
	defer cancel()
	return sched.Run(ctx)
}

// presentLinksKeys finds, for every build-script-bearing package reachable
// in the graph, the (BuildStateKey, linksName) pairs whose overrides should
// be applied before scheduling begins.
func presentLinksKeys(graph *unitgraph.Graph, rg *model.ResolvedGraph) map[model.BuildStateKey]string {
	out := make(map[model.BuildStateKey]string)
	for _, u := range graph.Units() {
		pkg := rg.Packages[u.Package]
		if pkg == nil || pkg.LinksKey == "" || !pkg.HasCustomBuild {
			continue
		}
		out[model.BuildStateKey{Package: u.Package, Kind: u.Kind}] = pkg.LinksKey
	}
	return out
}

type fpResult struct {
	verdict fingerprint.Verdict
	hash    string
}

// fpStore records each unit's freshness decision, mutex-protected since
// sibling units with no dependency relationship may finish concurrently;
// a dependent only ever reads its own dependencies' entries, which the
// scheduler guarantees are already written by the time it runs.
type fpStore struct {
	mu sync.Mutex
	m  map[unit.Unit]fpResult
}

func (s *fpStore) set(u unit.Unit, r fpResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[u] = r
}

func (s *fpStore) depInputs(deps []unit.Unit) (hashes []string, anyDirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deps {
		r := s.m[d]
		hashes = append(hashes, r.hash)
		if r.verdict == fingerprint.Dirty {
			anyDirty = true
		}
	}
	return hashes, anyDirty
}

func runUnit(ctx context.Context, ctxu *unit.Context, u unit.Unit, rg *model.ResolvedGraph, graph *unitgraph.Graph, runner *buildscript.Runner, engine *fingerprint.Engine, state *buildscript.BuildState, fp *fpStore, sink event.Sink) (bool, error) {
	pkg := rg.Packages[u.Package]
	deps := graph.DependenciesOf(u)
	depHashes, anyDirty := fp.depInputs(deps)

	if u.IsRunScript() {
		return runScriptUnit(ctx, ctxu, u, pkg, graph, runner, engine, state, fp, depHashes, anyDirty)
	}
	return compileUnit(ctx, ctxu, u, pkg, graph, engine, state, fp, depHashes, anyDirty, sink)
}

func runScriptUnit(ctx context.Context, ctxu *unit.Context, u unit.Unit, pkg *model.Package, graph *unitgraph.Graph, runner *buildscript.Runner, engine *fingerprint.Engine, state *buildscript.BuildState, fp *fpStore, depHashes []string, anyDirty bool) (bool, error) {
	overridden := false
	if pkg.LinksKey != "" {
		_, overridden = state.Override(pkg.LinksKey, u.Kind)
	}

	in := fingerprint.Inputs{
		Kind:                   u.Kind,
		TargetTriple:           ctxu.TargetTriple(),
		Profile:                u.Profile,
		DependencyFingerprints: depHashes,
		AnyDependencyDirty:     anyDirty,
		Overridden:             overridden,
	}
	decision, err := engine.Decide(u, in)
	if err != nil {
		return false, err
	}
	fp.set(u, fpResult{verdict: decision.Verdict, hash: decision.Fingerprint.Hash})

	if decision.Verdict == fingerprint.Fresh {
		return true, nil
	}

	exePath, err := compileScriptExe(ctxu, u, graph)
	if err != nil {
		return false, err
	}
	if err := runner.Run(ctx, ctxu, u, pkg, exePath); err != nil {
		return false, err
	}
	if err := engine.Persist(u, decision.Fingerprint); err != nil {
		return false, err
	}
	return false, nil
}

// compileScriptExe locates the compiled build-script binary produced by
// u's matching compile-script unit, found among the run-script unit's
// dependencies (which also include the package's own dependencies).
func compileScriptExe(ctxu *unit.Context, u unit.Unit, graph *unitgraph.Graph) (string, error) {
	for _, dep := range graph.DependenciesOf(u) {
		if dep.Package == u.Package && dep.IsCompileScript() {
			return filepath.Join(ctxu.Layout.ArtifactDir(dep), "build-script-build"), nil
		}
	}
	return "", xerrors.Errorf("run-script unit %s has no compile-script dependency", u)
}

func compileUnit(ctx context.Context, ctxu *unit.Context, u unit.Unit, pkg *model.Package, graph *unitgraph.Graph, engine *fingerprint.Engine, state *buildscript.BuildState, fp *fpStore, depHashes []string, anyDirty bool, sink event.Sink) (bool, error) {
	bs := graph.BuildScriptsFor(u)
	deps := graph.DependenciesOf(u)
	outDir := ctxu.Layout.ArtifactDir(u)

	line := command.Assemble(ctxu, u, pkg, bs, deps, outDir, state)

	var srcFiles []fingerprint.SourceFile
	if sf, err := fingerprint.HashFile(u.Target.SourceRoot); err == nil {
		srcFiles = append(srcFiles, sf)
	}

	var consumed []string
	for _, key := range bs.ToLink {
		for _, su := range graph.Units() {
			if su.Package == key.Package && su.Kind == key.Kind && su.IsRunScript() {
				fp.mu.Lock()
				consumed = append(consumed, fp.m[su].hash)
				fp.mu.Unlock()
			}
		}
	}

	in := fingerprint.Inputs{
		CompilerPath:                    line.Path,
		CommandLine:                     line.Args,
		Kind:                            u.Kind,
		TargetTriple:                    ctxu.TargetTriple(),
		Profile:                         u.Profile,
		DependencyFingerprints:          depHashes,
		AnyDependencyDirty:              anyDirty,
		SourceFiles:                     srcFiles,
		ConsumedBuildScriptFingerprints: consumed,
	}
	decision, err := engine.Decide(u, in)
	if err != nil {
		return false, err
	}
	fp.set(u, fpResult{verdict: decision.Verdict, hash: decision.Fingerprint.Hash})

	if decision.Verdict == fingerprint.Fresh {
		return true, nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return false, err
	}

	corrID := event.NewCorrelationID()
	onStdout := func(l string) { sink.Emit(event.Event{Kind: event.Stdout, Unit: u.String(), CorrelationID: corrID, Line: l}) }
	onStderr := func(l string) { sink.Emit(event.Event{Kind: event.Stderr, Unit: u.String(), CorrelationID: corrID, Line: l}) }

	if err := command.Run(ctx, spawn.Exec{}, u, line, onStdout, onStderr); err != nil {
		return false, err
	}
	if err := engine.Persist(u, decision.Fingerprint); err != nil {
		return false, err
	}
	return false, nil
}

// plainSink renders events as human-readable lines, the default when
// -message-format-json is not set.
type plainSink struct{}

func (plainSink) Emit(e event.Event) {
	switch e.Kind {
	case event.Running:
		fmt.Printf("   Compiling %s\n", e.Unit)
	case event.Stderr:
		fmt.Fprintln(os.Stderr, e.Line)
	case event.Finished:
		if e.Fresh != nil && *e.Fresh {
			fmt.Printf("    Fresh %s\n", e.Unit)
		} else {
			fmt.Printf("    Finished %s\n", e.Unit)
		}
	case event.Failed:
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", e.Unit, e.Error)
	}
}
