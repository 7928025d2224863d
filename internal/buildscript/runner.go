package buildscript

import (
	"context"
	"io"

	"github.com/orcaman/writerseeker"

	"github.com/raspbian-packages/cargo/internal/command"
	"github.com/raspbian-packages/cargo/internal/coreerr"
	"github.com/raspbian-packages/cargo/internal/event"
	"github.com/raspbian-packages/cargo/internal/fsx"
	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/spawn"
	"github.com/raspbian-packages/cargo/internal/unit"
	"github.com/raspbian-packages/cargo/internal/unitgraph"
)

// Runner executes a package's compiled build-script executable and captures
// its cargo: output protocol.
//
// Grounded on distri's build-script invocation pattern in
// internal/build.go (spawn a child, capture its combined output into a
// buffer, only interpret the buffer once the process has exited
// successfully) — here the buffer is an orcaman/writerseeker in-memory
// seekable byte sink instead of distri's persisted log file, since the
// captured stdout must be replayed through ParseOutput before anything is
// written to disk.
type Runner struct {
	Spawner spawn.Spawner
	State   *BuildState
	Sink    event.Sink
	Graph   *unitgraph.Graph
	RG      *model.ResolvedGraph
}

// Run executes u's run-script job: builds the child environment from u's
// dependency closure, spawns the compiled build-script binary, captures its
// stdout for parsing once the process exits, and streams both stdout and
// stderr lines to the event sink as they arrive.
//
// If an override is configured for pkg's links name at u.Kind, the script is
// never spawned; BuildState already carries the override's BuildOutput
// (applied once at build-start via ApplyOverrides) and this call is a no-op.
func (r *Runner) Run(ctx context.Context, ctxu *unit.Context, u unit.Unit, pkg *model.Package, exePath string) error {
	key := model.BuildStateKey{Package: u.Package, Kind: u.Kind}

	if pkg.LinksKey != "" {
		if _, ok := r.State.Override(pkg.LinksKey, u.Kind); ok {
			return nil // BuildState already holds the override's output
		}
	}

	if err := fsx.MkdirAll(ctxu.Layout.OutDir(u)); err != nil {
		return &coreerr.FingerprintIoError{Unit: u.String(), Err: err}
	}

	bs := r.Graph.BuildScriptsFor(u)
	env := buildEnv(ctxu, u, pkg, bs, r.State, r.RG)

	corrID := event.NewCorrelationID()
	r.Sink.Emit(event.Event{Kind: event.Running, Unit: u.String(), CorrelationID: corrID, Command: exePath})

	var captured writerseeker.WriterSeeker
	req := spawn.Request{
		Path: exePath,
		Dir:  u.Target.SourceRoot,
		Env:  env,
		OnStdout: func(line string) {
			captured.Write([]byte(line + "\n"))
			r.Sink.Emit(event.Event{Kind: event.Stdout, Unit: u.String(), CorrelationID: corrID, Line: line})
		},
		OnStderr: func(line string) {
			r.Sink.Emit(event.Event{Kind: event.Stderr, Unit: u.String(), CorrelationID: corrID, Line: line})
		},
	}

	spawnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	guard := command.Arm(cancel)
	defer guard.Release()

	res, err := r.Spawner.Spawn(spawnCtx, req)
	guard.Disarm()
	if err != nil {
		r.Sink.Emit(event.Event{Kind: event.Failed, Unit: u.String(), CorrelationID: corrID, Error: err.Error()})
		return &coreerr.SpawnError{Unit: u.String(), Err: err}
	}
	if res.ExitCode != 0 {
		r.Sink.Emit(event.Event{Kind: event.Failed, Unit: u.String(), CorrelationID: corrID, Error: "nonzero exit"})
		return &coreerr.ScriptNonZeroExit{Package: u.Package.String(), Code: res.ExitCode, Stderr: res.Stderr}
	}

	raw, err := io.ReadAll(captured.Reader())
	if err != nil {
		return &coreerr.FingerprintIoError{Unit: u.String(), Err: err}
	}
	if err := fsx.WriteAtomic(ctxu.Layout.OutputFile(u), raw, 0o644); err != nil {
		return err
	}

	out, err := ParseOutput(u.Package.String(), raw)
	if err != nil {
		r.Sink.Emit(event.Event{Kind: event.Failed, Unit: u.String(), CorrelationID: corrID, Error: err.Error()})
		return err
	}
	r.State.Set(key, out)

	r.Sink.Emit(event.Event{
		Kind:          event.Finished,
		Unit:          u.String(),
		CorrelationID: corrID,
	})
	if ctxu.Config.JSONMessages {
		r.Sink.Emit(event.Event{
			Kind:          event.BuildScriptDiscovered,
			Unit:          u.String(),
			CorrelationID: corrID,
			PackageID:     u.Package.String(),
			LinkedLibs:    out.LibraryLinks,
			LinkedPaths:   out.LibraryPaths,
			Cfgs:          out.Cfgs,
		})
	}
	return nil
}
