// Package command implements C6: assembling a unit's compiler invocation
// from its BuildScripts closure and profile, and streaming that invocation's
// output through the same opaque spawn-and-stream collaborator the
// build-script runner uses.
//
// Grounded on distri's internal/build/buildc.go and buildcmake.go, which
// both build up an ordered []string of compiler/configure flags
// imperatively (append include dirs, then library dirs, then libraries,
// then package-specific extra flags) before handing the slice to exec.Cmd;
// the same ordered-accumulation style is used here for rustc-shaped flags
// instead of cc-shaped ones.
package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/raspbian-packages/cargo/internal/coreerr"
	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/spawn"
	"github.com/raspbian-packages/cargo/internal/unit"
	"github.com/raspbian-packages/cargo/internal/unitgraph"
)

// Line is an assembled command invocation, kept structured (rather than a
// flattened []string) so the fingerprint engine can hash Args directly and
// a caller can render it for --message-format=json or a dry-run listing.
type Line struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// String renders Line as a shell-like command, for logs and dry runs.
func (l Line) String() string {
	s := l.Path
	for _, a := range l.Args {
		s += " " + a
	}
	return s
}

// Assemble builds the rustc-shaped command line for u, in the fixed order a
// BuildScripts-consuming compile step requires: crate-name, edition, out-dir
// and opt-level/debug flags first (no --crate-type flag is emitted), then
// --cfg per active predicate and per package feature, then
// -L per search path (host-only entries from Plugins before target entries
// from ToLink, so a plugin's own dependencies never shadow the unit's
// direct link line), then -l per linked library, then extern flags for
// direct package dependencies.
func Assemble(ctx *unit.Context, u unit.Unit, pkg *model.Package, bs unitgraph.BuildScripts, deps []unit.Unit, outDir string, state interface {
	Get(model.BuildStateKey) (model.BuildOutput, bool)
}) Line {
	var args []string

	args = append(args, "--crate-name", crateName(u))
	args = append(args, "--edition", "2021")
	args = append(args, "--out-dir", outDir)
	if u.Profile.Release {
		args = append(args, "-O")
	}
	if u.Profile.DebugInfo {
		args = append(args, "-g")
	}

	cfgs := collectCfgs(ctx, u, state, bs)
	for _, c := range cfgs {
		if c.Value == "" {
			args = append(args, "--cfg", c.Key)
		} else {
			args = append(args, "--cfg", fmt.Sprintf("%s=%q", c.Key, c.Value))
		}
	}
	features := append([]string(nil), pkg.Features...)
	sort.Strings(features)
	for _, f := range features {
		args = append(args, "--cfg", fmt.Sprintf("feature=%q", f))
	}

	plugins := sortedKeys(bs.Plugins)
	for _, key := range plugins {
		out, ok := state.Get(key)
		if !ok {
			continue
		}
		for _, p := range out.LibraryPaths {
			args = append(args, "-L", p)
		}
	}
	for _, key := range bs.ToLink {
		out, ok := state.Get(key)
		if !ok {
			continue
		}
		for _, p := range out.LibraryPaths {
			args = append(args, "-L", p)
		}
	}
	for _, key := range bs.ToLink {
		out, ok := state.Get(key)
		if !ok {
			continue
		}
		for _, l := range out.LibraryLinks {
			args = append(args, "-l", l)
		}
	}

	for _, dep := range deps {
		if !dep.Target.Linkable {
			continue
		}
		args = append(args, "--extern", fmt.Sprintf("%s=%s", crateName(dep), dep.Target.Name))
	}

	args = append(args, u.Target.SourceRoot)

	return Line{Path: ctx.Config.RustcPath, Args: args, Dir: u.Target.SourceRoot}
}

func crateName(u unit.Unit) string {
	return u.Package.Name
}

func collectCfgs(ctx *unit.Context, u unit.Unit, state interface {
	Get(model.BuildStateKey) (model.BuildOutput, bool)
}, bs unitgraph.BuildScripts) []model.KV {
	cfgs := append([]model.KV(nil), ctx.Cfg(u.Kind)...)
	for _, key := range bs.ToLink {
		out, ok := state.Get(key)
		if !ok {
			continue
		}
		for _, c := range out.Cfgs {
			cfgs = append(cfgs, model.KV{Key: c})
		}
	}
	return cfgs
}

func sortedKeys(m map[model.BuildStateKey]bool) []model.BuildStateKey {
	out := make([]model.BuildStateKey, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Package.Name != out[j].Package.Name {
			return out[i].Package.Name < out[j].Package.Name
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Run spawns l via spawner, streaming stdout/stderr lines to onStdout/
// onStderr, and returns a CompileError if the compiler exits non-zero.
func Run(ctx context.Context, spawner spawn.Spawner, u unit.Unit, l Line, onStdout, onStderr spawn.LineFunc) error {
	req := spawn.Request{
		Path:     l.Path,
		Args:     l.Args,
		Dir:      l.Dir,
		Env:      l.Env,
		OnStdout: onStdout,
		OnStderr: onStderr,
	}

	spawnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	guard := Arm(cancel)
	defer guard.Release()

	res, err := spawner.Spawn(spawnCtx, req)
	guard.Disarm()
	if err != nil {
		return &coreerr.SpawnError{Unit: u.String(), Err: err}
	}
	if res.ExitCode != 0 {
		return &coreerr.CompileError{Unit: u.String(), Code: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}
