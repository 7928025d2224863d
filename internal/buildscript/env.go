package buildscript

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/unit"
	"github.com/raspbian-packages/cargo/internal/unitgraph"
)

// dynamicLoaderPathVar is the OS environment variable a dynamic loader
// consults to find shared libraries at runtime, used here so a build script
// can dlopen host-side libraries produced by its plugin/proc-macro
// dependencies.
func dynamicLoaderPathVar() string {
	switch runtime.GOOS {
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	default:
		return "LD_LIBRARY_PATH"
	}
}

// envify sanitizes name for use in an environment variable: uppercase,
// with every character outside [A-Z0-9_] replaced by one '_'.
func envify(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// cfgEnv resolves the last-occurrence-wins, comma-join ambiguity between
// bare and key=value occurrences of the same cfg name: walking predicates in order, a bare occurrence of NAME resets
// any accumulated value and marks NAME as a bare predicate (CARGO_CFG_NAME
// set to the empty string); a key=value occurrence appends its value to the
// accumulated, comma-joined list for NAME, unless the most recent occurrence
// of NAME was bare, in which case the key=value occurrence starts fresh (a
// later kind always wins over an earlier one).
func cfgEnv(cfgs []model.KV) map[string]string {
	type acc struct {
		bare   bool
		values []string
	}
	byName := make(map[string]*acc)
	var order []string
	for _, kv := range cfgs {
		a, ok := byName[kv.Key]
		if !ok {
			a = &acc{}
			byName[kv.Key] = a
			order = append(order, kv.Key)
		}
		if kv.Value == "" {
			a.bare = true
			a.values = nil
			continue
		}
		if a.bare {
			a.bare = false
			a.values = nil
		}
		a.values = append(a.values, kv.Value)
	}
	out := make(map[string]string, len(order))
	for _, name := range order {
		a := byName[name]
		key := "CARGO_CFG_" + envify(name)
		if a.bare {
			out[key] = ""
		} else {
			out[key] = strings.Join(a.values, ",")
		}
	}
	return out
}

// buildEnv assembles the child environment a run-script job executes under:
// OUT_DIR and the fixed CARGO_*/HOST/TARGET/PROFILE/RUSTC* variables,
// CARGO_FEATURE_* per active feature, CARGO_CFG_* per active predicate (via
// cfgEnv), DEP_<LINKS>_<KEY> per native dependency's published metadata, and
// the dynamic loader path variable for plugin dependencies' library paths.
//
// Grounded on distri's internal/build.Ctx.env/runtimeEnv, which assembles a
// dependency-derived []string environment by walking a package's resolved
// build dependencies and appending one KEY=VALUE entry per discovered
// directory/library; the same accumulate-then-flatten shape is used here,
// keyed off the DEP_*_* / CARGO_CFG_* / CARGO_FEATURE_* contract instead.
func buildEnv(ctx *unit.Context, u unit.Unit, pkg *model.Package, bs unitgraph.BuildScripts, state *BuildState, rg *model.ResolvedGraph) []string {
	var env []string
	set := func(k, v string) { env = append(env, k+"="+v) }

	set("OUT_DIR", ctx.Layout.OutDir(u))
	set("CARGO_MANIFEST_DIR", u.Target.SourceRoot)
	set("NUM_JOBS", fmt.Sprintf("%d", ctx.Jobs()))
	set("TARGET", ctx.TargetTriple())
	set("HOST", ctx.HostTriple())
	set("OPT_LEVEL", u.Profile.OptLevel)
	set("PROFILE", profileName(u.Profile))
	if u.Profile.DebugInfo {
		set("DEBUG", "true")
	} else {
		set("DEBUG", "false")
	}
	set("RUSTC", ctx.Config.RustcPath)
	set("RUSTDOC", ctx.Config.RustdocPath)

	if pkg.LinksKey != "" {
		set("CARGO_MANIFEST_LINKS", pkg.LinksKey)
	}

	features := append([]string(nil), pkg.Features...)
	sort.Strings(features)
	for _, f := range features {
		set("CARGO_FEATURE_"+envify(f), "1")
	}

	cfgs := make([]model.KV, 0, len(ctx.Cfg(u.Kind)))
	cfgs = append(cfgs, ctx.Cfg(u.Kind)...)
	for k, v := range cfgEnv(cfgs) {
		set(k, v)
	}

	for _, key := range bs.ToLink {
		depPkg := rg.Packages[key.Package]
		if depPkg == nil || depPkg.LinksKey == "" {
			continue
		}
		out, ok := state.Get(key)
		if !ok {
			continue
		}
		for _, kv := range out.Metadata {
			set(fmt.Sprintf("DEP_%s_%s", envify(depPkg.LinksKey), envify(kv.Key)), kv.Value)
		}
	}

	if ldPath := pluginLibraryPath(bs, state); ldPath != "" {
		set(dynamicLoaderPathVar(), ldPath)
	}

	sort.Strings(env)
	return env
}

// pluginLibraryPath collects the library search directories published by
// every for-host plugin dependency's build-script output, so the run-script
// job can dlopen shared libraries those dependencies produced. bs.Plugins is
// a set with no meaningful order of its own; the keys are sorted here purely
// for deterministic output, not because plugin order is load-bearing the
// way to_link order is.
func pluginLibraryPath(bs unitgraph.BuildScripts, state *BuildState) string {
	keys := make([]model.BuildStateKey, 0, len(bs.Plugins))
	for k := range bs.Plugins {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Package != keys[j].Package {
			return keys[i].Package.String() < keys[j].Package.String()
		}
		return keys[i].Kind < keys[j].Kind
	})

	var paths []string
	for _, k := range keys {
		out, ok := state.Get(k)
		if !ok {
			continue
		}
		paths = append(paths, out.LibraryPaths...)
	}
	return strings.Join(paths, string(os.PathListSeparator))
}

func profileName(p model.Profile) string {
	if p.Name != "" {
		return p.Name
	}
	if p.Release {
		return "release"
	}
	return "dev"
}
