// Package unitgraph implements C2: expansion of a resolved package graph and
// a build request into a DAG of Units, synthesis of the compile-script/
// run-script unit pairs a custom build triggers, and the per-unit
// BuildScripts closure a command line is assembled from.
//
// Grounded on distri's internal/batch.Build: it builds a
// gonum/graph/simple.DirectedGraph from resolved package dependencies,
// wires edges from a node to the nodes it depends on, and uses
// gonum/graph/topo.Sort both to order work and to detect cycles. The same
// graph library and edge orientation (node -> its dependencies) are used
// here; what differs is the node payload (a four-tuple Unit instead of a
// package name) and the extra synthesis rules build-script unit pairing
// requires.
package unitgraph

import (
	"fmt"
	"sort"

	"github.com/raspbian-packages/cargo/internal/coreerr"
	"github.com/raspbian-packages/cargo/internal/model"
	"github.com/raspbian-packages/cargo/internal/unit"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// node adapts a unit.Unit to gonum's graph.Node interface.
type node struct {
	id int64
	u  unit.Unit
}

func (n *node) ID() int64 { return n.id }

// BuildScripts is the transitive closure of build-script outputs a unit
// must consume
type BuildScripts struct {
	// ToLink is ordered and de-duplicated: -L flags are emitted in this
	// order, so a later path must not shadow an earlier one.
	ToLink []model.BuildStateKey
	// Plugins is a set: build-script outputs needed at host time for
	// for-host dependencies.
	Plugins map[model.BuildStateKey]bool
}

func newBuildScripts() BuildScripts {
	return BuildScripts{Plugins: make(map[model.BuildStateKey]bool)}
}

func (bs *BuildScripts) appendToLink(keys []model.BuildStateKey, seen map[model.BuildStateKey]bool) {
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		bs.ToLink = append(bs.ToLink, k)
	}
}

// Graph is the built unit DAG.
type Graph struct {
	g       *simple.DirectedGraph
	byUnit  map[unit.Unit]*node
	order   []unit.Unit // topological order, dependencies first
	scripts map[unit.Unit]BuildScripts

	// depOrder records each unit's dependencies in the order their edges
	// were declared during expand (resolved graph edge order, build-script
	// dependency first), independent of DependenciesOf's alphabetical
	// listing. computeBuildScripts relies on this order for to_link, since
	// -L flag precedence is load-bearing: a later path must not shadow an
	// earlier one.
	depOrder map[unit.Unit][]unit.Unit

	// Warnings holds non-fatal diagnostics discovered while expanding the
	// graph, e.g. a configured override whose links name matches no
	// build-script-bearing package.
	Warnings []string
}

// Units returns every unit in the graph, in topological order (a unit's
// dependencies precede it).
func (gr *Graph) Units() []unit.Unit { return gr.order }

// DependenciesOf returns the units u directly depends on.
func (gr *Graph) DependenciesOf(u unit.Unit) []unit.Unit {
	n, ok := gr.byUnit[u]
	if !ok {
		return nil
	}
	var out []unit.Unit
	it := gr.g.From(n.id)
	for it.Next() {
		out = append(out, it.Node().(*node).u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// DependentsOf returns the units that directly depend on u.
func (gr *Graph) DependentsOf(u unit.Unit) []unit.Unit {
	n, ok := gr.byUnit[u]
	if !ok {
		return nil
	}
	var out []unit.Unit
	it := gr.g.To(n.id)
	for it.Next() {
		out = append(out, it.Node().(*node).u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// BuildScriptsFor returns the BuildScripts closure for u.
func (gr *Graph) BuildScriptsFor(u unit.Unit) BuildScripts {
	return gr.scripts[u]
}

// builder holds in-progress expansion state.
type builder struct {
	rg     *model.ResolvedGraph
	ctx    *unit.Context
	g      *simple.DirectedGraph
	byUnit map[unit.Unit]*node
	nextID int64

	runScriptOf map[model.PackageID]map[model.Kind]unit.Unit // package -> kind -> run-script unit, once synthesized
	depOrder    map[unit.Unit][]unit.Unit                     // unit -> its dependencies, in declaration order
}

// Build expands roots against the resolved graph into a unit DAG.
func Build(ctx *unit.Context, rg *model.ResolvedGraph, req *model.BuildRequest) (*Graph, error) {
	b := &builder{
		rg:          rg,
		ctx:         ctx,
		g:           simple.NewDirectedGraph(),
		byUnit:      make(map[unit.Unit]*node),
		runScriptOf: make(map[model.PackageID]map[model.Kind]unit.Unit),
		depOrder:    make(map[unit.Unit][]unit.Unit),
	}

	for _, root := range req.Roots {
		pkg, ok := rg.Packages[root.Package]
		if !ok {
			return nil, &coreerr.GraphError{Reason: fmt.Sprintf("root package %s not found in resolved graph", root.Package)}
		}
		target, err := findTarget(pkg, root.Target)
		if err != nil {
			return nil, err
		}
		profile, ok := ctx.Config.Profiles[root.Profile]
		if !ok {
			return nil, &coreerr.ConfigError{Reason: fmt.Sprintf("unknown profile %q", root.Profile)}
		}
		u := unit.Unit{Package: root.Package, Target: *target, Profile: profile, Kind: model.KindTarget}
		if _, err := b.expand(u); err != nil {
			return nil, err
		}
	}

	order, err := topoSort(b.g)
	if err != nil {
		return nil, err
	}

	gr := &Graph{g: b.g, byUnit: b.byUnit, order: order, scripts: make(map[unit.Unit]BuildScripts), depOrder: b.depOrder}
	if err := gr.computeBuildScripts(rg); err != nil {
		return nil, err
	}
	gr.Warnings = unmatchedOverrideWarnings(rg, ctx.Config.Overrides)
	return gr, nil
}

// unmatchedOverrideWarnings reports a warning for every configured override
// whose links name does not match any build-script-bearing package in the
// resolved graph, a common user misconfiguration (e.g. a typo'd links name
// or an override left over after a dependency was removed).
func unmatchedOverrideWarnings(rg *model.ResolvedGraph, overrides map[model.OverrideKey]model.Override) []string {
	known := make(map[string]bool)
	for _, pkg := range rg.Packages {
		if pkg.HasCustomBuild && pkg.LinksKey != "" {
			known[pkg.LinksKey] = true
		}
	}

	keys := make([]model.OverrideKey, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].LinksName != keys[j].LinksName {
			return keys[i].LinksName < keys[j].LinksName
		}
		return keys[i].Kind < keys[j].Kind
	})

	var warnings []string
	for _, k := range keys {
		if !known[k.LinksName] {
			warnings = append(warnings, fmt.Sprintf("override for links=%q matches no build-script-bearing package in the graph", k.LinksName))
		}
	}
	return warnings
}

func findTarget(pkg *model.Package, name string) (*model.Target, error) {
	if name == "" {
		for i := range pkg.Targets {
			if pkg.Targets[i].Kind == model.TargetLibrary {
				return &pkg.Targets[i], nil
			}
		}
		return nil, &coreerr.GraphError{Reason: fmt.Sprintf("package %s has no library target", pkg.ID)}
	}
	for i := range pkg.Targets {
		if pkg.Targets[i].Name == name {
			return &pkg.Targets[i], nil
		}
	}
	return nil, &coreerr.GraphError{Reason: fmt.Sprintf("package %s has no target named %q", pkg.ID, name)}
}

func customBuildTarget(pkg *model.Package) (*model.Target, bool) {
	for i := range pkg.Targets {
		if pkg.Targets[i].Kind == model.TargetCustomBuild {
			return &pkg.Targets[i], true
		}
	}
	return nil, false
}

// expand ensures u and every transitive dependency it needs exists in the
// graph, returning u's node. Memoized on Unit identity.
func (b *builder) expand(u unit.Unit) (*node, error) {
	if n, ok := b.byUnit[u]; ok {
		return n, nil
	}
	// Reserve the node before recursing so a cycle through u is detected by
	// gonum's topo.Sort rather than by infinite recursion.
	n := &node{id: b.nextID, u: u}
	b.nextID++
	b.g.AddNode(n)
	b.byUnit[u] = n

	pkg := b.rg.Packages[u.Package]
	if pkg == nil {
		return nil, &coreerr.GraphError{Reason: fmt.Sprintf("package %s referenced but not resolved", u.Package)}
	}

	// A non-custom-build unit of a package with a build script depends on
	// that package's run-script unit.
	if pkg.HasCustomBuild && !u.Target.IsCustomBuild {
		runUnit, err := b.ensureBuildScript(pkg, u.Kind)
		if err != nil {
			return nil, err
		}
		if err := b.addDependency(n, runUnit); err != nil {
			return nil, err
		}
	}

	for _, edge := range b.rg.DependenciesOf(u.Package) {
		if edge.Kind == model.DepDev && !(u.Profile.Test) {
			continue // dev-dependencies only apply to test/bench profiles
		}
		depPkg, ok := b.rg.Packages[edge.To]
		if !ok {
			return nil, &coreerr.GraphError{Reason: fmt.Sprintf("dependency %s of %s not resolved", edge.To, u.Package)}
		}
		depKind := u.Kind
		if edge.Kind == model.DepBuild || edge.ForHost {
			depKind = model.KindHost
		}
		depKind = b.ctx.EffectiveKind(depKind)

		depTarget, err := findTarget(depPkg, "")
		if err != nil {
			return nil, err
		}
		depUnit := unit.Unit{Package: edge.To, Target: *depTarget, Profile: u.Profile, Kind: depKind}
		depNode, err := b.expand(depUnit)
		if err != nil {
			return nil, err
		}
		if err := b.addDependency(n, depNode); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// ensureBuildScript synthesizes the compile-script/run-script unit pair for
// pkg at the given Kind, memoized so each (package, Kind) pair is only
// synthesized once.
func (b *builder) ensureBuildScript(pkg *model.Package, kind model.Kind) (unit.Unit, error) {
	kind = b.ctx.EffectiveKind(kind)
	if byKind, ok := b.runScriptOf[pkg.ID]; ok {
		if u, ok := byKind[kind]; ok {
			return u, nil
		}
	} else {
		b.runScriptOf[pkg.ID] = make(map[model.Kind]unit.Unit)
	}

	target, ok := customBuildTarget(pkg)
	if !ok {
		return unit.Unit{}, &coreerr.GraphError{Reason: fmt.Sprintf("package %s has_custom_build but no custom-build target", pkg.ID)}
	}

	compileUnit := unit.Unit{
		Package: pkg.ID,
		Target:  *target,
		Profile: model.Profile{Name: "build-script-build", RunCustomBuild: false},
		Kind:    kind,
	}
	compileNode, err := b.expand(compileUnit)
	if err != nil {
		return unit.Unit{}, err
	}

	runUnit := unit.Unit{
		Package: pkg.ID,
		Target:  *target,
		Profile: model.Profile{Name: "build-script-run", RunCustomBuild: true},
		Kind:    kind,
	}
	runNode, err := b.expand(runUnit)
	if err != nil {
		return unit.Unit{}, err
	}
	// The run-script unit depends on the matching compile-script unit. Its
	// own expand above has also given it the package's dependencies (under
	// the run-script profile), so it is not the run-script unit's only
	// dependency when the package has any.
	if err := b.addDependency(runNode, compileNode); err != nil {
		return unit.Unit{}, err
	}

	b.runScriptOf[pkg.ID][kind] = runUnit
	return runUnit, nil
}

func (b *builder) addDependency(from, to *node) error {
	if from.id == to.id {
		return nil // self-dependency, e.g. a package whose build script links against itself
	}
	b.g.SetEdge(b.g.NewEdge(from, to))
	b.depOrder[from.u] = append(b.depOrder[from.u], to.u)
	return nil
}

// topoSort returns units dependencies-first (reverse of gonum's topo.Sort,
// which orders a -> b as "a before b" for a DAG of "a depends on b" edges —
// we want dependencies to appear first for BuildScripts computation and for
// Graph.Units()'s documented contract).
func topoSort(g *simple.DirectedGraph) ([]unit.Unit, error) {
	sorted, err := topo.Sort(g)
	if err != nil {
		if uo, ok := err.(topo.Unorderable); ok {
			var cycle []string
			for _, component := range uo {
				for _, n := range component {
					cycle = append(cycle, n.(*node).u.String())
				}
				break // name the first cyclic component
			}
			return nil, &coreerr.GraphError{Reason: "cycle detected among units", Cycle: cycle}
		}
		return nil, err
	}
	// sorted is dependents-before-dependencies (gonum orders edge sources
	// before targets); reverse it so dependencies come first.
	out := make([]unit.Unit, len(sorted))
	for i, n := range sorted {
		out[len(sorted)-1-i] = n.(*node).u
	}
	return out, nil
}

// computeBuildScripts fills in gr.scripts by walking gr.order (dependencies
// first) and unioning each unit's dependencies' closures: for_host edges
// merge into plugins, other linkable dependencies append (deduping) into
// to_link preserving encounter order.
func (gr *Graph) computeBuildScripts(rg *model.ResolvedGraph) error {
	for _, u := range gr.order {
		bs := newBuildScripts()
		seen := make(map[model.BuildStateKey]bool)

		pkg := rg.Packages[u.Package]
		if pkg != nil && pkg.HasCustomBuild && !u.Target.IsCustomBuild {
			key := model.BuildStateKey{Package: u.Package, Kind: u.Kind}
			bs.appendToLink([]model.BuildStateKey{key}, seen)
		}

		for _, dep := range gr.depOrder[u] {
			depBS := gr.scripts[dep]
			if dep.Kind == model.KindHost && u.Kind != model.KindHost {
				for k := range depBS.Plugins {
					bs.Plugins[k] = true
				}
				depPkg := rg.Packages[dep.Package]
				if depPkg != nil && depPkg.HasCustomBuild {
					bs.Plugins[model.BuildStateKey{Package: dep.Package, Kind: dep.Kind}] = true
				}
				continue
			}
			if dep.Target.Linkable {
				bs.appendToLink(depBS.ToLink, seen)
			}
			for k := range depBS.Plugins {
				bs.Plugins[k] = true
			}
		}

		gr.scripts[u] = bs
	}
	return nil
}

var _ graph.Node = (*node)(nil)
