// Package fixture loads a resolved package graph, build request, and build
// configuration from a YAML file — the external contract the (out of scope)
// dependency resolver would otherwise hand the core over some IPC
// mechanism. For this entrypoint the resolver's output is instead read
// from disk, in a shape a human can write by hand for a fixture build.
//
// Grounded on distri's pb.ReadBuildFile/ReadMetaFile (open the file, read it
// fully, unmarshal into a typed struct) — here gopkg.in/yaml.v3 replaces
// proto.UnmarshalText since no generated .pb.go bindings exist anywhere in
// the reference repos to adapt, and yaml.v3 is what four of them use
// directly for this kind of structured fixture/config data.
package fixture

import (
	"gopkg.in/yaml.v3"

	"github.com/raspbian-packages/cargo/internal/fsx"
	"github.com/raspbian-packages/cargo/internal/model"
)

type packageID struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Source  string `yaml:"source,omitempty"`
}

func (p packageID) toModel() model.PackageID {
	return model.PackageID{Name: p.Name, Version: p.Version, Source: p.Source}
}

type target struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	SourceRoot    string `yaml:"source_root"`
	ForHost       bool   `yaml:"for_host,omitempty"`
	Linkable      bool   `yaml:"linkable,omitempty"`
	IsCustomBuild bool   `yaml:"is_custom_build,omitempty"`
}

var targetKinds = map[string]model.TargetKind{
	"lib":          model.TargetLibrary,
	"bin":          model.TargetBinary,
	"example":      model.TargetExample,
	"test":         model.TargetTest,
	"bench":        model.TargetBenchmark,
	"custom-build": model.TargetCustomBuild,
	"doc":          model.TargetDocumentation,
}

func (t target) toModel() model.Target {
	return model.Target{
		Name:          t.Name,
		Kind:          targetKinds[t.Kind],
		SourceRoot:    t.SourceRoot,
		ForHost:       t.ForHost,
		Linkable:      t.Linkable,
		IsCustomBuild: t.IsCustomBuild,
	}
}

type pkg struct {
	ID             packageID `yaml:"id"`
	LinksKey       string    `yaml:"links,omitempty"`
	HasCustomBuild bool      `yaml:"has_custom_build,omitempty"`
	Targets        []target  `yaml:"targets"`
	Features       []string  `yaml:"features,omitempty"`
}

var depKinds = map[string]model.DepKind{
	"normal": model.DepNormal,
	"build":  model.DepBuild,
	"dev":    model.DepDev,
}

type edge struct {
	From    packageID `yaml:"from"`
	To      packageID `yaml:"to"`
	Kind    string    `yaml:"kind,omitempty"`
	ForHost bool      `yaml:"for_host,omitempty"`
}

type profile struct {
	Name           string `yaml:"name"`
	OptLevel       string `yaml:"opt_level,omitempty"`
	DebugInfo      bool   `yaml:"debug_info,omitempty"`
	Test           bool   `yaml:"test,omitempty"`
	RunCustomBuild bool   `yaml:"run_custom_build,omitempty"`
	Release        bool   `yaml:"release,omitempty"`
	Incremental    bool   `yaml:"incremental,omitempty"`
	Strip          bool   `yaml:"strip,omitempty"`
}

func (p profile) toModel() model.Profile {
	return model.Profile{
		Name: p.Name, OptLevel: p.OptLevel, DebugInfo: p.DebugInfo, Test: p.Test,
		RunCustomBuild: p.RunCustomBuild, Release: p.Release, Incremental: p.Incremental, Strip: p.Strip,
	}
}

type kv struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type override struct {
	LinksName string `yaml:"links"`
	Kind      string `yaml:"kind"` // "host" or "target"
	Output    struct {
		LibraryPaths      []string `yaml:"library_paths,omitempty"`
		LibraryLinks      []string `yaml:"library_links,omitempty"`
		Cfgs              []string `yaml:"cfgs,omitempty"`
		Metadata          []kv     `yaml:"metadata,omitempty"`
		RerunIfChanged    []string `yaml:"rerun_if_changed,omitempty"`
		RerunIfEnvChanged []string `yaml:"rerun_if_env_changed,omitempty"`
		Warnings          []string `yaml:"warnings,omitempty"`
	} `yaml:"output"`
}

func kindOf(s string) model.Kind {
	if s == "host" {
		return model.KindHost
	}
	return model.KindTarget
}

type rootRequest struct {
	Package packageID `yaml:"package"`
	Target  string    `yaml:"target,omitempty"`
	Profile string    `yaml:"profile"`
}

type buildConfig struct {
	HostTriple   string             `yaml:"host_triple"`
	TargetTriple string             `yaml:"target_triple,omitempty"`
	Jobs         int                `yaml:"jobs,omitempty"`
	Release      bool               `yaml:"release,omitempty"`
	JSONMessages bool               `yaml:"json_messages,omitempty"`
	Profiles     map[string]profile `yaml:"profiles"`
	Overrides    []override         `yaml:"overrides,omitempty"`
	RustcPath    string             `yaml:"rustc_path"`
	RustdocPath  string             `yaml:"rustdoc_path,omitempty"`
}

// Document is the top-level fixture shape: a resolved graph, the roots to
// build, and the build configuration, all in one file.
type Document struct {
	Packages []pkg         `yaml:"packages"`
	Edges    []edge        `yaml:"edges,omitempty"`
	Roots    []rootRequest `yaml:"roots"`
	Config   buildConfig   `yaml:"config"`
}

// Load reads and parses path into a ResolvedGraph, BuildRequest, and
// BuildConfig ready to hand to unitgraph.Build.
func Load(path string) (*model.ResolvedGraph, *model.BuildRequest, *model.BuildConfig, error) {
	b, err := fsx.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, nil, nil, err
	}

	rg := &model.ResolvedGraph{Packages: make(map[model.PackageID]*model.Package, len(doc.Packages))}
	for _, p := range doc.Packages {
		targets := make([]model.Target, len(p.Targets))
		for i, t := range p.Targets {
			targets[i] = t.toModel()
		}
		id := p.ID.toModel()
		rg.Packages[id] = &model.Package{
			ID: id, LinksKey: p.LinksKey, HasCustomBuild: p.HasCustomBuild,
			Targets: targets, Features: p.Features,
		}
	}
	for _, e := range doc.Edges {
		k, ok := depKinds[e.Kind]
		if !ok {
			k = model.DepNormal
		}
		rg.Edges = append(rg.Edges, model.DependencyEdge{
			From: e.From.toModel(), To: e.To.toModel(), Kind: k, ForHost: e.ForHost,
		})
	}

	req := &model.BuildRequest{}
	for _, r := range doc.Roots {
		req.Roots = append(req.Roots, model.RootRequest{
			Package: r.Package.toModel(), Target: r.Target, Profile: r.Profile,
		})
	}

	cfg := &model.BuildConfig{
		HostTriple: doc.Config.HostTriple, TargetTriple: doc.Config.TargetTriple,
		Jobs: doc.Config.Jobs, Release: doc.Config.Release, JSONMessages: doc.Config.JSONMessages,
		RustcPath: doc.Config.RustcPath, RustdocPath: doc.Config.RustdocPath,
		Profiles:  make(map[string]model.Profile, len(doc.Config.Profiles)),
		Overrides: make(map[model.OverrideKey]model.Override, len(doc.Config.Overrides)),
	}
	for name, p := range doc.Config.Profiles {
		cfg.Profiles[name] = p.toModel()
	}
	for _, o := range doc.Config.Overrides {
		var out model.BuildOutput
		out.LibraryPaths = o.Output.LibraryPaths
		out.LibraryLinks = o.Output.LibraryLinks
		out.Cfgs = o.Output.Cfgs
		out.RerunIfChanged = o.Output.RerunIfChanged
		out.RerunIfEnvChanged = o.Output.RerunIfEnvChanged
		out.Warnings = o.Output.Warnings
		for _, m := range o.Output.Metadata {
			out.Metadata = append(out.Metadata, model.KV{Key: m.Key, Value: m.Value})
		}
		key := model.OverrideKey{LinksName: o.LinksName, Kind: kindOf(o.Kind)}
		cfg.Overrides[key] = model.Override{LinksName: o.LinksName, Output: out}
	}

	return rg, req, cfg, nil
}
