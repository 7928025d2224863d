// Package buildscript implements C4: compiling/running a custom build
// script's job bodies, the cargo:key=value output grammar, child
// environment assembly, and the process-wide BuildState every downstream
// compile unit reads from.
//
// Grounded on distri's internal/build.Ctx.env/runtimeEnv (assembling a
// dependency-derived environment for a child process from library/include/
// pkgconfig search directories) and Ctx.Builderdeps (per-builder-kind
// native dependency lists) — the same "walk dependencies, accumulate
// directories/variables, emit as KEY=VALUE env entries" shape, here keyed
// off the spec's OUT_DIR/CARGO_*/DEP_*_* contract instead of distri's /ro
// tree layout.
package buildscript

import (
	"strings"
	"unicode"

	"github.com/raspbian-packages/cargo/internal/coreerr"
	"github.com/raspbian-packages/cargo/internal/model"
)

// ParseOutput implements the build-script output parse grammar: decode as
// UTF-8 line by line, require a "cargo:" prefix (lines without it are
// silently ignored), split once on '=', and dispatch on the recognized key
// table.
func ParseOutput(pkg string, data []byte) (model.BuildOutput, error) {
	var out model.BuildOutput
	lines := strings.Split(string(data), "\n")
	for _, raw := range lines {
		if !isValidUTF8(raw) {
			continue // skip line if invalid
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		const prefix = "cargo:"
		if !strings.HasPrefix(line, prefix) {
			continue // silently ignored
		}
		rest := line[len(prefix):]
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return model.BuildOutput{}, &coreerr.ScriptParseError{Package: pkg, Line: raw, Reason: "missing '=' after cargo: prefix"}
		}
		key := rest[:eq]
		value := strings.TrimRight(rest[eq+1:], " \t")

		switch key {
		case "rustc-flags":
			if err := parseRustcFlags(value, &out); err != nil {
				return model.BuildOutput{}, &coreerr.ScriptParseError{Package: pkg, Line: raw, Reason: err.Error()}
			}
		case "rustc-link-lib":
			out.LibraryLinks = append(out.LibraryLinks, value)
		case "rustc-link-search":
			out.LibraryPaths = append(out.LibraryPaths, value)
		case "rustc-cfg":
			out.Cfgs = append(out.Cfgs, value)
		case "warning":
			out.Warnings = append(out.Warnings, value)
		case "rerun-if-changed":
			out.RerunIfChanged = append(out.RerunIfChanged, value)
		case "rerun-if-env-changed":
			// Treated as a recognized directive rather than generic
			// metadata, since the fingerprint engine needs the named env
			// var's value tracked separately from opaque key/value metadata.
			out.RerunIfEnvChanged = append(out.RerunIfEnvChanged, value)
		default:
			out.Metadata = append(out.Metadata, model.KV{Key: key, Value: value})
		}
	}
	return out, nil
}

// parseRustcFlags tokenizes value as a stream where only "-l X" and "-L Y"
// pairs are legal; any other token is a hard error.
func parseRustcFlags(value string, out *model.BuildOutput) error {
	tokens := strings.Fields(value)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "-l", "-L":
			if i+1 >= len(tokens) {
				return &flagsError{tok: tok, reason: "missing argument"}
			}
			arg := tokens[i+1]
			i++
			if tok == "-l" {
				out.LibraryLinks = append(out.LibraryLinks, arg)
			} else {
				out.LibraryPaths = append(out.LibraryPaths, arg)
			}
		default:
			return &flagsError{tok: tok, reason: "illegal token in rustc-flags"}
		}
	}
	return nil
}

type flagsError struct {
	tok, reason string
}

func (e *flagsError) Error() string { return e.reason + ": " + e.tok }

func isValidUTF8(s string) bool {
	for _, r := range s {
		if r == unicode.ReplacementChar {
			return false
		}
	}
	return true
}
