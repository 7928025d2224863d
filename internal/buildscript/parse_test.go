package buildscript

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/raspbian-packages/cargo/internal/model"
)

func TestParseOutput(t *testing.T) {
	input := []byte(strings.Join([]string{
		"cargo:rustc-link-lib=ssl",
		"cargo:rustc-link-search=/usr/lib/ssl",
		"cargo:rustc-cfg=have_ssl3",
		"cargo:rustc-cfg=version=\"1.1\"",
		"cargo:rustc-flags=-l crypto -L /usr/lib/crypto",
		"cargo:warning=deprecated API used",
		"cargo:rerun-if-changed=build.rs",
		"cargo:rerun-if-env-changed=OPENSSL_DIR",
		"cargo:include=/usr/include/ssl",
		"not a cargo line, ignored",
		"",
	}, "\n"))

	got, err := ParseOutput("openssl-sys", input)
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}

	want := model.BuildOutput{
		LibraryLinks:      []string{"ssl", "crypto"},
		LibraryPaths:      []string{"/usr/lib/ssl", "/usr/lib/crypto"},
		Cfgs:              []string{"have_ssl3", `version="1.1"`},
		Metadata:          []model.KV{{Key: "include", Value: "/usr/include/ssl"}},
		RerunIfChanged:    []string{"build.rs"},
		RerunIfEnvChanged: []string{"OPENSSL_DIR"},
		Warnings:          []string{"deprecated API used"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseOutput mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOutputMissingEquals(t *testing.T) {
	_, err := ParseOutput("pkg", []byte("cargo:oops\n"))
	if err == nil {
		t.Fatal("expected an error for a line with no '='")
	}
}

func TestParseOutputIgnoresNonCargoLines(t *testing.T) {
	out, err := ParseOutput("pkg", []byte("gcc: warning: nothing to see here\n"))
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	if !out.Equal(model.BuildOutput{}) {
		t.Fatalf("expected an empty BuildOutput, got %+v", out)
	}
}

func TestParseRustcFlagsIllegalToken(t *testing.T) {
	_, err := ParseOutput("pkg", []byte("cargo:rustc-flags=-Wall\n"))
	if err == nil {
		t.Fatal("expected an error for an illegal rustc-flags token")
	}
}

func TestParseRustcFlagsMissingArgument(t *testing.T) {
	_, err := ParseOutput("pkg", []byte("cargo:rustc-flags=-l\n"))
	if err == nil {
		t.Fatal("expected an error for -l with no following argument")
	}
}

// round trip: ParseOutput applied to the lines a caller would construct from
// a BuildOutput should reconstruct an Equal value.
func TestParseOutputRoundTrip(t *testing.T) {
	lines := []string{
		"cargo:rustc-link-lib=foo",
		"cargo:rustc-link-search=/lib/foo",
		"cargo:rustc-cfg=bar",
		"cargo:warning=heads up",
		"cargo:rerun-if-changed=src/lib.rs",
		"cargo:rerun-if-env-changed=FOO_PATH",
		"cargo:answer=42",
	}
	out, err := ParseOutput("roundtrip", []byte(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("ParseOutput: %v", err)
	}
	want := model.BuildOutput{
		LibraryLinks:      []string{"foo"},
		LibraryPaths:      []string{"/lib/foo"},
		Cfgs:              []string{"bar"},
		Warnings:          []string{"heads up"},
		RerunIfChanged:    []string{"src/lib.rs"},
		RerunIfEnvChanged: []string{"FOO_PATH"},
		Metadata:          []model.KV{{Key: "answer", Value: "42"}},
	}
	if !out.Equal(want) {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, want)
	}
}
