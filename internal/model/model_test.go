package model

import "testing"

func TestSortedPackageIDsOrdersVersionsSemantically(t *testing.T) {
	pkgs := map[PackageID]*Package{
		{Name: "foo", Version: "1.9.0"}:  {},
		{Name: "foo", Version: "1.10.0"}: {},
		{Name: "foo", Version: "1.2.0"}:  {},
		{Name: "bar", Version: "0.1.0"}:  {},
	}
	ids := SortedPackageIDs(pkgs)

	want := []string{"bar", "foo", "foo", "foo"}
	for i, id := range ids {
		if id.Name != want[i] {
			t.Fatalf("ids[%d].Name = %q, want %q (full order: %v)", i, id.Name, want[i], ids)
		}
	}
	// within foo, versions must be in semantic order: 1.2.0 < 1.9.0 < 1.10.0,
	// not the lexicographic order a plain string compare would produce.
	fooVersions := []string{ids[1].Version, ids[2].Version, ids[3].Version}
	wantVersions := []string{"1.2.0", "1.9.0", "1.10.0"}
	for i, v := range fooVersions {
		if v != wantVersions[i] {
			t.Errorf("fooVersions = %v, want %v", fooVersions, wantVersions)
			break
		}
	}
}

func TestCompareVersionsFallsBackForNonSemver(t *testing.T) {
	if compareVersions("abc", "abd") >= 0 {
		t.Error("expected lexicographic fallback to order \"abc\" before \"abd\"")
	}
	if compareVersions("x", "x") != 0 {
		t.Error("expected equal non-semver strings to compare equal")
	}
}

func TestBuildOutputMetadataValueLastOccurrenceWins(t *testing.T) {
	out := BuildOutput{Metadata: []KV{{Key: "include", Value: "first"}, {Key: "include", Value: "second"}}}
	val, ok := out.MetadataValue("include")
	if !ok || val != "second" {
		t.Errorf("MetadataValue = (%q, %v), want (\"second\", true)", val, ok)
	}
	if _, ok := out.MetadataValue("missing"); ok {
		t.Error("expected no value for an absent key")
	}
}

func TestBuildOutputEqualNilVsEmpty(t *testing.T) {
	a := BuildOutput{}
	b := BuildOutput{LibraryPaths: []string{}}
	if !a.Equal(b) {
		t.Error("nil and empty slices should compare equal")
	}
}
