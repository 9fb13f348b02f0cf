package archiver

import "testing"

func TestBuildSyntheticRootSinglePath(t *testing.T) {
	vr, err := buildSyntheticRoot([]string{"."})
	if err != nil {
		t.Fatalf("buildSyntheticRoot: %v", err)
	}
	if len(vr.names) != 1 {
		t.Fatalf("expected one synthetic name, got %v", vr.names)
	}
}

func TestBuildSyntheticRootResolvesNameCollision(t *testing.T) {
	vr, err := buildSyntheticRoot([]string{"testdata/dup/a", "testdata/other/a", "testdata/dup/b"})
	if err != nil {
		t.Fatalf("buildSyntheticRoot: %v", err)
	}
	if len(vr.names) != 3 {
		t.Fatalf("expected three distinct synthetic names, got %v", vr.names)
	}

	seen := make(map[string]bool)
	for _, name := range vr.names {
		if seen[name] {
			t.Fatalf("duplicate synthetic name %q in %v", name, vr.names)
		}
		seen[name] = true
	}
	if !seen["a"] {
		t.Fatalf("expected the first occurrence of %q to keep its bare name, got %v", "a", vr.names)
	}
	if !seen["a-1"] {
		t.Fatalf("expected the colliding second %q to be renamed to %q, got %v", "a", "a-1", vr.names)
	}
}

func TestBuildSyntheticRootSamePathTwiceIsNotACollision(t *testing.T) {
	vr, err := buildSyntheticRoot([]string{"testdata/dup/a", "testdata/dup/a"})
	if err != nil {
		t.Fatalf("buildSyntheticRoot: %v", err)
	}
	if len(vr.names) != 1 {
		t.Fatalf("expected the same absolute path given twice to collapse to one entry, got %v", vr.names)
	}
}

func TestBuildSyntheticRootNamesAreSorted(t *testing.T) {
	vr, err := buildSyntheticRoot([]string{"testdata/zeta", "testdata/alpha", "testdata/mu"})
	if err != nil {
		t.Fatalf("buildSyntheticRoot: %v", err)
	}
	want := []string{"alpha", "mu", "zeta"}
	if len(vr.names) != len(want) {
		t.Fatalf("got %v, want %v", vr.names, want)
	}
	for i, name := range want {
		if vr.names[i] != name {
			t.Fatalf("got %v, want %v", vr.names, want)
		}
	}
}
