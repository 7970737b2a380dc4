package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetPathInfo(t *testing.T) {
	full, parent, err := GetPathInfo("a/../b/prog.silc")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(full) || filepath.Base(full) != "prog.silc" || filepath.Base(parent) != "b" {
		t.Errorf("GetPathInfo = %q, %q", full, parent)
	}
}

func TestProgramName(t *testing.T) {
	tests := map[string]string{
		"hello.silc":           "hello",
		"dir/sub/calc.v2.silc": "calc.v2",
		"noext":                "noext",
	}
	for in, want := range tests {
		if got := ProgramName(in); got != want {
			t.Errorf("ProgramName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArtifactPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out", "nested")
	path, err := ArtifactPath("src/hello.silc", out, ".il")
	if err != nil {
		t.Fatalf("ArtifactPath failed: %v", err)
	}
	if path != filepath.Join(out, "hello.il") {
		t.Errorf("ArtifactPath = %q", path)
	}
	if info, err := os.Stat(out); err != nil || !info.IsDir() {
		t.Errorf("output dir not created: %v", err)
	}
}
