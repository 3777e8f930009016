package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anelson-labs/cgx/internal/spec"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCopySourceTreeHonorsGitignore(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	writeTestFile(t, filepath.Join(src, "Cargo.toml"), "[package]\nname=\"x\"\n")
	writeTestFile(t, filepath.Join(src, "src", "main.rs"), "fn main() {}\n")
	writeTestFile(t, filepath.Join(src, ".gitignore"), "target/\n*.log\n")
	writeTestFile(t, filepath.Join(src, "target", "release", "x"), "stale build artifact")
	writeTestFile(t, filepath.Join(src, "build.log"), "noise")
	writeTestFile(t, filepath.Join(src, ".git", "HEAD"), "ref: refs/heads/main\n")

	if err := copySourceTree(src, dst); err != nil {
		t.Fatalf("copySourceTree: %v", err)
	}

	mustExist := []string{"Cargo.toml", filepath.Join("src", "main.rs")}
	for _, rel := range mustExist {
		if _, err := os.Stat(filepath.Join(dst, rel)); err != nil {
			t.Fatalf("expected %s to be copied: %v", rel, err)
		}
	}
	mustNotExist := []string{
		filepath.Join("target", "release", "x"),
		"build.log",
		filepath.Join(".git", "HEAD"),
	}
	for _, rel := range mustNotExist {
		if _, err := os.Stat(filepath.Join(dst, rel)); err == nil {
			t.Fatalf("expected %s to be excluded from the copy", rel)
		}
	}
}

func TestPrepareBuildDirLocalDirBypassesCopy(t *testing.T) {
	src := t.TempDir()
	dl := spec.DownloadedCrate{
		Resolved: spec.ResolvedCrate{Name: "x", Source: spec.ResolvedSource{Kind: spec.LocalDir, LocalPath: src}},
		Path:     src,
	}
	dir, err := prepareBuildDir(t.TempDir(), dl)
	if err != nil {
		t.Fatalf("prepareBuildDir: %v", err)
	}
	if dir != src {
		t.Fatalf("expected LocalDir build dir to be the source path itself, got %q", dir)
	}
}

func TestPrepareBuildDirCopiesForNonLocal(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "Cargo.toml"), "[package]\nname=\"x\"\n")
	root := t.TempDir()
	dl := spec.DownloadedCrate{
		Resolved: spec.ResolvedCrate{Name: "x", Source: spec.ResolvedSource{Kind: spec.CratesIo}},
		Path:     src,
	}
	dir, err := prepareBuildDir(root, dl)
	if err != nil {
		t.Fatalf("prepareBuildDir: %v", err)
	}
	if dir == src {
		t.Fatalf("expected a fresh build dir, not the source path")
	}
	if _, err := os.Stat(filepath.Join(dir, "Cargo.toml")); err != nil {
		t.Fatalf("expected Cargo.toml to be copied: %v", err)
	}
}
