package cgxcache

import (
	"strings"
	"testing"

	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/spec"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	return New(config.Config{
		CacheRoot: "/cache",
		BinRoot:   "/bin",
	})
}

func TestSourcePathStableLayout(t *testing.T) {
	m := testManager(t)
	r := spec.ResolvedCrate{
		Name:    "ripgrep",
		Version: "14.1.0",
		Source:  spec.ResolvedSource{Kind: spec.CratesIo},
	}
	got := m.SourcePath(r)
	want := "/cache/sources/crates-io/ripgrep/14.1.0"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	// Calling again must be deterministic.
	if got2 := m.SourcePath(r); got2 != got {
		t.Fatalf("SourcePath not stable: %q vs %q", got, got2)
	}
}

func TestSourcePathPanicsOnLocalDir(t *testing.T) {
	m := testManager(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for LocalDir source")
		}
	}()
	m.SourcePath(spec.ResolvedCrate{
		Name:   "foo",
		Source: spec.ResolvedSource{Kind: spec.LocalDir, LocalPath: "/tmp/foo"},
	})
}

func TestSourcePathDistinguishesRegistries(t *testing.T) {
	m := testManager(t)
	named := spec.ResolvedCrate{
		Name: "foo", Version: "1.0.0",
		Source: spec.ResolvedSource{Kind: spec.Registry, Registry: spec.RegistryRef{Named: "my-registry"}},
	}
	indexed := spec.ResolvedCrate{
		Name: "foo", Version: "1.0.0",
		Source: spec.ResolvedSource{Kind: spec.Registry, Registry: spec.RegistryRef{IndexURL: "https://example.com/index"}},
	}
	p1 := m.SourcePath(named)
	p2 := m.SourcePath(indexed)
	if p1 == p2 {
		t.Fatalf("named and indexed registry paths should differ, both got %q", p1)
	}
	if !strings.Contains(p1, "registry/my-registry") {
		t.Fatalf("expected named registry segment, got %q", p1)
	}
	if !strings.Contains(p2, "registry-index/") {
		t.Fatalf("expected registry-index segment, got %q", p2)
	}
}

func TestGitDBIdentStableAcrossCalls(t *testing.T) {
	url := "https://github.com/BurntSushi/ripgrep"
	a := GitDBIdent(url)
	b := GitDBIdent(url)
	if a != b {
		t.Fatalf("GitDBIdent not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "ripgrep-") {
		t.Fatalf("expected ripgrep- prefix, got %q", a)
	}
	other := GitDBIdent("https://gitlab.com/foo/ripgrep")
	if other == a {
		t.Fatalf("distinct URLs with the same basename must not collide: %q", a)
	}
}

func TestBuildCacheDirVariesWithOptions(t *testing.T) {
	m := testManager(t)
	r := spec.ResolvedCrate{
		Name: "foo", Version: "1.0.0",
		Source: spec.ResolvedSource{Kind: spec.CratesIo},
	}
	base := m.BuildCacheDir(r, spec.BuildOptions{})
	withFeature := m.BuildCacheDir(r, spec.BuildOptions{Features: []string{"extra"}})
	if base == withFeature {
		t.Fatalf("build cache dir must vary with BuildOptions, got same %q", base)
	}
	if !strings.HasPrefix(base, "/bin/foo-1.0.0/") {
		t.Fatalf("expected /bin/foo-1.0.0/ prefix, got %q", base)
	}
}

func TestPrebuiltCacheDirVariesWithProviderAndTriple(t *testing.T) {
	m := testManager(t)
	r := spec.ResolvedCrate{
		Name: "foo", Version: "1.0.0",
		Source: spec.ResolvedSource{Kind: spec.CratesIo},
	}
	a := m.PrebuiltCacheDir(r, "quickinstall", "x86_64-unknown-linux-gnu")
	b := m.PrebuiltCacheDir(r, "github", "x86_64-unknown-linux-gnu")
	c := m.PrebuiltCacheDir(r, "quickinstall", "aarch64-apple-darwin")
	if a == b || a == c || b == c {
		t.Fatalf("expected distinct dirs, got a=%q b=%q c=%q", a, b, c)
	}
}

func TestBinaryFilenameUsesTargetName(t *testing.T) {
	r := spec.ResolvedCrate{Name: "ripgrep"}
	defaultBin := binaryFilename(r, spec.BuildTarget{Kind: spec.DefaultBin})
	named := binaryFilename(r, spec.BuildTarget{Kind: spec.Bin, Name: "rg"})
	if defaultBin == named {
		t.Fatalf("expected different filenames for default vs named bin target")
	}
}
