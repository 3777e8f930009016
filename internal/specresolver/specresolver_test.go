package specresolver

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/anelson-labs/cgx/internal/cargoexec"
	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/sparseindex"
	"github.com/anelson-labs/cgx/internal/spec"
)

const workspaceMetadata = `{
  "packages": [
    {"name": "ripgrep", "version": "14.1.0", "id": "ripgrep 14.1.0 (path+file:///x)", "default_run": null,
     "targets": [{"name": "rg", "kind": ["bin"]}]}
  ],
  "workspace_members": ["ripgrep 14.1.0 (path+file:///x)"],
  "workspace_root": "/x"
}`

const ambiguousMetadata = `{
  "packages": [
    {"name": "a", "version": "1.0.0", "id": "a 1.0.0 (path+file:///x)", "default_run": null,
     "targets": [{"name": "a", "kind": ["bin"]}]},
    {"name": "b", "version": "1.0.0", "id": "b 1.0.0 (path+file:///x)", "default_run": null,
     "targets": [{"name": "b", "kind": ["bin"]}]}
  ],
  "workspace_members": ["a 1.0.0 (path+file:///x)", "b 1.0.0 (path+file:///x)"],
  "workspace_root": "/x"
}`

func newManager(t *testing.T) *cgxcache.Manager {
	t.Helper()
	cfg := config.Default()
	cfg.CacheRoot = t.TempDir()
	return cgxcache.New(cfg).WithClock(func() time.Time { return time.Unix(0, 0) })
}

func TestResolveLocalDirSingle(t *testing.T) {
	runner := &cargoexec.FakeRunner{
		OutputFunc: func(ctx context.Context, dir, name string, args []string) ([]byte, error) {
			return []byte(workspaceMetadata), nil
		},
	}
	r := &Resolver{Manager: newManager(t), Runner: runner}
	got, err := r.Resolve(context.Background(), spec.Spec{Kind: spec.LocalDir, LocalPath: "/x"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Name != "ripgrep" || got.Version != "14.1.0" {
		t.Fatalf("unexpected resolved crate: %+v", got)
	}
	if got.Source.Kind != spec.LocalDir || got.Source.LocalPath != "/x" {
		t.Fatalf("unexpected resolved source: %+v", got.Source)
	}
}

func TestResolveLocalDirAmbiguous(t *testing.T) {
	runner := &cargoexec.FakeRunner{
		OutputFunc: func(ctx context.Context, dir, name string, args []string) ([]byte, error) {
			return []byte(ambiguousMetadata), nil
		},
	}
	r := &Resolver{Manager: newManager(t), Runner: runner}
	_, err := r.Resolve(context.Background(), spec.Spec{Kind: spec.LocalDir, LocalPath: "/x"})
	if !cgxerr.Is(err, cgxerr.AmbiguousPackageName) {
		t.Fatalf("expected AmbiguousPackageName, got %v", err)
	}
}

func TestResolveLocalDirVersionMismatch(t *testing.T) {
	runner := &cargoexec.FakeRunner{
		OutputFunc: func(ctx context.Context, dir, name string, args []string) ([]byte, error) {
			return []byte(workspaceMetadata), nil
		},
	}
	req, err := semver.NewConstraint("^13.0.0")
	if err != nil {
		t.Fatalf("NewConstraint: %v", err)
	}
	r := &Resolver{Manager: newManager(t), Runner: runner}
	_, err = r.Resolve(context.Background(), spec.Spec{
		Kind: spec.LocalDir, LocalPath: "/x", Name: "ripgrep", VersionReq: req,
	})
	if !cgxerr.Is(err, cgxerr.VersionMismatch) {
		t.Fatalf("expected VersionMismatch, got %v", err)
	}
}

type fakeIndexClient struct {
	entries []sparseindex.VersionEntry
	err     error
}

func (f *fakeIndexClient) Versions(ctx context.Context, indexURL, name string) ([]sparseindex.VersionEntry, error) {
	return f.entries, f.err
}

func TestResolveRegistrySelectsHighestNonYanked(t *testing.T) {
	idx := &fakeIndexClient{entries: []sparseindex.VersionEntry{
		{Name: "serde", Vers: "1.0.1"},
		{Name: "serde", Vers: "1.0.2", Yanked: true},
		{Name: "serde", Vers: "1.0.3"},
	}}
	r := &Resolver{Manager: newManager(t), IndexClient: idx}
	got, err := r.Resolve(context.Background(), spec.Spec{Kind: spec.CratesIo, Name: "serde"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Version != "1.0.3" {
		t.Fatalf("expected highest non-yanked version 1.0.3, got %s", got.Version)
	}
}

func TestResolveRegistryNoMatchingVersion(t *testing.T) {
	idx := &fakeIndexClient{entries: []sparseindex.VersionEntry{
		{Name: "serde", Vers: "1.0.1"},
	}}
	r := &Resolver{Manager: newManager(t), IndexClient: idx}
	_, err := r.Resolve(context.Background(), spec.Spec{Kind: spec.CratesIo, Name: "serde", RawVersionReq: "^2.0.0"})
	if !cgxerr.Is(err, cgxerr.NoMatchingVersion) {
		t.Fatalf("expected NoMatchingVersion, got %v", err)
	}
}

func TestGitURLForDefaultsAndEnterpriseHost(t *testing.T) {
	got := gitURLFor(spec.Spec{Kind: spec.Forge, Forge: spec.ForgeRef{Forge: spec.GitHub, Owner: "sharkdp", Repo: "fd"}})
	if got != "https://github.com/sharkdp/fd" {
		t.Fatalf("unexpected default github url: %s", got)
	}
	got = gitURLFor(spec.Spec{Kind: spec.Forge, Forge: spec.ForgeRef{Forge: spec.GitLab, Host: "gitlab.example.com", Owner: "team", Repo: "tool"}})
	if got != "https://gitlab.example.com/team/tool" {
		t.Fatalf("unexpected enterprise gitlab url: %s", got)
	}
	got = gitURLFor(spec.Spec{Kind: spec.Git, GitURL: "https://example.com/x.git"})
	if got != "https://example.com/x.git" {
		t.Fatalf("unexpected plain git url: %s", got)
	}
}

func TestVersionMatches(t *testing.T) {
	if !versionMatches("1.2.3", nil) {
		t.Fatalf("nil req should match anything")
	}
	req, _ := semver.NewConstraint("^1.0.0")
	if !versionMatches("1.2.3", req) {
		t.Fatalf("1.2.3 should satisfy ^1.0.0")
	}
	if versionMatches("2.0.0", req) {
		t.Fatalf("2.0.0 should not satisfy ^1.0.0")
	}
	if versionMatches("not-a-version", req) {
		t.Fatalf("unparsable version should never match")
	}
}
