package gitclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/spec"
)

// initUpstream creates a local repository with one commit on the default branch and an
// annotated tag v1.0.0 pointing at it, standing in for a remote.
func initUpstream(t *testing.T) (dir, commit string) {
	t.Helper()
	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"demo\"\nversion = \"1.0.0\"\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := wt.Add("Cargo.toml"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	sig := &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()}
	hash, err := wt.Commit("initial", &git.CommitOptions{Author: sig})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := repo.CreateTag("v1.0.0", hash, &git.CreateTagOptions{Tagger: sig, Message: "v1.0.0"}); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	return dir, hash.String()
}

func testManager(t *testing.T) *cgxcache.Manager {
	t.Helper()
	return cgxcache.New(config.Config{CacheRoot: t.TempDir()})
}

func TestResolveRefDefaultBranch(t *testing.T) {
	upstream, commit := initUpstream(t)
	m := testManager(t)
	c := New(m, nil, false)

	checkout, got, err := c.ResolveRef(context.Background(), upstream, spec.DefaultBranchSelector())
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if got != commit {
		t.Fatalf("resolved %q, want HEAD commit %q", got, commit)
	}
	if _, err := os.Stat(filepath.Join(checkout, "Cargo.toml")); err != nil {
		t.Fatalf("checkout missing manifest: %v", err)
	}
	if checkout != m.GitCheckoutPath(upstream, commit) {
		t.Fatalf("checkout %q not at the stable cache path", checkout)
	}
}

func TestResolveRefAnnotatedTagPeelsToCommit(t *testing.T) {
	upstream, commit := initUpstream(t)
	m := testManager(t)
	c := New(m, nil, false)

	// Prime the bare database with a full clone so tag resolution needs no fetch.
	if _, _, err := c.ResolveRef(context.Background(), upstream, spec.DefaultBranchSelector()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	_, got, err := c.ResolveRef(context.Background(), upstream, spec.TagSelector("v1.0.0"))
	if err != nil {
		t.Fatalf("ResolveRef tag: %v", err)
	}
	if got != commit {
		t.Fatalf("annotated tag resolved to %q, want peeled commit %q", got, commit)
	}
}

func TestResolveRefCommitReusesCheckout(t *testing.T) {
	upstream, commit := initUpstream(t)
	m := testManager(t)
	c := New(m, nil, false)

	first, _, err := c.ResolveRef(context.Background(), upstream, spec.CommitSelector(commit))
	if err != nil {
		t.Fatalf("first ResolveRef: %v", err)
	}
	marker := filepath.Join(first, ".reused")
	if err := os.WriteFile(marker, []byte("1"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	second, _, err := c.ResolveRef(context.Background(), upstream, spec.CommitSelector(commit))
	if err != nil {
		t.Fatalf("second ResolveRef: %v", err)
	}
	if second != first {
		t.Fatalf("expected checkout reuse, got %q then %q", first, second)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("existing checkout was rebuilt instead of reused: %v", err)
	}
}

func TestResolveRefUnknownBranchIsRefMismatch(t *testing.T) {
	upstream, _ := initUpstream(t)
	m := testManager(t)
	c := New(m, nil, false)

	if _, _, err := c.ResolveRef(context.Background(), upstream, spec.DefaultBranchSelector()); err != nil {
		t.Fatalf("prime: %v", err)
	}
	_, _, err := c.ResolveRef(context.Background(), upstream, spec.BranchSelector("does-not-exist"))
	if !cgxerr.Is(err, cgxerr.RefMismatch) {
		t.Fatalf("expected RefMismatch, got %v", err)
	}
}

func TestResolveRefOfflineWithoutDatabase(t *testing.T) {
	upstream, commit := initUpstream(t)
	m := testManager(t)
	c := New(m, nil, true)

	_, _, err := c.ResolveRef(context.Background(), upstream, spec.CommitSelector(commit))
	if !cgxerr.Is(err, cgxerr.OfflineMode) {
		t.Fatalf("expected OfflineMode, got %v", err)
	}
}

func TestResolveRefOfflineWithPopulatedCaches(t *testing.T) {
	upstream, commit := initUpstream(t)
	m := testManager(t)

	if _, _, err := New(m, nil, false).ResolveRef(context.Background(), upstream, spec.CommitSelector(commit)); err != nil {
		t.Fatalf("online populate: %v", err)
	}
	checkout, got, err := New(m, nil, true).ResolveRef(context.Background(), upstream, spec.CommitSelector(commit))
	if err != nil {
		t.Fatalf("offline ResolveRef with warm caches: %v", err)
	}
	if got != commit {
		t.Fatalf("resolved %q, want %q", got, commit)
	}
	if _, err := os.Stat(filepath.Join(checkout, "Cargo.toml")); err != nil {
		t.Fatalf("checkout missing manifest: %v", err)
	}
}
