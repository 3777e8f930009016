package cgxcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/spec"
)

func testCrate() spec.ResolvedCrate {
	return spec.ResolvedCrate{
		Name:    "ripgrep",
		Version: "14.1.0",
		Source:  spec.ResolvedSource{Kind: spec.CratesIo},
	}
}

func TestGetOrDownloadPopulatesOnMiss(t *testing.T) {
	m := New(config.Config{CacheRoot: t.TempDir()})
	r := testCrate()

	calls := 0
	populate := func(_ context.Context, tempDir string) error {
		calls++
		return os.WriteFile(filepath.Join(tempDir, "Cargo.toml"), []byte("[package]\n"), 0o644)
	}
	dir, err := m.GetOrDownload(context.Background(), r, nil, populate)
	if err != nil {
		t.Fatalf("GetOrDownload: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected populate to be called once, got %d", calls)
	}
	if !exists(filepath.Join(dir, "Cargo.toml")) {
		t.Fatalf("expected Cargo.toml in published source dir")
	}
}

func TestGetOrDownloadHitsCacheOnSecondCall(t *testing.T) {
	m := New(config.Config{CacheRoot: t.TempDir()})
	r := testCrate()

	calls := 0
	populate := func(_ context.Context, tempDir string) error {
		calls++
		return os.WriteFile(filepath.Join(tempDir, "Cargo.toml"), []byte("[package]\n"), 0o644)
	}
	if _, err := m.GetOrDownload(context.Background(), r, nil, populate); err != nil {
		t.Fatalf("first GetOrDownload: %v", err)
	}
	if _, err := m.GetOrDownload(context.Background(), r, nil, populate); err != nil {
		t.Fatalf("second GetOrDownload: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected populate to not be called again, got %d calls", calls)
	}
}

func TestGetOrDownloadCleansUpOnPopulateFailure(t *testing.T) {
	m := New(config.Config{CacheRoot: t.TempDir()})
	r := testCrate()

	wantErr := os.ErrPermission
	populate := func(_ context.Context, tempDir string) error {
		return wantErr
	}
	_, err := m.GetOrDownload(context.Background(), r, nil, populate)
	if err == nil {
		t.Fatalf("expected error from failing populate")
	}
	if exists(m.SourcePath(r)) {
		t.Fatalf("destination must not exist after a failed populate")
	}
	parent := filepath.Dir(m.SourcePath(r))
	entries, rerr := os.ReadDir(parent)
	if rerr == nil {
		for _, e := range entries {
			if e.Name() != filepath.Base(m.SourcePath(r)) {
				continue
			}
		}
		if len(entries) != 0 {
			t.Fatalf("expected no leftover staging directories, found %v", entries)
		}
	}
}

func TestGetOrDownloadRefreshAllForcesRepopulate(t *testing.T) {
	m := New(config.Config{CacheRoot: t.TempDir(), Refresh: config.RefreshAll})
	r := testCrate()

	calls := 0
	populate := func(_ context.Context, tempDir string) error {
		calls++
		return os.WriteFile(filepath.Join(tempDir, "Cargo.toml"), []byte("[package]\n"), 0o644)
	}
	if _, err := m.GetOrDownload(context.Background(), r, nil, populate); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := m.GetOrDownload(context.Background(), r, nil, populate); err != nil {
		t.Fatalf("second: %v", err)
	}
	if calls != 2 {
		t.Fatalf("--refresh=all must force repopulation every call, got %d calls", calls)
	}
}
