package cgxcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/spec"
)

type fakeSBOMGenerator struct {
	calls int
	body  []byte
	err   error
}

func (f *fakeSBOMGenerator) Generate(context.Context, spec.ResolvedCrate, spec.BuildOptions, string) ([]byte, error) {
	f.calls++
	return f.body, f.err
}

func writeFakeBinary(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "built-binary")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestGetOrBuildBinaryCompilesOnMiss(t *testing.T) {
	root := t.TempDir()
	m := New(config.Config{BinRoot: filepath.Join(root, "bin")})
	r := testCrate()
	o := spec.BuildOptions{}

	srcDir := t.TempDir()
	compiledPath := writeFakeBinary(t, t.TempDir())
	calls := 0
	compile := func(context.Context) (string, error) {
		calls++
		return compiledPath, nil
	}
	binPath, err := m.GetOrBuildBinary(context.Background(), r, o, srcDir, nil, nil, compile)
	if err != nil {
		t.Fatalf("GetOrBuildBinary: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected compile once, got %d", calls)
	}
	if !exists(binPath) {
		t.Fatalf("published binary missing at %q", binPath)
	}
}

func TestGetOrBuildBinaryCachesOnSecondCall(t *testing.T) {
	root := t.TempDir()
	m := New(config.Config{BinRoot: filepath.Join(root, "bin")})
	r := testCrate()
	o := spec.BuildOptions{}

	srcDir := t.TempDir()
	compiledPath := writeFakeBinary(t, t.TempDir())
	calls := 0
	compile := func(context.Context) (string, error) {
		calls++
		return compiledPath, nil
	}
	if _, err := m.GetOrBuildBinary(context.Background(), r, o, srcDir, nil, nil, compile); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := m.GetOrBuildBinary(context.Background(), r, o, srcDir, nil, nil, compile); err != nil {
		t.Fatalf("second build: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected compile to run once, got %d calls", calls)
	}
}

func TestGetOrBuildBinaryWritesSBOMSidecar(t *testing.T) {
	root := t.TempDir()
	m := New(config.Config{BinRoot: filepath.Join(root, "bin")})
	r := testCrate()
	o := spec.BuildOptions{}

	srcDir := t.TempDir()
	compiledPath := writeFakeBinary(t, t.TempDir())
	compile := func(context.Context) (string, error) { return compiledPath, nil }
	gen := &fakeSBOMGenerator{body: []byte(`{"bomFormat":"CycloneDX"}`)}

	binPath, err := m.GetOrBuildBinary(context.Background(), r, o, srcDir, nil, gen, compile)
	if err != nil {
		t.Fatalf("GetOrBuildBinary: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected SBOM generator to run once, got %d", gen.calls)
	}
	sbomPath := filepath.Join(filepath.Dir(binPath), "sbom.cyclonedx.json")
	got, err := os.ReadFile(sbomPath)
	if err != nil {
		t.Fatalf("reading sbom sidecar: %v", err)
	}
	if string(got) != `{"bomFormat":"CycloneDX"}` {
		t.Fatalf("unexpected sbom content: %s", got)
	}
}

func TestGetOrBuildBinaryDistinctKeysPerOptions(t *testing.T) {
	root := t.TempDir()
	m := New(config.Config{BinRoot: filepath.Join(root, "bin")})
	r := testCrate()

	srcDir := t.TempDir()
	compile := func(context.Context) (string, error) {
		return writeFakeBinary(t, t.TempDir()), nil
	}
	p1, err := m.GetOrBuildBinary(context.Background(), r, spec.BuildOptions{}, srcDir, nil, nil, compile)
	if err != nil {
		t.Fatalf("build 1: %v", err)
	}
	p2, err := m.GetOrBuildBinary(context.Background(), r, spec.BuildOptions{Features: []string{"extra"}}, srcDir, nil, nil, compile)
	if err != nil {
		t.Fatalf("build 2: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct cache entries for distinct BuildOptions, both got %q", p1)
	}
}
