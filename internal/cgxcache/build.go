package cgxcache

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/spec"
)

// SBOMGenerator produces a CycloneDX SBOM document for a successfully-built crate.
// The builder invokes this through the cache so the sidecar is published atomically
// alongside the binary.
type SBOMGenerator interface {
	Generate(ctx context.Context, r spec.ResolvedCrate, o spec.BuildOptions, sourceDir string) ([]byte, error)
}

// GetOrBuildBinary implements the build-cache operation. LocalDir sources must never
// reach this method; callers bypass the cache entirely for them.
func (m *Manager) GetOrBuildBinary(ctx context.Context, r spec.ResolvedCrate, o spec.BuildOptions, sourceDir string, rep reporter.MessageReporter, sbomGen SBOMGenerator, compile func(context.Context) (string, error)) (string, error) {
	if rep == nil {
		rep = reporter.Nop{}
	}
	dir := m.BuildCacheDir(r, o)
	filename := binaryFilename(r, o.BuildTarget)
	binPath := filepath.Join(dir, filename)

	refreshing := exists(binPath)
	if m.cfg.Refresh < config.RefreshAll && refreshing {
		rep.Report(reporter.CacheHit{Class: reporter.BuildCache, Key: binPath})
		return binPath, nil
	}
	rep.Report(reporter.CacheMiss{Class: reporter.BuildCache, Key: binPath})

	compiledPath, err := compile(ctx)
	if err != nil {
		return "", err
	}

	temp, err := stagingDir(dir)
	if err != nil {
		return "", err
	}
	perm := fileMode()
	if err := copyFile(compiledPath, filepath.Join(temp, filename), perm); err != nil {
		cleanupTemp(temp)
		return "", err
	}
	if sbomGen != nil {
		sbomBytes, serr := sbomGen.Generate(ctx, r, o, sourceDir)
		if serr != nil {
			cleanupTemp(temp)
			return "", serr
		}
		if werr := writeFileAtomic(filepath.Join(temp, "sbom.cyclonedx.json"), sbomBytes); werr != nil {
			cleanupTemp(temp)
			return "", werr
		}
	}
	// Under --refresh=all the old entry directory is still in place; clear it so the
	// rebuilt binary actually replaces it instead of losing the publish rename to it.
	if refreshing {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			cleanupTemp(temp)
			return "", cgxerr.WrapPath(rmErr, cgxerr.IOFailure, dir)
		}
	}
	if err := publish(temp, dir); err != nil {
		return "", err
	}
	return binPath, nil
}

func fileMode() os.FileMode {
	if runtime.GOOS == "windows" {
		return 0o644
	}
	return 0o755
}
