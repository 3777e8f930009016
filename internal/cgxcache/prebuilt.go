package cgxcache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/spec"
)

// negativeSentinel marks a prebuilt-cache directory as "previously probed, nothing
// found", so later runs skip re-probing providers that had no binary.
const negativeSentinel = ".no-binary-found"

// PrebuiltResult is the outcome of a single resolve attempt fed to GetOrResolvePrebuilt.
type PrebuiltResult struct {
	Found bool
	Path  string // populated only when Found
	// Provider names which provider produced Path on a fresh resolve; empty on a cache
	// hit, since the cache itself does not distinguish which provider won the race.
	Provider string
}

// GetOrResolvePrebuilt implements the prebuilt-cache wrapper: a cache hit (positive or
// negative) skips the provider probe including network. `--refresh`
// (config.RefreshResolution or above) bypasses the negative sentinel but not a positive
// binary cache hit.
func (m *Manager) GetOrResolvePrebuilt(ctx context.Context, r spec.ResolvedCrate, o spec.BuildOptions, provider, triple string, rep reporter.MessageReporter, resolve func(context.Context) (PrebuiltResult, error)) (PrebuiltResult, error) {
	if rep == nil {
		rep = reporter.Nop{}
	}
	dir := m.PrebuiltCacheDir(r, provider, triple)
	filename := binaryFilename(r, o.BuildTarget)
	binPath := filepath.Join(dir, filename)
	sentinelPath := filepath.Join(dir, negativeSentinel)

	if exists(binPath) {
		rep.Report(reporter.CacheHit{Class: reporter.PrebuiltCache, Key: binPath})
		return PrebuiltResult{Found: true, Path: binPath}, nil
	}
	hadSentinel := exists(sentinelPath)
	if m.cfg.Refresh < config.RefreshResolution && hadSentinel {
		rep.Report(reporter.CacheHit{Class: reporter.PrebuiltCache, Key: sentinelPath})
		return PrebuiltResult{Found: false}, nil
	}
	rep.Report(reporter.CacheMiss{Class: reporter.PrebuiltCache, Key: binPath})

	result, err := resolve(ctx)
	if err != nil {
		return PrebuiltResult{}, err
	}

	// A bypassed sentinel leaves the old entry directory in place, which would make the
	// publish rename lose to it and silently keep the stale result. Clear it first.
	if hadSentinel {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return PrebuiltResult{}, cgxerr.WrapPath(rmErr, cgxerr.IOFailure, dir)
		}
	}

	temp, serr := stagingDir(dir)
	if serr != nil {
		return PrebuiltResult{}, serr
	}
	if result.Found {
		if cerr := copyFile(result.Path, filepath.Join(temp, filename), fileMode()); cerr != nil {
			cleanupTemp(temp)
			return PrebuiltResult{}, cerr
		}
	} else {
		if werr := writeFileAtomic(filepath.Join(temp, negativeSentinel), []byte("1")); werr != nil {
			cleanupTemp(temp)
			return PrebuiltResult{}, werr
		}
	}
	if perr := publish(temp, dir); perr != nil {
		return PrebuiltResult{}, perr
	}
	if result.Found {
		return PrebuiltResult{Found: true, Path: binPath, Provider: result.Provider}, nil
	}
	return PrebuiltResult{Found: false}, nil
}
