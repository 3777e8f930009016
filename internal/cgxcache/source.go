package cgxcache

import (
	"context"
	"os"

	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/spec"
)

// GetOrDownload implements the source-cache operation. If the source cache
// directory already exists it is returned directly; otherwise populate is called against
// a sibling temporary directory, which it is expected to fully materialize before
// returning, and the result is atomically published.
//
// Callers must not invoke this for LocalDir sources (SourcePath panics in that case);
// the source acquirer short-circuits LocalDir specs before reaching the cache.
func (m *Manager) GetOrDownload(ctx context.Context, r spec.ResolvedCrate, rep reporter.MessageReporter, populate func(ctx context.Context, tempDir string) error) (string, error) {
	if rep == nil {
		rep = reporter.Nop{}
	}
	dest := m.SourcePath(r)
	refreshing := exists(dest)
	if m.cfg.Refresh < config.RefreshAll && refreshing {
		rep.Report(reporter.CacheHit{Class: reporter.SourceCache, Key: dest})
		return dest, nil
	}
	rep.Report(reporter.CacheMiss{Class: reporter.SourceCache, Key: dest})
	temp, err := stagingDir(dest)
	if err != nil {
		return "", err
	}
	if err := populate(ctx, temp); err != nil {
		cleanupTemp(temp)
		return "", err
	}
	// Under --refresh=all the old tree is still in place; clear it so the fresh download
	// actually replaces it instead of losing the publish rename to it.
	if refreshing {
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			cleanupTemp(temp)
			return "", cgxerr.WrapPath(rmErr, cgxerr.IOFailure, dest)
		}
	}
	if err := publish(temp, dest); err != nil {
		return "", err
	}
	return dest, nil
}
