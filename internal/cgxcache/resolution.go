package cgxcache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/spec"
)

// resolutionEntry is the on-disk shape of a resolution-cache file:
// {"value": ResolvedCrate, "cached_at": <RFC-3339 timestamp>}.
type resolutionEntry struct {
	Value    spec.ResolvedCrate `json:"value"`
	CachedAt time.Time          `json:"cached_at"`
}

func (m *Manager) resolutionPath(s spec.Spec) string {
	return filepath.Join(m.cfg.CacheRoot, "resolve", spec.EncodeSpec(s)+".json")
}

func (m *Manager) readResolution(path string) (*resolutionEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e resolutionEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetOrResolve implements the resolution-cache operation. It reads a non-stale
// entry if one exists, otherwise calls compute; on success the result is published
// atomically, and on a transient failure a stale entry (if any) is served as a fallback.
// Permanent errors always propagate without consulting the stale entry.
func (m *Manager) GetOrResolve(ctx context.Context, s spec.Spec, rep reporter.MessageReporter, compute func(context.Context) (spec.ResolvedCrate, error)) (spec.ResolvedCrate, error) {
	if rep == nil {
		rep = reporter.Nop{}
	}
	path := m.resolutionPath(s)
	key := spec.EncodeSpec(s)

	if m.cfg.Refresh < config.RefreshResolution {
		if entry, err := m.readResolution(path); err == nil {
			if m.now().Sub(entry.CachedAt) < m.cfg.ResolveCacheTTL {
				rep.Report(reporter.CacheHit{Class: reporter.ResolutionCache, Key: key})
				return entry.Value, nil
			}
		}
	}
	rep.Report(reporter.CacheMiss{Class: reporter.ResolutionCache, Key: key})

	result, err := compute(ctx)
	if err != nil {
		if cgxerr.Classify(err) == cgxerr.Transient {
			if entry, rerr := m.readResolution(path); rerr == nil {
				rep.Report(reporter.CacheHit{Class: reporter.ResolutionCache, Key: key, Stale: true})
				return entry.Value, nil
			}
		}
		return spec.ResolvedCrate{}, err
	}

	entry := resolutionEntry{Value: result, CachedAt: m.now()}
	b, merr := json.Marshal(entry)
	if merr != nil {
		return result, cgxerr.Wrap(merr, cgxerr.IOFailure)
	}
	if werr := writeFileAtomic(path, b); werr != nil {
		return result, werr
	}
	return result, nil
}
