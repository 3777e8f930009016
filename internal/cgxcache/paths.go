package cgxcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	"github.com/anelson-labs/cgx/internal/spec"
)

func hash8(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// SourcePath derives the stable source-cache directory for a resolved, non-LocalDir
// crate. It panics if called with a LocalDir source: those are never cached and must
// never be passed here.
func (m *Manager) SourcePath(r spec.ResolvedCrate) string {
	root := filepath.Join(m.cfg.CacheRoot, "sources")
	switch r.Source.Kind {
	case spec.CratesIo:
		return filepath.Join(root, "crates-io", r.Name, r.Version)
	case spec.Registry:
		if r.Source.Registry.Named != "" {
			return filepath.Join(root, "registry", r.Source.Registry.Named, r.Name, r.Version)
		}
		return filepath.Join(root, "registry-index", hash8(r.Source.Registry.IndexURL), r.Name, r.Version)
	case spec.Git:
		return filepath.Join(root, "git", hash8(r.Source.GitURL), r.Source.Commit)
	case spec.Forge:
		switch r.Source.Forge.Forge {
		case spec.GitHub:
			return filepath.Join(root, "github", r.Source.Forge.Owner, r.Source.Forge.Repo, r.Source.Commit)
		case spec.GitLab:
			return filepath.Join(root, "gitlab", r.Source.Forge.Owner, r.Source.Forge.Repo, r.Source.Commit)
		}
	case spec.LocalDir:
		panic(errors.New("SourcePath called with a LocalDir source").Error())
	}
	panic(errors.Errorf("SourcePath: unhandled source kind %v", r.Source.Kind).Error())
}

// GitDBIdent computes the stable identifier used for the bare-repo and checkout caches:
// the URL's last path segment joined with the first 8 hex digits of its hash, keeping
// the directory name readable while disambiguating same-named repositories.
func GitDBIdent(url string) string {
	last := filepath.Base(url)
	return fmt.Sprintf("%s-%s", last, hash8(url))
}

func (m *Manager) GitDBPath(url string) string {
	return filepath.Join(m.cfg.CacheRoot, "git-db", GitDBIdent(url))
}

func (m *Manager) GitCheckoutPath(url, commit string) string {
	return filepath.Join(m.cfg.CacheRoot, "git-checkouts", GitDBIdent(url), commit)
}

// sourceHash and buildHash are the 16-hex-digit components of the build/prebuilt cache
// layout.
func sourceHash(r spec.ResolvedCrate) string {
	return spec.EncodeSource(r.Name, r.Version, r.Source)
}

func buildHash(o spec.BuildOptions) string {
	return spec.EncodeBuildOptions(o)
}

// binaryFilename derives the cached binary's filename from the resolved BuildTarget,
// appending .exe on Windows.
func binaryFilename(r spec.ResolvedCrate, target spec.BuildTarget) string {
	name := r.Name
	if target.Kind != spec.DefaultBin {
		name = target.Name
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// BuildCacheDir returns the directory for a (resolved, options) build-cache entry.
func (m *Manager) BuildCacheDir(r spec.ResolvedCrate, o spec.BuildOptions) string {
	return filepath.Join(m.cfg.BinRoot, r.String(), sourceHash(r), buildHash(o))
}

// PrebuiltCacheDir returns the directory for a (resolved, provider, triple) prebuilt-cache
// entry.
func (m *Manager) PrebuiltCacheDir(r spec.ResolvedCrate, provider, triple string) string {
	return filepath.Join(m.cfg.BinRoot, r.String(), sourceHash(r), fmt.Sprintf("prebuilt-%s-%s", provider, triple))
}
