// Package specresolver turns a user-facing Spec into a concrete ResolvedCrate by talking
// to the appropriate remote system (a sparse registry index, a git/forge remote, or a
// local Cargo workspace) and wrapping the result in the resolution cache.
package specresolver

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/anelson-labs/cgx/internal/cargoconfig"
	"github.com/anelson-labs/cgx/internal/cargoexec"
	"github.com/anelson-labs/cgx/internal/cargometa"
	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/gitclient"
	"github.com/anelson-labs/cgx/internal/httpx"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/semverx"
	"github.com/anelson-labs/cgx/internal/sparseindex"
	"github.com/anelson-labs/cgx/internal/spec"
)

const cratesIoIndexURL = "https://index.crates.io"

// IndexClient is the sparse-index lookup seam SpecResolver depends on, letting tests
// substitute a fake without standing up an HTTP server.
type IndexClient interface {
	Versions(ctx context.Context, indexURL, name string) ([]sparseindex.VersionEntry, error)
}

// httpIndexClient adapts *sparseindex.Client (bound to a single BaseURL at a time) to
// IndexClient's per-call indexURL parameter, sharing one HTTP transport and local cache
// across every registry a request might name.
type httpIndexClient struct {
	HTTP    httpx.BasicClient
	Cache   sparseindex.Cache
	Offline bool
}

func (c *httpIndexClient) Versions(ctx context.Context, indexURL, name string) ([]sparseindex.VersionEntry, error) {
	client := &sparseindex.Client{
		BaseURL:    indexURL,
		HTTP:       c.HTTP,
		Offline:    c.Offline,
		LocalCache: sparseindex.Namespaced(c.Cache, indexURL),
	}
	return client.Versions(ctx, name)
}

// Resolver is the public spec resolver: a thin caching wrapper around per-variant
// resolution logic. LocalDir specs bypass the cache, since their source is mutable and
// their resolution is cheap.
type Resolver struct {
	Manager     *cgxcache.Manager
	Reporter    reporter.MessageReporter
	Runner      cargoexec.Runner
	GitClient   *gitclient.Client
	IndexClient IndexClient
	CargoCfg    *cargoconfig.Config
	Offline     bool
}

// NewHTTPIndexClient builds the default IndexClient backed by real HTTP requests, with
// an optional shared on-disk sparse-index cache. In offline mode only that cache is ever
// consulted.
func NewHTTPIndexClient(client httpx.BasicClient, cache sparseindex.Cache, offline bool) IndexClient {
	return &httpIndexClient{HTTP: client, Cache: cache, Offline: offline}
}

func (r *Resolver) rep() reporter.MessageReporter {
	if r.Reporter == nil {
		return reporter.Nop{}
	}
	return r.Reporter
}

// Resolve converts s into a ResolvedCrate, consulting and populating the resolution
// cache for every variant except LocalDir.
func (r *Resolver) Resolve(ctx context.Context, s spec.Spec) (spec.ResolvedCrate, error) {
	if s.Kind == spec.LocalDir {
		return r.resolveLocalDir(ctx, s)
	}
	r.rep().Report(reporter.ResolutionStarted{SpecSummary: summarize(s)})
	return r.Manager.GetOrResolve(ctx, s, r.rep(), func(ctx context.Context) (spec.ResolvedCrate, error) {
		switch s.Kind {
		case spec.CratesIo, spec.Registry:
			return r.resolveRegistry(ctx, s)
		case spec.Git, spec.Forge:
			return r.resolveGitOrForge(ctx, s)
		default:
			return spec.ResolvedCrate{}, fmt.Errorf("specresolver: unhandled spec kind %v", s.Kind)
		}
	})
}

func summarize(s spec.Spec) string {
	if s.Name != "" {
		return fmt.Sprintf("%s (%s)", s.Name, s.Kind)
	}
	return string(s.Kind)
}

// resolveLocalDir resolves a local-directory spec: load cargo metadata with
// dependency resolution disabled, pick the package by name/ambiguity rules, and verify
// any requested version range against the manifest's declared version.
func (r *Resolver) resolveLocalDir(ctx context.Context, s spec.Spec) (spec.ResolvedCrate, error) {
	md, err := cargometa.Load(ctx, r.Runner, s.LocalPath, cargometa.LoadOptions{Offline: true})
	if err != nil {
		return spec.ResolvedCrate{}, err
	}
	pkg, ambiguous, found := cargometa.FindPackage(md.MemberPackages(), s.Name)
	if ambiguous {
		return spec.ResolvedCrate{}, cgxerr.New(cgxerr.AmbiguousPackageName)
	}
	if !found {
		return spec.ResolvedCrate{}, cgxerr.New(cgxerr.PackageNotFoundInWorkspace)
	}
	if !versionMatches(pkg.Version, s.VersionReq) {
		return spec.ResolvedCrate{}, cgxerr.New(cgxerr.VersionMismatch)
	}
	return spec.ResolvedCrate{
		Name:    pkg.Name,
		Version: pkg.Version,
		Source:  spec.ResolvedSource{Kind: spec.LocalDir, LocalPath: s.LocalPath},
	}, nil
}

// resolveRegistry resolves a crates.io or alternative-registry spec: query the sparse index,
// filter yanked versions, and select the highest version satisfying the range.
func (r *Resolver) resolveRegistry(ctx context.Context, s spec.Spec) (spec.ResolvedCrate, error) {
	indexURL := cratesIoIndexURL
	resolvedSource := spec.ResolvedSource{Kind: s.Kind}
	if s.Kind == spec.Registry {
		resolvedSource.Registry = s.Registry
		if s.Registry.IndexURL != "" {
			indexURL = s.Registry.IndexURL
		} else if s.Registry.Named != "" {
			url, ok := r.CargoCfg.ResolveIndexURL(s.Registry.Named)
			if !ok {
				return spec.ResolvedCrate{}, fmt.Errorf("specresolver: unknown registry %q", s.Registry.Named)
			}
			indexURL = url
		}
	}

	entries, err := r.IndexClient.Versions(ctx, indexURL, s.Name)
	if err != nil {
		if cgxerr.Is(err, cgxerr.CrateNotFoundInRegistry) && r.Offline {
			return spec.ResolvedCrate{}, &cgxerr.Error{Kind: cgxerr.OfflineMode, Name: s.Name}
		}
		return spec.ResolvedCrate{}, err
	}

	constraints, err := semverx.ParseRange(s.RawVersionReq)
	if err != nil {
		return spec.ResolvedCrate{}, fmt.Errorf("specresolver: invalid version range %q: %w", s.RawVersionReq, err)
	}
	candidates := make([]semverx.Candidate, len(entries))
	for i, e := range entries {
		candidates[i] = semverx.Candidate{Raw: e.Vers, Yanked: e.Yanked}
	}
	version, ok := semverx.SelectHighest(candidates, constraints)
	if !ok {
		return spec.ResolvedCrate{}, cgxerr.New(cgxerr.NoMatchingVersion)
	}

	return spec.ResolvedCrate{Name: s.Name, Version: version, Source: resolvedSource}, nil
}

// resolveGitOrForge resolves a git or forge spec: pin the selector to a commit
// via GitClient, then read the crate's manifest from the checkout to identify the
// package and verify any version requirement.
func (r *Resolver) resolveGitOrForge(ctx context.Context, s spec.Spec) (spec.ResolvedCrate, error) {
	url := gitURLFor(s)
	checkoutPath, commit, err := r.GitClient.ResolveRef(ctx, url, s.Selector)
	if err != nil {
		return spec.ResolvedCrate{}, err
	}
	md, err := cargometa.Load(ctx, r.Runner, checkoutPath, cargometa.LoadOptions{Offline: true})
	if err != nil {
		return spec.ResolvedCrate{}, err
	}
	pkg, ambiguous, found := cargometa.FindPackage(md.MemberPackages(), s.Name)
	if ambiguous {
		return spec.ResolvedCrate{}, cgxerr.New(cgxerr.AmbiguousPackageName)
	}
	if !found {
		return spec.ResolvedCrate{}, cgxerr.New(cgxerr.PackageNotFoundInWorkspace)
	}
	if !versionMatches(pkg.Version, s.VersionReq) {
		return spec.ResolvedCrate{}, cgxerr.New(cgxerr.VersionMismatch)
	}

	source := spec.ResolvedSource{Kind: s.Kind, Commit: commit}
	if s.Kind == spec.Git {
		source.GitURL = s.GitURL
	} else {
		source.Forge = s.Forge
	}
	return spec.ResolvedCrate{Name: pkg.Name, Version: pkg.Version, Source: source}, nil
}

// gitURLFor computes the underlying git remote URL for a Spec. A Forge spec with a
// custom Host (a GitHub/GitLab Enterprise deployment) keeps that host; otherwise the
// public forge host is assumed.
func gitURLFor(s spec.Spec) string {
	if s.Kind == spec.Git {
		return s.GitURL
	}
	host := s.Forge.Host
	if host == "" {
		switch s.Forge.Forge {
		case spec.GitHub:
			host = "github.com"
		case spec.GitLab:
			host = "gitlab.com"
		}
	}
	return fmt.Sprintf("https://%s/%s/%s", host, s.Forge.Owner, s.Forge.Repo)
}

// versionMatches reports whether raw satisfies req, tolerating a nil req (meaning "any")
// and an unparsable raw (a malformed manifest version never matches an explicit range).
func versionMatches(raw string, req *semver.Constraints) bool {
	if req == nil {
		return true
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return false
	}
	return req.Check(v)
}
