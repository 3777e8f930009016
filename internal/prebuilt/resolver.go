// Package prebuilt races quickinstall/GitHub/GitLab release providers for a precompiled
// binary matching a ResolvedCrate and Rust target triple. Each provider's attempt first
// consults that provider's own prebuilt cache entry, so a cached hit or negative sentinel
// skips that provider's network probe; it does not stop the other providers from running.
package prebuilt

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/anelson-labs/cgx/internal/archivex"
	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/httpx"
	"github.com/anelson-labs/cgx/internal/manifest"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/spec"
)

// IsDisqualified reports whether o rules out prebuilt resolution entirely (any
// non-default build configuration means no published release artifact can match), along
// with a human-readable reason for the Disqualified report event. Fields are checked in
// a fixed order so the reported reason is deterministic.
func IsDisqualified(o spec.BuildOptions) (reason string, disqualified bool) {
	switch {
	case o.BuildTarget.Kind != spec.DefaultBin:
		return "an explicit --bin or --example was requested", true
	case len(o.Features) > 0:
		return "custom features were requested", true
	case o.AllFeatures:
		return "--all-features was requested", true
	case o.NoDefaultFeatures:
		return "--no-default-features was requested", true
	case o.Profile != "":
		return "a custom build profile was requested", true
	case o.TargetTriple != "":
		return "a custom target triple was requested", true
	case o.Toolchain != "":
		return "a custom toolchain was requested", true
	default:
		return "", false
	}
}

// Resolver is the public PrebuiltResolver: disqualification, then a cache-aware race
// across the configured providers.
type Resolver struct {
	Manager         *cgxcache.Manager
	Reporter        reporter.MessageReporter
	HTTP            httpx.BasicClient
	Mode            config.PrebuiltMode
	Enabled         []config.Provider
	VerifyChecksums bool
	// Triple is the Rust target triple of the host cgx itself runs on, the only triple
	// prebuilt resolution ever targets; a user-supplied triple disqualifies prebuilt
	// entirely.
	Triple string
}

func (r *Resolver) rep() reporter.MessageReporter {
	if r.Reporter == nil {
		return reporter.Nop{}
	}
	return r.Reporter
}

// Resolve attempts to satisfy dl/o with a precompiled binary. A (zero, false, nil) return
// means "not applicable" (disqualified, PrebuiltNever, or no provider had a match); the
// caller falls through to Builder. PrebuiltAlways promotes "no provider had a match" to
// a PrebuiltBinaryRequired error instead.
func (r *Resolver) Resolve(ctx context.Context, dl spec.DownloadedCrate, o spec.BuildOptions) (spec.ResolvedBinary, bool, error) {
	if reason, disqualified := IsDisqualified(o); disqualified {
		r.rep().Report(reporter.Disqualified{Reason: reason})
		return spec.ResolvedBinary{}, false, nil
	}
	if r.Mode == config.PrebuiltNever {
		return spec.ResolvedBinary{}, false, nil
	}

	providers := r.buildProviders(dl)
	if len(providers) == 0 {
		if r.Mode == config.PrebuiltAlways {
			return spec.ResolvedBinary{}, false, cgxerr.New(cgxerr.PrebuiltBinaryRequired)
		}
		return spec.ResolvedBinary{}, false, nil
	}

	type attempt struct {
		provider string
		result   cgxcache.PrebuiltResult
		err      error
	}
	results := make(chan attempt, len(providers))

	group, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		p := p
		group.Go(func() error {
			start := time.Now()
			res, err := r.Manager.GetOrResolvePrebuilt(gctx, dl.Resolved, o, p.Name(), r.Triple, r.rep(), func(ctx context.Context) (cgxcache.PrebuiltResult, error) {
				return r.fetchAndPrepare(ctx, p, dl.Resolved, o)
			})
			r.rep().Report(reporter.ProviderAttempt{Provider: p.Name(), Found: res.Found, Err: err, Duration: time.Since(start)})
			// A single provider's transport failure does not fail the race; the others are
			// still allowed to finish. Its error is kept for the Always-mode composite
			// reason.
			results <- attempt{provider: p.Name(), result: res, err: err}
			return nil
		})
	}
	// group.Wait returning a non-nil error here would only happen from a bug in the Go
	// funcs above (they swallow provider errors by design), so it is intentionally
	// ignored beyond draining the group.
	_ = group.Wait()
	close(results)

	var winner *attempt
	var reasons []string
	for a := range results {
		a := a
		if a.result.Found && winner == nil {
			winner = &a
			continue
		}
		if a.err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", a.provider, a.err))
		} else if !a.result.Found {
			reasons = append(reasons, a.provider+": no matching release asset")
		}
	}
	if winner == nil {
		if r.Mode == config.PrebuiltAlways {
			return spec.ResolvedBinary{}, false, cgxerr.Wrap(errors.New(strings.Join(reasons, "; ")), cgxerr.PrebuiltBinaryRequired)
		}
		return spec.ResolvedBinary{}, false, nil
	}
	return spec.ResolvedBinary{Resolved: dl.Resolved, Provider: winner.provider, Path: winner.result.Path}, true, nil
}

// buildProviders constructs the enabled providers in configured order, resolving
// GitHub/GitLab owner/repo from the crate's Forge source or, failing that, its
// manifest's `repository` field.
func (r *Resolver) buildProviders(dl spec.DownloadedCrate) []Provider {
	var out []Provider
	for _, p := range r.Enabled {
		switch p {
		case config.QuickInstall:
			out = append(out, &QuickInstallProvider{HTTP: r.HTTP})
		case config.GithubProv:
			if host, owner, repo, ok := r.repoFor(dl, "github.com"); ok {
				out = append(out, &GithubProvider{HTTP: r.HTTP, Host: host, Owner: owner, Repo: repo})
			}
		case config.GitlabProv:
			if host, owner, repo, ok := r.repoFor(dl, "gitlab.com"); ok {
				out = append(out, &GitlabProvider{HTTP: r.HTTP, Host: host, Owner: owner, Repo: repo})
			}
		}
	}
	return out
}

func (r *Resolver) repoFor(dl spec.DownloadedCrate, publicHost string) (host, owner, repo string, ok bool) {
	forgeKind := spec.GitHub
	if publicHost == "gitlab.com" {
		forgeKind = spec.GitLab
	}
	if dl.Resolved.Source.Kind == spec.Forge && dl.Resolved.Source.Forge.Forge == forgeKind {
		f := dl.Resolved.Source.Forge
		h := f.Host
		if h == "" {
			h = publicHost
		}
		return h, f.Owner, f.Repo, true
	}
	m, err := manifest.Load(dl.Path)
	if err != nil || m.Package.Repository == "" {
		return "", "", "", false
	}
	return parseRepositoryURL(m.Package.Repository, publicHost)
}

// parseRepositoryURL extracts an owner/repo pair from a manifest's `repository = "..."`
// value, accepting only URLs that actually point at the forge publicHost names (a GitLab
// provider has no business matching a GitHub repository field, and vice versa).
func parseRepositoryURL(raw, publicHost string) (host, owner, repo string, ok bool) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	s = strings.TrimSuffix(s, ".git")
	for _, prefix := range []string{"https://", "http://", "git://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	if !strings.HasPrefix(s, publicHost+"/") {
		return "", "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(s, publicHost+"/"), "/")
	if len(parts) < 2 {
		return "", "", "", false
	}
	return publicHost, parts[0], parts[1], true
}

// fetchAndPrepare runs a single provider's Fetch, then the shared post-fetch pipeline:
// optional checksum verification, archive extraction, and binary location.
func (r *Resolver) fetchAndPrepare(ctx context.Context, p Provider, resolved spec.ResolvedCrate, o spec.BuildOptions) (cgxcache.PrebuiltResult, error) {
	fr, found, err := p.Fetch(ctx, resolved, r.Triple)
	if err != nil {
		return cgxcache.PrebuiltResult{}, err
	}
	if !found {
		return cgxcache.PrebuiltResult{Found: false}, nil
	}
	defer fr.Body.Close()

	stageDir, err := os.MkdirTemp("", "cgx-prebuilt-*")
	if err != nil {
		return cgxcache.PrebuiltResult{}, cgxerr.WrapPath(err, cgxerr.IOFailure, stageDir)
	}
	defer os.RemoveAll(stageDir)

	archivePath := filepath.Join(stageDir, "archive")
	sum, err := writeWithChecksum(archivePath, fr.Body)
	if err != nil {
		return cgxcache.PrebuiltResult{}, err
	}
	if r.VerifyChecksums && fr.ChecksumURL != "" {
		if err := r.verifyChecksum(ctx, fr.ChecksumURL, sum); err != nil {
			return cgxcache.PrebuiltResult{}, err
		}
	}

	format := archivex.DetectFormat(fr.Filename)
	extractDir := filepath.Join(stageDir, "extracted")
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return cgxcache.PrebuiltResult{}, cgxerr.WrapPath(err, cgxerr.IOFailure, extractDir)
	}
	if format == archivex.Raw {
		f, err := os.Open(archivePath)
		if err != nil {
			return cgxcache.PrebuiltResult{}, cgxerr.WrapPath(err, cgxerr.IOFailure, archivePath)
		}
		err = archivex.ExtractRaw(f, extractDir, binaryName(resolved, o), 0o755)
		f.Close()
		if err != nil {
			return cgxcache.PrebuiltResult{}, err
		}
	} else {
		f, err := os.Open(archivePath)
		if err != nil {
			return cgxcache.PrebuiltResult{}, cgxerr.WrapPath(err, cgxerr.IOFailure, archivePath)
		}
		err = archivex.Extract(f, extractDir, format, archivex.ExtractOptions{})
		f.Close()
		if err != nil {
			return cgxcache.PrebuiltResult{}, err
		}
	}

	path, found := locateBinary(extractDir, binaryName(resolved, o))
	if !found {
		return cgxcache.PrebuiltResult{Found: false}, nil
	}
	return cgxcache.PrebuiltResult{Found: true, Path: path, Provider: p.Name()}, nil
}

func binaryName(r spec.ResolvedCrate, o spec.BuildOptions) string {
	if o.BuildTarget.Kind != spec.DefaultBin {
		return o.BuildTarget.Name
	}
	return r.Name
}

// locateBinary searches extractDir for name using a fixed, ordered candidate list: a
// top-level match always wins over a nested one, even when both exist. The first
// existing, executable file wins; on Unix "executable" means any execute bit set.
func locateBinary(extractDir, name string) (string, bool) {
	candidates := []string{
		name,
		name + ".exe",
		filepath.Join("bin", name),
		filepath.Join("bin", name+".exe"),
		filepath.Join("target", "release", name),
		filepath.Join("target", "release", name+".exe"),
	}
	for _, c := range candidates {
		full := filepath.Join(extractDir, c)
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			continue
		}
		if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
			continue
		}
		return full, true
	}
	return "", false
}

func writeWithChecksum(dst string, r io.Reader) (string, error) {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	h := sha256.New()
	_, err = io.Copy(f, io.TeeReader(r, h))
	closeErr := f.Close()
	if err != nil {
		return "", cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	if closeErr != nil {
		return "", cgxerr.WrapPath(closeErr, cgxerr.IOFailure, dst)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// verifyChecksum fetches url (a sibling ".sha256" file) and compares its leading hex
// digest against got. A 404 means the provider publishes no checksum for this asset and
// is treated as "nothing to verify" rather than a failure.
func (r *Resolver) verifyChecksum(ctx context.Context, url, got string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	defer resp.Body.Close()
	switch httpx.Classify(resp.StatusCode) {
	case httpx.OutcomeNotFound:
		return nil
	case httpx.OutcomeSuccess:
		scanner := bufio.NewScanner(resp.Body)
		if !scanner.Scan() {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			return nil
		}
		want := strings.ToLower(fields[0])
		if want != got {
			return cgxerr.New(cgxerr.ChecksumMismatch)
		}
		return nil
	default:
		return cgxerr.New(cgxerr.RegistryTransport)
	}
}
