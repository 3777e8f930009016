package prebuilt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/httpx"
	"github.com/anelson-labs/cgx/internal/spec"
)

// Provider probes a single prebuilt-binary source for r at the given Rust target triple.
// A (nil, false, nil) return means "this provider has nothing for this crate", distinct
// from a transport error.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, r spec.ResolvedCrate, triple string) (*fetchResult, bool, error)
}

// fetchResult is a single provider's matched release asset, ready for the post-fetch
// pipeline (checksum verification, extraction, binary location). Kept unexported since
// only this package constructs one.
type fetchResult struct {
	Body        io.ReadCloser
	Filename    string
	ChecksumURL string
}

// candidateFilenames enumerates the asset-name conventions real cargo-binstall-style
// releases use, tried in order against a release's asset list or probed directly.
func candidateFilenames(name, version, triple string) []string {
	suffixes := []string{".tar.gz", ".tar.xz", ".tar.zst", ".tar.bz2", ".zip"}
	var out []string
	for _, suf := range suffixes {
		out = append(out,
			fmt.Sprintf("%s-%s-%s%s", name, version, triple, suf),
			fmt.Sprintf("%s-v%s-%s%s", name, version, triple, suf),
			fmt.Sprintf("%s-%s%s", name, triple, suf),
		)
	}
	return out
}

// QuickInstallProvider fetches from cargo-quickinstall's GitHub release assets, whose
// naming convention is fixed (one candidate, no enumeration needed).
type QuickInstallProvider struct {
	HTTP httpx.BasicClient
}

func (p *QuickInstallProvider) Name() string { return "quickinstall" }

func (p *QuickInstallProvider) Fetch(ctx context.Context, r spec.ResolvedCrate, triple string) (*fetchResult, bool, error) {
	filename := fmt.Sprintf("%s-%s-%s.tar.gz", r.Name, r.Version, triple)
	url := fmt.Sprintf(
		"https://github.com/cargo-bins/cargo-quickinstall/releases/download/%s-%s/%s",
		r.Name, r.Version, filename,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	switch httpx.Classify(resp.StatusCode) {
	case httpx.OutcomeNotFound:
		resp.Body.Close()
		return nil, false, nil
	case httpx.OutcomeSuccess:
		return &fetchResult{Body: resp.Body, Filename: filename, ChecksumURL: url + ".sha256"}, true, nil
	default:
		resp.Body.Close()
		return nil, false, cgxerr.New(cgxerr.RegistryTransport)
	}
}

type ghAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type ghRelease struct {
	Assets []ghAsset `json:"assets"`
}

// GithubProvider probes a forge-hosted GitHub(Enterprise) repository's releases API,
// trying a "v{version}" tag then a bare "{version}" tag, and matching the release's
// assets against the standard candidate-filename conventions.
type GithubProvider struct {
	HTTP  httpx.BasicClient
	Host  string // empty for github.com; Enterprise host otherwise
	Owner string
	Repo  string
}

func (p *GithubProvider) Name() string { return "github" }

func (p *GithubProvider) apiBase() string {
	if p.Host == "" || p.Host == "github.com" {
		return "https://api.github.com"
	}
	return fmt.Sprintf("https://%s/api/v3", p.Host)
}

func (p *GithubProvider) Fetch(ctx context.Context, r spec.ResolvedCrate, triple string) (*fetchResult, bool, error) {
	candidates := candidateFilenames(r.Name, r.Version, triple)
	for _, tag := range []string{"v" + r.Version, r.Version} {
		assets, found, err := p.releaseAssets(ctx, tag)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		for _, cand := range candidates {
			for _, asset := range assets {
				if asset.Name == cand {
					return p.downloadAsset(ctx, asset)
				}
			}
		}
	}
	return nil, false, nil
}

func (p *GithubProvider) releaseAssets(ctx context.Context, tag string) ([]ghAsset, bool, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", p.apiBase(), p.Owner, p.Repo, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	defer resp.Body.Close()
	switch httpx.Classify(resp.StatusCode) {
	case httpx.OutcomeNotFound:
		return nil, false, nil
	case httpx.OutcomeSuccess:
		var rel ghRelease
		if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
			return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
		}
		return rel.Assets, true, nil
	default:
		return nil, false, cgxerr.New(cgxerr.RegistryTransport)
	}
}

func (p *GithubProvider) downloadAsset(ctx context.Context, asset ghAsset) (*fetchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.BrowserDownloadURL, nil)
	if err != nil {
		return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	if httpx.Classify(resp.StatusCode) != httpx.OutcomeSuccess {
		resp.Body.Close()
		return nil, false, cgxerr.New(cgxerr.RegistryTransport)
	}
	return &fetchResult{
		Body:        resp.Body,
		Filename:    asset.Name,
		ChecksumURL: asset.BrowserDownloadURL + ".sha256",
	}, true, nil
}

// GitlabProvider probes a forge-hosted GitLab repository's generic release-downloads
// URL scheme directly, since GitLab has no asset-enumeration API equivalent to GitHub's;
// each candidate filename is HEAD-probed before the real GET.
type GitlabProvider struct {
	HTTP  httpx.BasicClient
	Host  string // empty for gitlab.com
	Owner string
	Repo  string
}

func (p *GitlabProvider) Name() string { return "gitlab" }

func (p *GitlabProvider) Fetch(ctx context.Context, r spec.ResolvedCrate, triple string) (*fetchResult, bool, error) {
	host := p.Host
	if host == "" {
		host = "gitlab.com"
	}
	for _, tag := range []string{"v" + r.Version, r.Version} {
		for _, filename := range candidateFilenames(r.Name, r.Version, triple) {
			url := fmt.Sprintf("https://%s/%s/%s/-/releases/%s/downloads/binaries/%s", host, p.Owner, p.Repo, tag, filename)
			ok, err := p.probe(ctx, url)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
			}
			resp, err := p.HTTP.Do(req)
			if err != nil {
				return nil, false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
			}
			if httpx.Classify(resp.StatusCode) != httpx.OutcomeSuccess {
				resp.Body.Close()
				continue
			}
			return &fetchResult{Body: resp.Body, Filename: filename, ChecksumURL: url + ".sha256"}, true, nil
		}
	}
	return nil, false, nil
}

func (p *GitlabProvider) probe(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return false, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp.Body.Close()
	return httpx.Classify(resp.StatusCode) == httpx.OutcomeSuccess, nil
}
