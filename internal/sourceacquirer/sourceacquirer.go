// Package sourceacquirer turns a ResolvedCrate into a DownloadedCrate by fetching a
// registry tarball, ensuring a git/forge commit is checked out, or passing a LocalDir
// source through untouched.
package sourceacquirer

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/anelson-labs/cgx/internal/archivex"
	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/gitclient"
	"github.com/anelson-labs/cgx/internal/httpx"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/sparseindex"
	"github.com/anelson-labs/cgx/internal/spec"
)

// IndexConfigClient is the seam for fetching a registry's download-URL template, letting
// tests substitute a fake without an HTTP server.
type IndexConfigClient interface {
	DownloadURL(ctx context.Context, indexURL, name, version string) (string, error)
}

// httpIndexConfigClient adapts *sparseindex.Client (bound to a single BaseURL at a time)
// to IndexConfigClient's per-call indexURL parameter, mirroring specresolver's
// httpIndexClient so both stages share the same HTTP transport and local-cache shape.
type httpIndexConfigClient struct {
	HTTP    httpx.BasicClient
	Cache   sparseindex.Cache
	Offline bool
}

func (c *httpIndexConfigClient) DownloadURL(ctx context.Context, indexURL, name, version string) (string, error) {
	client := &sparseindex.Client{
		BaseURL:    indexURL,
		HTTP:       c.HTTP,
		Offline:    c.Offline,
		LocalCache: sparseindex.Namespaced(c.Cache, indexURL),
	}
	cfg, err := client.Config(ctx)
	if err != nil {
		return "", err
	}
	return sparseindex.BuildDownloadURL(cfg, name, version), nil
}

// NewHTTPIndexConfigClient builds the default IndexConfigClient backed by real HTTP
// requests, with an optional shared on-disk sparse-index cache. In offline mode only that
// cache is ever consulted.
func NewHTTPIndexConfigClient(client httpx.BasicClient, cache sparseindex.Cache, offline bool) IndexConfigClient {
	return &httpIndexConfigClient{HTTP: client, Cache: cache, Offline: offline}
}

// Acquirer is the public SourceAcquirer.
type Acquirer struct {
	Manager   *cgxcache.Manager
	Reporter  reporter.MessageReporter
	HTTP      httpx.BasicClient
	Index     IndexConfigClient
	GitClient *gitclient.Client
	CargoCfg  interface {
		ResolveIndexURL(name string) (string, bool)
	}
	// ShowProgress draws a terminal progress bar while a crate tarball streams in.
	ShowProgress bool
}

func (a *Acquirer) rep() reporter.MessageReporter {
	if a.Reporter == nil {
		return reporter.Nop{}
	}
	return a.Reporter
}

// Acquire materializes r's source tree and returns a DownloadedCrate pointing at it.
func (a *Acquirer) Acquire(ctx context.Context, r spec.ResolvedCrate) (spec.DownloadedCrate, error) {
	if r.Source.Kind == spec.LocalDir {
		return spec.DownloadedCrate{Resolved: r, Path: r.Source.LocalPath}, nil
	}

	switch r.Source.Kind {
	case spec.CratesIo, spec.Registry:
		path, err := a.Manager.GetOrDownload(ctx, r, a.rep(), func(ctx context.Context, tempDir string) error {
			return a.downloadRegistryTarball(ctx, r, tempDir)
		})
		if err != nil {
			return spec.DownloadedCrate{}, err
		}
		return spec.DownloadedCrate{Resolved: r, Path: path}, nil

	case spec.Git, spec.Forge:
		path, err := a.Manager.GetOrDownload(ctx, r, a.rep(), func(ctx context.Context, tempDir string) error {
			return a.copyGitCheckout(ctx, r, tempDir)
		})
		if err != nil {
			return spec.DownloadedCrate{}, err
		}
		return spec.DownloadedCrate{Resolved: r, Path: path}, nil

	default:
		return spec.DownloadedCrate{}, cgxerr.New(cgxerr.IOFailure)
	}
}

// downloadRegistryTarball fetches and extracts name-version's .crate tarball into tempDir,
// stripping the tarball's top-level "{name}-{version}/" directory component.
func (a *Acquirer) downloadRegistryTarball(ctx context.Context, r spec.ResolvedCrate, tempDir string) error {
	indexURL, err := a.registryIndexURL(r)
	if err != nil {
		return err
	}
	dlURL, err := a.Index.DownloadURL(ctx, indexURL, r.Name, r.Version)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dlURL, nil)
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp, err := a.HTTP.Do(req)
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	defer resp.Body.Close()
	if httpx.Classify(resp.StatusCode) != httpx.OutcomeSuccess {
		return cgxerr.New(cgxerr.RegistryTransport)
	}
	var body io.Reader = resp.Body
	if a.ShowProgress && resp.ContentLength > 0 {
		pw := reporter.NewProgressWriter(r.String(), resp.ContentLength, io.Discard)
		defer pw.Close()
		body = io.TeeReader(resp.Body, pw)
	}
	opt := archivex.ExtractOptions{SubDir: r.Name + "-" + r.Version}
	if err := archivex.Extract(body, tempDir, archivex.TarGz, opt); err != nil {
		return err
	}
	return nil
}

func (a *Acquirer) registryIndexURL(r spec.ResolvedCrate) (string, error) {
	const cratesIoIndexURL = "https://index.crates.io"
	if r.Source.Kind == spec.CratesIo {
		return cratesIoIndexURL, nil
	}
	if r.Source.Registry.IndexURL != "" {
		return r.Source.Registry.IndexURL, nil
	}
	if r.Source.Registry.Named != "" && a.CargoCfg != nil {
		url, ok := a.CargoCfg.ResolveIndexURL(r.Source.Registry.Named)
		if ok {
			return url, nil
		}
	}
	return "", cgxerr.New(cgxerr.IOFailure)
}

// copyGitCheckout ensures the resolved commit is checked out via GitClient, then copies it
// (minus .git) into tempDir, reconciling the git-checkout cache (shared by commit, keyed by
// repository URL) with the uniform source-cache layout every other variant publishes to.
func (a *Acquirer) copyGitCheckout(ctx context.Context, r spec.ResolvedCrate, tempDir string) error {
	url := gitURLFor(r)
	checkoutPath, _, err := a.GitClient.ResolveRef(ctx, url, spec.CommitSelector(r.Source.Commit))
	if err != nil {
		return err
	}
	return copyTree(checkoutPath, tempDir)
}

func gitURLFor(r spec.ResolvedCrate) string {
	if r.Source.Kind == spec.Git {
		return r.Source.GitURL
	}
	host := r.Source.Forge.Host
	if host == "" {
		switch r.Source.Forge.Forge {
		case spec.GitHub:
			host = "github.com"
		case spec.GitLab:
			host = "gitlab.com"
		}
	}
	return "https://" + host + "/" + r.Source.Forge.Owner + "/" + r.Source.Forge.Repo
}

// copyTree copies src into dst, skipping the .git directory (the build cache only needs the
// working tree, not the repository metadata).
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, src)
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return cgxerr.WrapPath(err, cgxerr.IOFailure, dstPath)
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			target, err := os.Readlink(srcPath)
			if err != nil {
				return cgxerr.WrapPath(err, cgxerr.IOFailure, srcPath)
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return cgxerr.WrapPath(err, cgxerr.IOFailure, dstPath)
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, src)
	}
	in, err := os.Open(src)
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, src)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	if err := out.Close(); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	return nil
}
