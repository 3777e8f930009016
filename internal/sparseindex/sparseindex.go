// Package sparseindex is a minimal client for Cargo's sparse HTTP registry index
// protocol (crates.io and any registry exposing the same static-file layout), used to
// resolve and download registry-hosted crates.
package sparseindex

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/httpx"
)

// VersionEntry is one NDJSON record from a sparse index crate file.
type VersionEntry struct {
	Name   string `json:"name"`
	Vers   string `json:"vers"`
	Yanked bool   `json:"yanked"`
	Cksum  string `json:"cksum"`
}

// Client queries a sparse index rooted at BaseURL (e.g. https://index.crates.io).
type Client struct {
	BaseURL string
	HTTP    httpx.BasicClient
	Offline bool
	// LocalCache, when non-nil, is consulted before any network request and updated
	// after a successful one; offline mode uses it exclusively.
	LocalCache Cache
}

// Cache abstracts the on-disk sparse-index cache a `cargo` and `cgx` installation can
// share, so multiple cgx instances and an active cargo cooperate safely. cgx does not
// own this cache; it only reads/writes through this seam.
type Cache interface {
	Get(entryPath string) ([]byte, bool)
	Put(entryPath string, body []byte)
}

// DirCache is a filesystem-backed Cache rooted at Root, storing each entry at its sparse
// index path. Writes are best-effort: a Put that cannot land leaves the cache as it was,
// the next lookup simply goes back to the network.
type DirCache struct {
	Root string
}

func (c *DirCache) path(entryPath string) string {
	return filepath.Join(c.Root, filepath.FromSlash(entryPath))
}

func (c *DirCache) Get(entryPath string) ([]byte, bool) {
	b, err := os.ReadFile(c.path(entryPath))
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *DirCache) Put(entryPath string, body []byte) {
	dest := c.path(entryPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
	}
}

var _ Cache = (*DirCache)(nil)

// Namespaced keys every entry of base under a per-index prefix, so one shared cache root
// can hold entries from crates.io and any number of alternative registries without their
// identically-named crate files colliding. A nil base stays nil.
func Namespaced(base Cache, indexURL string) Cache {
	if base == nil {
		return nil
	}
	sum := sha256.Sum256([]byte(indexURL))
	return &namespacedCache{base: base, prefix: hex.EncodeToString(sum[:])[:8]}
}

type namespacedCache struct {
	base   Cache
	prefix string
}

func (c *namespacedCache) Get(entryPath string) ([]byte, bool) {
	return c.base.Get(c.prefix + "/" + entryPath)
}

func (c *namespacedCache) Put(entryPath string, body []byte) {
	c.base.Put(c.prefix+"/"+entryPath, body)
}

// EntryPath computes the sparse-index path segment for a crate name, following Cargo's
// documented convention (https://doc.rust-lang.org/cargo/reference/registry-index.html):
// 1-char names under "1/", 2-char under "2/", 3-char under "3/{first-char}/", otherwise
// under "{first-two}/{next-two}/".
func EntryPath(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 1:
		return "1/" + lower
	case 2:
		return "2/" + lower
	case 3:
		return "3/" + lower[:1] + "/" + lower
	default:
		return lower[:2] + "/" + lower[2:4] + "/" + lower
	}
}

// IndexConfig is the sparse index's root config.json (https://doc.rust-lang.org/cargo/
// reference/registry-index.html#the-config-json-file), naming the download URL template.
type IndexConfig struct {
	DL  string `json:"dl"`
	API string `json:"api"`
}

// Config fetches and parses the index's config.json, consulting/populating LocalCache under
// the fixed key "config.json" the same way a per-crate entry is cached.
func (c *Client) Config(ctx context.Context) (*IndexConfig, error) {
	const entryPath = "config.json"
	if c.LocalCache != nil {
		if body, ok := c.LocalCache.Get(entryPath); ok {
			var cfg IndexConfig
			if err := json.Unmarshal(body, &cfg); err != nil {
				return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
			}
			return &cfg, nil
		}
	}
	if c.Offline {
		return nil, &cgxerr.Error{Kind: cgxerr.OfflineMode}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + entryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	defer resp.Body.Close()
	if httpx.Classify(resp.StatusCode) != httpx.OutcomeSuccess {
		return nil, cgxerr.Wrap(errStatus(resp.Status), cgxerr.RegistryTransport)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	if c.LocalCache != nil {
		c.LocalCache.Put(entryPath, buf.Bytes())
	}
	var cfg IndexConfig
	if err := json.Unmarshal(buf.Bytes(), &cfg); err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	return &cfg, nil
}

// BuildDownloadURL expands cfg.DL for a given crate/version, following Cargo's documented
// placeholder substitution (only the placeholders a sparse index realistically uses are
// supported: {crate}, {version}, {prefix}, {lowerprefix}; a template with no placeholders
// is treated as a base URL cargo appends "/{crate}/{version}/download" to, matching
// crates.io's own dl template).
func BuildDownloadURL(cfg *IndexConfig, name, version string) string {
	tmpl := cfg.DL
	if !strings.Contains(tmpl, "{") {
		return strings.TrimRight(tmpl, "/") + "/" + name + "/" + version + "/download"
	}
	prefix := EntryPath(name)
	prefix = prefix[:strings.LastIndex(prefix, "/")]
	r := strings.NewReplacer(
		"{crate}", name,
		"{version}", version,
		"{prefix}", prefix,
		"{lowerprefix}", strings.ToLower(prefix),
	)
	return r.Replace(tmpl)
}

// Versions fetches and parses every version record for name.
func (c *Client) Versions(ctx context.Context, name string) ([]VersionEntry, error) {
	entryPath := EntryPath(name)
	if c.LocalCache != nil {
		if body, ok := c.LocalCache.Get(entryPath); ok {
			return parseEntries(body)
		}
	}
	if c.Offline {
		return nil, &cgxerr.Error{Kind: cgxerr.OfflineMode, Name: name}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + entryPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	defer resp.Body.Close()
	switch httpx.Classify(resp.StatusCode) {
	case httpx.OutcomeNotFound:
		return nil, cgxerr.New(cgxerr.CrateNotFoundInRegistry)
	case httpx.OutcomeSuccess:
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
		}
		if c.LocalCache != nil {
			c.LocalCache.Put(entryPath, buf.Bytes())
		}
		return parseEntries(buf.Bytes())
	default:
		return nil, cgxerr.Wrap(errStatus(resp.Status), cgxerr.RegistryTransport)
	}
}

func parseEntries(body []byte) ([]VersionEntry, error) {
	var entries []VersionEntry
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e VersionEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.RegistryTransport)
	}
	return entries, nil
}

type statusError string

func (e statusError) Error() string { return string(e) }
func errStatus(s string) error      { return statusError("sparse index error: " + s) }
