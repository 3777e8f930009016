// Package config defines the Config value consumed by every pipeline component.
// Config is always passed by value or as an immutable shared pointer; there is no
// process-global configuration.
package config

import "time"

// PrebuiltMode selects the prebuilt resolver's overall policy.
type PrebuiltMode string

const (
	PrebuiltNever  PrebuiltMode = "never"
	PrebuiltAuto   PrebuiltMode = "auto"
	PrebuiltAlways PrebuiltMode = "always"
)

// RefreshMode controls which caches a request is allowed to bypass.
type RefreshMode int

const (
	RefreshNone RefreshMode = iota
	// RefreshResolution bypasses the resolution-cache TTL and the prebuilt negative sentinel.
	RefreshResolution
	// RefreshAll additionally ignores source and build cache hits outright. A positive
	// prebuilt cache hit is still used under every refresh mode.
	RefreshAll
)

// Provider tags the prebuilt-binary providers that may be enabled, in dispatch order.
type Provider string

const (
	QuickInstall Provider = "quickinstall"
	GithubProv   Provider = "github"
	GitlabProv   Provider = "gitlab"
)

// HTTPSettings configures the shared HTTP client used by registries and providers.
type HTTPSettings struct {
	Timeout    time.Duration
	MaxRetries int
	ProxyURL   string
}

// Config is the immutable, caller-constructed configuration for a single cgx invocation.
type Config struct {
	CacheRoot  string
	BinRoot    string
	BuildRoot  string
	ConfigRoot string

	ResolveCacheTTL time.Duration

	Offline bool
	Locked  bool

	PreferredToolchain string

	PrebuiltMode      PrebuiltMode
	EnabledProviders  []Provider
	VerifyChecksums   bool

	HTTP HTTPSettings

	Refresh RefreshMode
}

// Default returns a Config with the defaults the CLI wiring applies (see cmd/cgx),
// suitable as a starting point for tests and the thin CLI entrypoint.
func Default() Config {
	return Config{
		ResolveCacheTTL:  15 * time.Minute,
		PrebuiltMode:     PrebuiltAuto,
		EnabledProviders: []Provider{QuickInstall, GithubProv, GitlabProv},
		VerifyChecksums:  true,
		HTTP: HTTPSettings{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
	}
}
