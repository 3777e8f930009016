// Command cgx is the thin runnable entrypoint wiring the pipeline core
// (internal/core.Core) to an OS process: parse a crate spec, run the four-stage
// acquire-and-produce pipeline, then hand the resulting executable path its trailing
// arguments.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anelson-labs/cgx/internal/builder"
	"github.com/anelson-labs/cgx/internal/cargoconfig"
	"github.com/anelson-labs/cgx/internal/cargoexec"
	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/config"
	"github.com/anelson-labs/cgx/internal/core"
	"github.com/anelson-labs/cgx/internal/gitclient"
	"github.com/anelson-labs/cgx/internal/httpx"
	"github.com/anelson-labs/cgx/internal/prebuilt"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/sbom"
	"github.com/anelson-labs/cgx/internal/sourceacquirer"
	"github.com/anelson-labs/cgx/internal/sparseindex"
	"github.com/anelson-labs/cgx/internal/spec"
	"github.com/anelson-labs/cgx/internal/specresolver"
)

var opts struct {
	features            []string
	allFeatures         bool
	noDefaultFeatures   bool
	profile             string
	targetTriple        string
	jobs                int
	ignoreRustVersion   bool
	locked              bool
	offline             bool
	toolchain           string
	bin                 string
	example             string
	cacheRoot           string
	binRoot             string
	buildRoot           string
	cargoConfigPath     string
	prebuiltMode        string
	refresh             string
	verifyChecksums     bool
	httpTimeout         time.Duration
	httpRetries         int
	httpProxy           string
	quiet               bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cgx:", err)
		os.Exit(exitCodeFor(err))
	}
}

func rootCmd() *cobra.Command {
	home, _ := os.UserHomeDir()

	cmd := &cobra.Command{
		Use:   "cgx <crate-spec> [-- args...]",
		Short: "Run a Rust crate's executable by name, without installing it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRoot,
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&opts.features, "features", nil, "comma-separated feature list")
	flags.BoolVar(&opts.allFeatures, "all-features", false, "build with all features enabled")
	flags.BoolVar(&opts.noDefaultFeatures, "no-default-features", false, "disable default features")
	flags.StringVar(&opts.profile, "profile", "", "cargo build profile (default: release)")
	flags.StringVar(&opts.targetTriple, "target", "", "cargo target triple")
	flags.IntVar(&opts.jobs, "jobs", 0, "cargo --jobs")
	flags.BoolVar(&opts.ignoreRustVersion, "ignore-rust-version", false, "cargo --ignore-rust-version")
	flags.BoolVar(&opts.locked, "locked", false, "cargo --locked")
	flags.BoolVar(&opts.offline, "offline", false, "never access the network")
	flags.StringVar(&opts.toolchain, "toolchain", "", "rustup toolchain to build with (requires rustup)")
	flags.StringVar(&opts.bin, "bin", "", "build the named [[bin]] target instead of the default")
	flags.StringVar(&opts.example, "example", "", "build the named [[example]] target instead of the default")
	flags.StringVar(&opts.cacheRoot, "cache-root", filepath.Join(home, ".cache", "cgx"), "cache root directory")
	flags.StringVar(&opts.binRoot, "bin-root", filepath.Join(home, ".cache", "cgx", "bin"), "built/prebuilt binary root directory")
	flags.StringVar(&opts.buildRoot, "build-root", filepath.Join(home, ".cache", "cgx", "build"), "ephemeral build directory root")
	flags.StringVar(&opts.cargoConfigPath, "cargo-config", filepath.Join(home, ".cargo", "config.toml"), "path to a Cargo config.toml for named-registry resolution")
	flags.StringVar(&opts.prebuiltMode, "prebuilt", "auto", "prebuilt-binary mode: never|auto|always")
	flags.StringVar(&opts.refresh, "refresh", "none", "cache refresh mode: none|resolution|all")
	flags.BoolVar(&opts.verifyChecksums, "verify-checksums", true, "verify provider-published sha256 companions")
	flags.DurationVar(&opts.httpTimeout, "http-timeout", 30*time.Second, "per-request HTTP timeout")
	flags.IntVar(&opts.httpRetries, "http-retries", 3, "HTTP retry budget for 429/5xx responses")
	flags.StringVar(&opts.httpProxy, "http-proxy", "", "HTTP proxy URL")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress structured progress events")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	specArg, trailing := args[0], args[1:]

	s, err := parseSpecArg(specArg)
	if err != nil {
		return fmt.Errorf("invalid crate spec %q: %w", specArg, err)
	}

	buildOpts, err := buildOptionsFromFlags()
	if err != nil {
		return err
	}

	cfg, err := configFromFlags()
	if err != nil {
		return err
	}

	c, err := assembleCore(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	binPath, err := c.Run(ctx, s, buildOpts)
	if err != nil {
		return err
	}

	return runBinary(ctx, binPath, trailing)
}

func buildOptionsFromFlags() (spec.BuildOptions, error) {
	target := spec.BuildTarget{Kind: spec.DefaultBin}
	switch {
	case opts.bin != "" && opts.example != "":
		return spec.BuildOptions{}, fmt.Errorf("--bin and --example are mutually exclusive")
	case opts.bin != "":
		target = spec.BuildTarget{Kind: spec.Bin, Name: opts.bin}
	case opts.example != "":
		target = spec.BuildTarget{Kind: spec.Example, Name: opts.example}
	}
	return spec.BuildOptions{
		Features:           opts.features,
		AllFeatures:        opts.allFeatures,
		NoDefaultFeatures:  opts.noDefaultFeatures,
		Profile:            opts.profile,
		TargetTriple:       opts.targetTriple,
		ParallelJobs:       opts.jobs,
		IgnoreRustVersion:  opts.ignoreRustVersion,
		LockedDependencies: opts.locked,
		Offline:            opts.offline,
		Toolchain:          opts.toolchain,
		BuildTarget:        target,
	}, nil
}

func configFromFlags() (config.Config, error) {
	cfg := config.Default()
	cfg.CacheRoot = opts.cacheRoot
	cfg.BinRoot = opts.binRoot
	cfg.BuildRoot = opts.buildRoot
	cfg.ConfigRoot = filepath.Dir(opts.cargoConfigPath)
	cfg.Offline = opts.offline
	cfg.Locked = opts.locked
	cfg.PreferredToolchain = opts.toolchain
	cfg.VerifyChecksums = opts.verifyChecksums
	cfg.HTTP = config.HTTPSettings{
		Timeout:    opts.httpTimeout,
		MaxRetries: opts.httpRetries,
		ProxyURL:   opts.httpProxy,
	}

	switch config.PrebuiltMode(opts.prebuiltMode) {
	case config.PrebuiltNever, config.PrebuiltAuto, config.PrebuiltAlways:
		cfg.PrebuiltMode = config.PrebuiltMode(opts.prebuiltMode)
	default:
		return config.Config{}, fmt.Errorf("invalid --prebuilt value %q", opts.prebuiltMode)
	}

	switch opts.refresh {
	case "none", "":
		cfg.Refresh = config.RefreshNone
	case "resolution":
		cfg.Refresh = config.RefreshResolution
	case "all":
		cfg.Refresh = config.RefreshAll
	default:
		return config.Config{}, fmt.Errorf("invalid --refresh value %q", opts.refresh)
	}
	return cfg, nil
}

// assembleCore constructs every pipeline component, sharing one HTTP transport and one
// cgxcache.Manager across all of them. Configuration travels as a value; nothing here is
// process-global.
func assembleCore(cfg config.Config) (*core.Core, error) {
	var rep reporter.MessageReporter = reporter.NewLogReporter()
	if opts.quiet {
		rep = reporter.Nop{}
	}

	manager := cgxcache.New(cfg)

	var httpClient httpx.BasicClient = http.DefaultClient
	if cfg.HTTP.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.HTTP.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing --http-proxy: %w", err)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient = &http.Client{Transport: transport}
	}
	httpClient = &httpx.WithUserAgent{BasicClient: httpClient, UserAgent: "cgx/0 (+https://github.com/anelson-labs/cgx)"}
	httpClient = &httpx.RetryingClient{BasicClient: httpClient, MaxRetries: cfg.HTTP.MaxRetries}
	httpClient = &httpx.TimeoutClient{BasicClient: httpClient, Timeout: cfg.HTTP.Timeout}

	cargoCfg, err := cargoconfig.Load(opts.cargoConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading cargo config: %w", err)
	}

	gitClient := gitclient.New(manager, rep, cfg.Offline)
	runner := cargoexec.RealRunner{}
	indexCache := &sparseindex.DirCache{Root: filepath.Join(cfg.CacheRoot, "index")}

	resolver := &specresolver.Resolver{
		Manager:     manager,
		Reporter:    rep,
		Runner:      runner,
		GitClient:   gitClient,
		IndexClient: specresolver.NewHTTPIndexClient(httpClient, indexCache, cfg.Offline),
		CargoCfg:    cargoCfg,
		Offline:     cfg.Offline,
	}

	acquirer := &sourceacquirer.Acquirer{
		Manager:      manager,
		Reporter:     rep,
		HTTP:         httpClient,
		Index:        sourceacquirer.NewHTTPIndexConfigClient(httpClient, indexCache, cfg.Offline),
		GitClient:    gitClient,
		CargoCfg:     cargoCfg,
		ShowProgress: !opts.quiet,
	}

	bld := &builder.Builder{
		Manager:   manager,
		Reporter:  rep,
		Runner:    runner,
		SBOM:      &sbom.Generator{Runner: runner},
		BuildRoot: cfg.BuildRoot,
	}

	c := &core.Core{
		SpecResolver:   resolver,
		SourceAcquirer: acquirer,
		Builder:        bld,
		Reporter:       rep,
	}

	// A host with no recognized Rust target triple simply has no prebuilt providers to
	// race; Core.Run falls straight through to Builder, unless the caller demanded
	// --prebuilt=always, in which case that's a real configuration error worth surfacing
	// up front.
	triple, tripleErr := hostTriple()
	if tripleErr != nil {
		if cfg.PrebuiltMode == config.PrebuiltAlways {
			return nil, tripleErr
		}
		return c, nil
	}
	c.PrebuiltResolver = &prebuilt.Resolver{
		Manager:         manager,
		Reporter:        rep,
		HTTP:            httpClient,
		Mode:            cfg.PrebuiltMode,
		Enabled:         cfg.EnabledProviders,
		VerifyChecksums: cfg.VerifyChecksums,
		Triple:          triple,
	}
	return c, nil
}

// hostTriple maps the running process's GOOS/GOARCH to the Rust target triple prebuilt
// providers publish artifacts for. Only the triples real release pipelines commonly
// target are recognized; anything else falls straight through to a source build, which
// has no such restriction.
func hostTriple() (string, error) {
	var arch string
	switch runtime.GOARCH {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	default:
		return "", fmt.Errorf("unsupported host architecture %s for prebuilt resolution", runtime.GOARCH)
	}
	switch runtime.GOOS {
	case "linux":
		return arch + "-unknown-linux-gnu", nil
	case "darwin":
		return arch + "-apple-darwin", nil
	case "windows":
		return arch + "-pc-windows-msvc", nil
	default:
		return "", fmt.Errorf("unsupported host OS %s for prebuilt resolution", runtime.GOOS)
	}
}

// runBinary hands the resolved executable its trailing arguments, streaming stdio and
// propagating the child's exit code. Spawn-and-wait is used instead of syscall.Exec so
// the same code path works on every platform this binary is built for.
func runBinary(ctx context.Context, path string, args []string) error {
	child := exec.CommandContext(ctx, path, args...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	err := child.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	return err
}

func exitCodeFor(err error) int {
	if cgxerr.Is(err, cgxerr.PrebuiltBinaryRequired) {
		return 2
	}
	return 1
}
