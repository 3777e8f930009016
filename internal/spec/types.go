// Package spec defines the data model shared by every pipeline stage: the user-facing
// Spec, the pinned ResolvedCrate/ResolvedSource it resolves to, the materialized
// DownloadedCrate, and the BuildOptions bag that influences compilation.
package spec

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SourceKind tags the variant of a Spec or ResolvedSource.
type SourceKind string

const (
	CratesIo SourceKind = "crates_io"
	Registry SourceKind = "registry"
	Git      SourceKind = "git"
	Forge    SourceKind = "forge"
	LocalDir SourceKind = "local_dir"
)

// ForgeKind distinguishes the two supported forge hosts.
type ForgeKind string

const (
	GitHub ForgeKind = "github"
	GitLab ForgeKind = "gitlab"
)

// SelectorKind tags a symbolic or immutable git reference.
type SelectorKind string

const (
	DefaultBranch SelectorKind = "default_branch"
	Branch        SelectorKind = "branch"
	Tag           SelectorKind = "tag"
	Commit        SelectorKind = "commit"
)

// Selector is a reference into a git repository. Only valid on Git/Forge specs.
type Selector struct {
	Kind  SelectorKind
	Value string // branch/tag name or commit hash; empty for DefaultBranch
}

func DefaultBranchSelector() Selector     { return Selector{Kind: DefaultBranch} }
func BranchSelector(name string) Selector { return Selector{Kind: Branch, Value: name} }
func TagSelector(name string) Selector    { return Selector{Kind: Tag, Value: name} }
func CommitSelector(hash string) Selector { return Selector{Kind: Commit, Value: hash} }

// RegistryRef identifies a non-crates.io registry: either a name resolved via the
// user's Cargo configuration, or a literal sparse-index URL.
type RegistryRef struct {
	Named    string // resolved via .cargo/config.toml [registries], empty if IndexURL set
	IndexURL string
}

// ForgeRef identifies a forge-hosted repository, with an optional enterprise host.
type ForgeRef struct {
	Forge ForgeKind
	Host  string // custom host for GitHub/GitLab Enterprise; empty for the public forge
	Owner string
	Repo  string
}

// Spec is the tagged union over crate sources a user may request.
type Spec struct {
	Kind SourceKind

	// Name is required for CratesIo/Registry, optional for Git/Forge/LocalDir (where it
	// disambiguates a workspace with multiple packages).
	Name string
	// VersionReq is a semver range; nil means "*" (any).
	VersionReq *semver.Constraints
	RawVersionReq string // the literal range text, preserved for canonical encoding/hashing

	Registry RegistryRef
	Forge    ForgeRef
	GitURL   string // for plain Git specs

	// Selector is only meaningful for Git/Forge.
	Selector Selector

	// LocalPath is the filesystem path for LocalDir specs.
	LocalPath string
}

// ResolvedSource mirrors Spec but replaces every mutable selector with an immutable one.
type ResolvedSource struct {
	Kind SourceKind

	Registry RegistryRef
	Forge    ForgeRef
	GitURL   string

	// Commit is populated for Git/Forge; it is always a commit hash, never a symbolic ref.
	Commit string

	// LocalPath is populated for LocalDir.
	LocalPath string
}

// ResolvedCrate is the concrete, immutable triple that is the stable cache key for the
// rest of the pipeline.
type ResolvedCrate struct {
	Name    string
	Version string // exact semver, as declared in the source tree's manifest
	Source  ResolvedSource
}

func (r ResolvedCrate) String() string {
	return fmt.Sprintf("%s-%s", r.Name, r.Version)
}

// DownloadedCrate pairs a ResolvedCrate with the local filesystem path containing its
// source tree (Cargo.toml at the root).
type DownloadedCrate struct {
	Resolved ResolvedCrate
	Path     string
}

// BuildTargetKind selects which cargo target a build produces.
type BuildTargetKind string

const (
	// DefaultBin is the zero value, so a zero BuildTarget (and a zero BuildOptions)
	// selects the package's default binary.
	DefaultBin BuildTargetKind = ""
	Bin        BuildTargetKind = "bin"
	Example    BuildTargetKind = "example"
)

// BuildTarget names the executable cargo should produce.
type BuildTarget struct {
	Kind BuildTargetKind
	Name string // empty for DefaultBin
}

func (t BuildTarget) String() string {
	if t.Kind == DefaultBin {
		return "default-bin"
	}
	return fmt.Sprintf("%s(%s)", t.Kind, t.Name)
}

// BuildOptions configures compilation. Only a subset of these fields affects the
// produced artifact and therefore participates in the build-cache key (see
// EncodeBuildOptions).
type BuildOptions struct {
	Features            []string
	AllFeatures         bool
	NoDefaultFeatures   bool
	Profile             string // empty means the default (--release)
	TargetTriple        string
	ParallelJobs        int // 0 means unset
	IgnoreRustVersion   bool
	LockedDependencies  bool
	Offline             bool
	Toolchain           string
	BuildTarget         BuildTarget
}

// ResolvedBinary is the output of a successful prebuilt-resolution attempt.
type ResolvedBinary struct {
	Resolved ResolvedCrate
	Provider string // provider tag: "quickinstall", "github", "gitlab"
	Path     string // filesystem path to the executable
}
