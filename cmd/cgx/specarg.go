package main

import (
	"fmt"
	"strings"

	"github.com/anelson-labs/cgx/internal/semverx"
	"github.com/anelson-labs/cgx/internal/spec"
)

// parseSpecArg turns the CLI's single positional crate argument into a spec.Spec. This
// is deliberately a small convenience parser; it exists only so the entrypoint has
// something to hand the core. Recognized forms:
//
//	ripgrep                                    crates.io, any version
//	ripgrep@^13                                crates.io, version range
//	./path/to/crate                            local directory
//	git+https://example.com/x/y.git[@range][#selector]
//	github:owner/repo[@range][#selector]
//	gitlab:owner/repo[@range][#selector]
func parseSpecArg(raw string) (spec.Spec, error) {
	switch {
	case strings.HasPrefix(raw, "./"), strings.HasPrefix(raw, "../"), strings.HasPrefix(raw, "/"):
		return spec.Spec{Kind: spec.LocalDir, LocalPath: raw}, nil
	case strings.HasPrefix(raw, "git+"):
		return parseGitArg(strings.TrimPrefix(raw, "git+"))
	case strings.HasPrefix(raw, "github:"):
		return parseForgeArg(spec.GitHub, strings.TrimPrefix(raw, "github:"))
	case strings.HasPrefix(raw, "gitlab:"):
		return parseForgeArg(spec.GitLab, strings.TrimPrefix(raw, "gitlab:"))
	default:
		return parseCratesIoArg(raw)
	}
}

func parseCratesIoArg(raw string) (spec.Spec, error) {
	name, versionReq, _ := splitNameVersionSelector(raw)
	constraint, err := semverx.ParseRange(versionReq)
	if err != nil {
		return spec.Spec{}, fmt.Errorf("parsing version requirement %q: %w", versionReq, err)
	}
	return spec.Spec{
		Kind:          spec.CratesIo,
		Name:          name,
		VersionReq:    constraint,
		RawVersionReq: versionReq,
	}, nil
}

func parseGitArg(raw string) (spec.Spec, error) {
	url, versionReq, selRaw := splitNameVersionSelector(raw)
	constraint, err := semverx.ParseRange(versionReq)
	if err != nil {
		return spec.Spec{}, fmt.Errorf("parsing version requirement %q: %w", versionReq, err)
	}
	return spec.Spec{
		Kind:          spec.Git,
		GitURL:        url,
		VersionReq:    constraint,
		RawVersionReq: versionReq,
		Selector:      parseSelector(selRaw),
	}, nil
}

func parseForgeArg(kind spec.ForgeKind, raw string) (spec.Spec, error) {
	ownerRepo, versionReq, selRaw := splitNameVersionSelector(raw)
	parts := strings.SplitN(ownerRepo, "/", 2)
	if len(parts) != 2 {
		return spec.Spec{}, fmt.Errorf("expected owner/repo, got %q", ownerRepo)
	}
	constraint, err := semverx.ParseRange(versionReq)
	if err != nil {
		return spec.Spec{}, fmt.Errorf("parsing version requirement %q: %w", versionReq, err)
	}
	return spec.Spec{
		Kind:          spec.Forge,
		Forge:         spec.ForgeRef{Forge: kind, Owner: parts[0], Repo: parts[1]},
		VersionReq:    constraint,
		RawVersionReq: versionReq,
		Selector:      parseSelector(selRaw),
	}, nil
}

// splitNameVersionSelector splits "x@version#selector" into its three parts, any of which
// may be empty.
func splitNameVersionSelector(raw string) (name, version, selector string) {
	name = raw
	if i := strings.IndexByte(name, '#'); i >= 0 {
		selector = name[i+1:]
		name = name[:i]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		version = name[i+1:]
		name = name[:i]
	}
	return name, version, selector
}

func parseSelector(raw string) spec.Selector {
	switch {
	case raw == "":
		return spec.DefaultBranchSelector()
	case strings.HasPrefix(raw, "branch:"):
		return spec.BranchSelector(strings.TrimPrefix(raw, "branch:"))
	case strings.HasPrefix(raw, "tag:"):
		return spec.TagSelector(strings.TrimPrefix(raw, "tag:"))
	case strings.HasPrefix(raw, "commit:"):
		return spec.CommitSelector(strings.TrimPrefix(raw, "commit:"))
	case looksLikeCommitHash(raw):
		return spec.CommitSelector(raw)
	default:
		return spec.TagSelector(raw)
	}
}

func looksLikeCommitHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
