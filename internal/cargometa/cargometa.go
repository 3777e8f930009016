// Package cargometa invokes `cargo metadata` and parses the subset of its JSON output
// the resolver and builder need: package name/version, workspace membership, and
// bin/example targets. Asking cargo beats hand-parsing Cargo.toml here because cargo
// already resolves workspace inheritance, implicit targets, and feature-dependent
// layout.
package cargometa

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/anelson-labs/cgx/internal/cargoexec"
	"github.com/anelson-labs/cgx/internal/cgxerr"
)

// Target is a single cargo build target (a [[bin]], [[example]], the implied lib, etc).
type Target struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

// IsBin reports whether t is a `bin` target.
func (t Target) IsBin() bool { return contains(t.Kind, "bin") }

// IsExample reports whether t is an `example` target.
func (t Target) IsExample() bool { return contains(t.Kind, "example") }

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Package is one workspace member as reported by `cargo metadata`.
type Package struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	ID         string   `json:"id"`
	DefaultRun *string  `json:"default_run"`
	Targets    []Target `json:"targets"`
}

// BinTargets returns the package's bin target names.
func (p Package) BinTargets() []string {
	var names []string
	for _, t := range p.Targets {
		if t.IsBin() {
			names = append(names, t.Name)
		}
	}
	return names
}

// ExampleTargets returns the package's example target names.
func (p Package) ExampleTargets() []string {
	var names []string
	for _, t := range p.Targets {
		if t.IsExample() {
			names = append(names, t.Name)
		}
	}
	return names
}

// Metadata is the subset of `cargo metadata --no-deps --format-version=1` this package
// cares about.
type Metadata struct {
	Packages         []Package `json:"packages"`
	WorkspaceMembers []string  `json:"workspace_members"`
	WorkspaceRoot    string    `json:"workspace_root"`
}

// MemberPackages returns only the packages metadata considers workspace members (as
// opposed to transitive dependencies; moot when --no-deps is passed, but kept explicit
// for readability at call sites).
func (m *Metadata) MemberPackages() []Package {
	if len(m.WorkspaceMembers) == 0 {
		return m.Packages
	}
	members := make(map[string]bool, len(m.WorkspaceMembers))
	for _, id := range m.WorkspaceMembers {
		members[id] = true
	}
	var out []Package
	for _, p := range m.Packages {
		if members[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// LoadOptions controls how `cargo metadata` is invoked, mirroring the build flags that
// change what metadata reports (target-triple, features, locked, offline).
type LoadOptions struct {
	Offline           bool
	Locked            bool
	TargetTriple      string
	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool
	// IncludeDeps requests the full dependency graph instead of `--no-deps`, for the
	// SBOM generator's component listing.
	IncludeDeps bool
}

// Load runs `cargo metadata` in dir and parses its JSON output.
func Load(ctx context.Context, runner cargoexec.Runner, dir string, opts LoadOptions) (*Metadata, error) {
	args := []string{"metadata", "--format-version=1"}
	if !opts.IncludeDeps {
		args = append(args, "--no-deps")
	}
	if opts.Offline {
		args = append(args, "--offline")
	}
	if opts.Locked {
		args = append(args, "--locked")
	}
	if opts.TargetTriple != "" {
		args = append(args, "--filter-platform", opts.TargetTriple)
	}
	if opts.AllFeatures {
		args = append(args, "--all-features")
	} else if len(opts.Features) > 0 {
		args = append(args, "--features", strings.Join(opts.Features, ","))
	}
	if opts.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	out, err := runner.Output(ctx, dir, "cargo", args)
	if err != nil {
		return nil, cgxerr.Wrap(err, cgxerr.IOFailure)
	}
	var md Metadata
	if err := json.Unmarshal(out, &md); err != nil {
		return nil, errors.Wrap(err, "parsing cargo metadata output")
	}
	return &md, nil
}

// FindPackage locates the package matching name among ms, applying the same
// ambiguity/absence rules used by both local-directory resolution and the builder's
// package selection: if name is empty and exactly one package is
// present, that package is used; if more than one, ambiguous; if name is given it must
// match exactly one member.
func FindPackage(ms []Package, name string) (pkg Package, ambiguous bool, found bool) {
	if name == "" {
		if len(ms) == 1 {
			return ms[0], false, true
		}
		return Package{}, len(ms) > 1, false
	}
	for _, p := range ms {
		if p.Name == name {
			return p, false, true
		}
	}
	return Package{}, false, false
}
