// Package builder resolves the executable target within a downloaded crate, compiles it
// with cargo, and caches the result, parsing the compiler-artifact messages cargo's
// `--message-format=json` output emits to find the produced binary.
package builder

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/anelson-labs/cgx/internal/cargoexec"
	"github.com/anelson-labs/cgx/internal/cargometa"
	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/spec"
)

// Builder is the public Builder.
type Builder struct {
	Manager   *cgxcache.Manager
	Reporter  reporter.MessageReporter
	Runner    cargoexec.Runner
	SBOM      cgxcache.SBOMGenerator
	BuildRoot string
}

func (b *Builder) rep() reporter.MessageReporter {
	if b.Reporter == nil {
		return reporter.Nop{}
	}
	return b.Reporter
}

// Build compiles dl's crate per o, returning the path to the produced executable. A
// LocalDir source always bypasses the build cache: its contents are mutable and its
// freshness is cargo's own job, not cgx's.
func (b *Builder) Build(ctx context.Context, dl spec.DownloadedCrate, o spec.BuildOptions) (string, error) {
	md, err := cargometa.Load(ctx, b.Runner, dl.Path, cargometa.LoadOptions{
		Offline:           o.Offline,
		Locked:            o.LockedDependencies,
		TargetTriple:      o.TargetTriple,
		Features:          o.Features,
		AllFeatures:       o.AllFeatures,
		NoDefaultFeatures: o.NoDefaultFeatures,
	})
	if err != nil {
		return "", err
	}
	members := md.MemberPackages()
	pkg, ambiguous, found := cargometa.FindPackage(members, dl.Resolved.Name)
	if ambiguous {
		return "", cgxerr.New(cgxerr.AmbiguousPackageName)
	}
	if !found {
		return "", cgxerr.New(cgxerr.PackageNotFoundInWorkspace)
	}

	resolvedTarget, err := resolveTarget(pkg, o.BuildTarget)
	if err != nil {
		return "", err
	}
	o.BuildTarget = resolvedTarget

	packageName, err := resolvePackageName(members, dl.Resolved.Name)
	if err != nil {
		return "", err
	}

	if dl.Resolved.Source.Kind == spec.LocalDir {
		return b.buildUncached(ctx, dl.Path, packageName, dl.Resolved, o)
	}

	return b.Manager.GetOrBuildBinary(ctx, dl.Resolved, o, dl.Path, b.rep(), b.SBOM, func(ctx context.Context) (string, error) {
		buildDir, err := prepareBuildDir(b.BuildRoot, dl)
		if err != nil {
			return "", err
		}
		return b.buildUncached(ctx, buildDir, packageName, dl.Resolved, o)
	})
}

// buildUncached runs `cargo build --message-format=json` in buildDir and locates the
// produced executable from its streamed JSON output.
func (b *Builder) buildUncached(ctx context.Context, buildDir, packageName string, r spec.ResolvedCrate, o spec.BuildOptions) (string, error) {
	b.rep().Report(reporter.BuildStarted{Name: r.Name, Version: r.Version, Target: o.BuildTarget.String()})

	name, args := cargoexec.WithToolchain(o.Toolchain, "cargo", buildArgs(packageName, o))

	var binaryPath string
	streamErr := b.Runner.Stream(ctx, buildDir, name, args, func(line []byte) error {
		path, ok := matchArtifact(line, o.BuildTarget)
		if ok {
			binaryPath = path
		}
		return nil
	})
	b.rep().Report(reporter.BuildCompleted{Name: r.Name, Version: r.Version, Err: streamErr})
	if streamErr != nil {
		return "", streamErr
	}
	if binaryPath == "" {
		return "", cgxerr.New(cgxerr.BinaryNotFoundInOutput)
	}
	return binaryPath, nil
}

// buildArgs constructs the cargo invocation in a fixed flag order: build,
// message-format, profile, package, features, target, build-target, then the remaining
// general flags.
func buildArgs(packageName string, o spec.BuildOptions) []string {
	args := []string{"build", "--message-format=json"}

	if o.Profile != "" {
		args = append(args, "--profile", o.Profile)
	} else {
		args = append(args, "--release")
	}

	if packageName != "" {
		args = append(args, "-p", packageName)
	}

	if o.AllFeatures {
		args = append(args, "--all-features")
	} else {
		if o.NoDefaultFeatures {
			args = append(args, "--no-default-features")
		}
		if len(o.Features) > 0 {
			args = append(args, "--features", strings.Join(o.Features, ","))
		}
	}

	if o.TargetTriple != "" {
		args = append(args, "--target", o.TargetTriple)
	}

	switch o.BuildTarget.Kind {
	case spec.Bin:
		args = append(args, "--bin", o.BuildTarget.Name)
	case spec.Example:
		args = append(args, "--example", o.BuildTarget.Name)
	}

	if o.Offline {
		args = append(args, "--offline")
	}
	if o.ParallelJobs > 0 {
		args = append(args, "-j", strconv.Itoa(o.ParallelJobs))
	}
	if o.IgnoreRustVersion {
		args = append(args, "--ignore-rust-version")
	}
	if o.LockedDependencies {
		args = append(args, "--locked")
	}
	return args
}

type cargoArtifactTarget struct {
	Name string   `json:"name"`
	Kind []string `json:"kind"`
}

type cargoMessage struct {
	Reason     string              `json:"reason"`
	Target     cargoArtifactTarget `json:"target"`
	Executable *string             `json:"executable"`
}

// matchArtifact parses one line of cargo's `--message-format=json` stream, reporting the
// executable path when the line is a compiler-artifact message matching target.
// Non-JSON or irrelevant lines (compiler-message, build-script-executed, build-finished)
// are silently ignored.
func matchArtifact(line []byte, target spec.BuildTarget) (string, bool) {
	var msg cargoMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return "", false
	}
	if msg.Reason != "compiler-artifact" || msg.Executable == nil {
		return "", false
	}
	switch target.Kind {
	case spec.Bin:
		if hasKind(msg.Target.Kind, "bin") && msg.Target.Name == target.Name {
			return *msg.Executable, true
		}
	case spec.Example:
		if hasKind(msg.Target.Kind, "example") && msg.Target.Name == target.Name {
			return *msg.Executable, true
		}
	}
	return "", false
}

func hasKind(kinds []string, want string) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
