package builder

import (
	"github.com/anelson-labs/cgx/internal/cargometa"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/spec"
)

// resolveTarget picks the concrete executable target: an explicit Bin/Example request
// is validated against the package's declared targets; DefaultBin
// defers first to the package's `default-run`, then to a sole bin target, and fails as
// ambiguous or absent otherwise. The returned BuildTarget is never DefaultBin, since the
// build/prebuilt cache keys need the concrete binary name.
func resolveTarget(pkg cargometa.Package, requested spec.BuildTarget) (spec.BuildTarget, error) {
	binNames := pkg.BinTargets()
	exampleNames := pkg.ExampleTargets()

	target := requested
	if target.Kind == spec.DefaultBin && pkg.DefaultRun != nil && *pkg.DefaultRun != "" {
		target = spec.BuildTarget{Kind: spec.Bin, Name: *pkg.DefaultRun}
	}

	switch target.Kind {
	case spec.DefaultBin:
		switch len(binNames) {
		case 0:
			return spec.BuildTarget{}, cgxerr.New(cgxerr.NoPackageBinaries)
		case 1:
			return spec.BuildTarget{Kind: spec.Bin, Name: binNames[0]}, nil
		default:
			return spec.BuildTarget{}, cgxerr.New(cgxerr.AmbiguousBinaryTarget)
		}
	case spec.Bin:
		if !contains(binNames, target.Name) {
			return spec.BuildTarget{}, cgxerr.New(cgxerr.RunnableTargetNotFound)
		}
		return target, nil
	case spec.Example:
		if !contains(exampleNames, target.Name) {
			return spec.BuildTarget{}, cgxerr.New(cgxerr.RunnableTargetNotFound)
		}
		return target, nil
	default:
		return spec.BuildTarget{}, cgxerr.New(cgxerr.RunnableTargetNotFound)
	}
}

// resolvePackageName decides cargo's `-p` selection: a single-or-zero-member
// "workspace" (the common case: a standalone crate) needs no package flag at all; a real
// multi-member workspace must name the crate explicitly, and that name must actually be
// a member.
func resolvePackageName(members []cargometa.Package, crateName string) (string, error) {
	if len(members) <= 1 {
		return "", nil
	}
	for _, m := range members {
		if m.Name == crateName {
			return crateName, nil
		}
	}
	return "", cgxerr.New(cgxerr.PackageNotFoundInWorkspace)
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
