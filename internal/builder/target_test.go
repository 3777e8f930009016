package builder

import (
	"testing"

	"github.com/anelson-labs/cgx/internal/cargometa"
	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/spec"
)

func strp(s string) *string { return &s }

func TestResolveTargetDefaultRunWins(t *testing.T) {
	pkg := cargometa.Package{
		Name:       "eza",
		DefaultRun: strp("eza"),
		Targets: []cargometa.Target{
			{Name: "eza", Kind: []string{"bin"}},
			{Name: "eza-debug", Kind: []string{"bin"}},
		},
	}
	target, err := resolveTarget(pkg, spec.BuildTarget{Kind: spec.DefaultBin})
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if target.Kind != spec.Bin || target.Name != "eza" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveTargetSoleBin(t *testing.T) {
	pkg := cargometa.Package{
		Name:    "solo",
		Targets: []cargometa.Target{{Name: "solo", Kind: []string{"bin"}}},
	}
	target, err := resolveTarget(pkg, spec.BuildTarget{Kind: spec.DefaultBin})
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if target.Kind != spec.Bin || target.Name != "solo" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolveTargetAmbiguous(t *testing.T) {
	pkg := cargometa.Package{
		Name: "multi",
		Targets: []cargometa.Target{
			{Name: "a", Kind: []string{"bin"}},
			{Name: "b", Kind: []string{"bin"}},
		},
	}
	_, err := resolveTarget(pkg, spec.BuildTarget{Kind: spec.DefaultBin})
	if !cgxerr.Is(err, cgxerr.AmbiguousBinaryTarget) {
		t.Fatalf("expected AmbiguousBinaryTarget, got %v", err)
	}
}

func TestResolveTargetNoBinaries(t *testing.T) {
	pkg := cargometa.Package{Name: "lib-only"}
	_, err := resolveTarget(pkg, spec.BuildTarget{Kind: spec.DefaultBin})
	if !cgxerr.Is(err, cgxerr.NoPackageBinaries) {
		t.Fatalf("expected NoPackageBinaries, got %v", err)
	}
}

func TestResolveTargetExplicitMissing(t *testing.T) {
	pkg := cargometa.Package{
		Name:    "eza",
		Targets: []cargometa.Target{{Name: "eza", Kind: []string{"bin"}}},
	}
	_, err := resolveTarget(pkg, spec.BuildTarget{Kind: spec.Bin, Name: "nope"})
	if !cgxerr.Is(err, cgxerr.RunnableTargetNotFound) {
		t.Fatalf("expected RunnableTargetNotFound, got %v", err)
	}
}

func TestResolveTargetExplicitExample(t *testing.T) {
	pkg := cargometa.Package{
		Name:    "eza",
		Targets: []cargometa.Target{{Name: "demo", Kind: []string{"example"}}},
	}
	target, err := resolveTarget(pkg, spec.BuildTarget{Kind: spec.Example, Name: "demo"})
	if err != nil {
		t.Fatalf("resolveTarget: %v", err)
	}
	if target.Kind != spec.Example || target.Name != "demo" {
		t.Fatalf("unexpected target: %+v", target)
	}
}

func TestResolvePackageNameSingleMember(t *testing.T) {
	members := []cargometa.Package{{Name: "solo"}}
	name, err := resolvePackageName(members, "solo")
	if err != nil || name != "" {
		t.Fatalf("expected no -p flag for single member, got %q err=%v", name, err)
	}
}

func TestResolvePackageNameWorkspaceMember(t *testing.T) {
	members := []cargometa.Package{{Name: "a"}, {Name: "b"}}
	name, err := resolvePackageName(members, "b")
	if err != nil || name != "b" {
		t.Fatalf("expected -p b, got %q err=%v", name, err)
	}
}

func TestResolvePackageNameNotAMember(t *testing.T) {
	members := []cargometa.Package{{Name: "a"}, {Name: "b"}}
	_, err := resolvePackageName(members, "c")
	if !cgxerr.Is(err, cgxerr.PackageNotFoundInWorkspace) {
		t.Fatalf("expected PackageNotFoundInWorkspace, got %v", err)
	}
}
