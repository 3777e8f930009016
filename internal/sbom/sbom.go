// Package sbom generates a CycloneDX software bill of materials for a successfully built
// crate, deriving its component list from `cargo metadata`'s full dependency graph. The
// document is written next to every binary the build cache publishes so a build's
// provenance survives with its artifact; prebuilt cache entries carry no SBOM.
package sbom

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anelson-labs/cgx/internal/cargoexec"
	"github.com/anelson-labs/cgx/internal/cargometa"
	"github.com/anelson-labs/cgx/internal/cgxcache"
	"github.com/anelson-labs/cgx/internal/spec"
)

// Generator produces a minimal CycloneDX document by re-invoking `cargo metadata` with
// full dependency resolution over the same source tree Builder just compiled.
type Generator struct {
	Runner cargoexec.Runner
}

type component struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Purl    string `json:"purl,omitempty"`
}

type metadataBlock struct {
	Component component `json:"component"`
}

type document struct {
	BomFormat   string      `json:"bomFormat"`
	SpecVersion string      `json:"specVersion"`
	Version     int         `json:"version"`
	Metadata    metadataBlock `json:"metadata"`
	Components  []component `json:"components"`
}

func purl(name, version string) string {
	return fmt.Sprintf("pkg:cargo/%s@%s", name, version)
}

// Generate satisfies cgxcache.SBOMGenerator. It is best-effort: if `cargo metadata`
// cannot be re-run with full dependency resolution (e.g. an offline build whose lock
// file is incomplete), it falls back to a single-component document describing just the
// built crate rather than failing the build outright.
func (g *Generator) Generate(ctx context.Context, r spec.ResolvedCrate, o spec.BuildOptions, sourceDir string) ([]byte, error) {
	doc := document{
		BomFormat:   "CycloneDX",
		SpecVersion: "1.5",
		Version:     1,
		Metadata: metadataBlock{Component: component{
			Type:    "application",
			Name:    r.Name,
			Version: r.Version,
			Purl:    purl(r.Name, r.Version),
		}},
	}

	md, err := cargometa.Load(ctx, g.Runner, sourceDir, cargometa.LoadOptions{
		Offline:           o.Offline,
		Locked:            o.LockedDependencies,
		TargetTriple:      o.TargetTriple,
		Features:          o.Features,
		AllFeatures:       o.AllFeatures,
		NoDefaultFeatures: o.NoDefaultFeatures,
		IncludeDeps:       true,
	})
	if err != nil {
		return json.MarshalIndent(doc, "", "  ")
	}

	for _, pkg := range md.Packages {
		if pkg.Name == r.Name && pkg.Version == r.Version {
			continue
		}
		doc.Components = append(doc.Components, component{
			Type:    "library",
			Name:    pkg.Name,
			Version: pkg.Version,
			Purl:    purl(pkg.Name, pkg.Version),
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

var _ cgxcache.SBOMGenerator = (*Generator)(nil)
