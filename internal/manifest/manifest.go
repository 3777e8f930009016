// Package manifest parses the subset of Cargo.toml needed to verify a resolved crate's
// declared version and to enumerate its bin/example targets.
package manifest

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// CargoToml is the subset of the Cargo.toml manifest format cgx cares about.
//
// Format: https://doc.rust-lang.org/cargo/reference/manifest.html
type CargoToml struct {
	Package   PackageManifest `toml:"package"`
	Bin       []TargetManifest `toml:"bin"`
	Example   []TargetManifest `toml:"example"`
	Workspace *WorkspaceManifest `toml:"workspace"`
}

// PackageManifest is the [package] section.
type PackageManifest struct {
	Name       string `toml:"name"`
	RawVersion any    `toml:"version"`
	DefaultRun string `toml:"default-run"`
	// Repository is consulted by the prebuilt resolver's GitHub/GitLab providers when a
	// crate was not itself resolved from a Forge source (e.g. a crates.io crate whose
	// manifest happens to point at its upstream repository).
	Repository string `toml:"repository"`
}

// WorkspaceVersion is the sentinel returned by Version() for workspace-inherited versions.
const WorkspaceVersion = "workspace"

// Version returns the literal version string, or WorkspaceVersion if it is inherited via
// `version.workspace = true`.
func (pm PackageManifest) Version() string {
	switch v := pm.RawVersion.(type) {
	case string:
		return v
	case map[string]any:
		return WorkspaceVersion
	default:
		return ""
	}
}

// TargetManifest is a [[bin]] or [[example]] entry.
type TargetManifest struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// WorkspaceManifest is the [workspace] section, used only to detect workspace roots that
// carry no [package] of their own.
type WorkspaceManifest struct {
	Members []string `toml:"members"`
}

// Load parses the Cargo.toml at the root of dir.
func Load(dir string) (*CargoToml, error) {
	b, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		return nil, errors.Wrap(err, "reading Cargo.toml")
	}
	var m CargoToml
	if err := toml.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "parsing Cargo.toml")
	}
	return &m, nil
}

// IsWorkspaceRoot reports whether this manifest declares a [workspace] section without an
// accompanying [package] (a pure workspace root, vs. a workspace member).
func (m *CargoToml) IsWorkspaceRoot() bool {
	return m.Workspace != nil && m.Package.Name == ""
}

// DefaultBinName returns the package's default-run binary if any bin targets are present,
// following the same precedence order as the builder's target resolution: an explicit
// default-run wins, else a sole bin is unambiguous (with no [[bin]] table at all, that is
// the implicit bin named after the package), else zero/many bins are errors handled by
// the caller. Zero bins means no [[bin]] table and no [package] name.
func (m *CargoToml) DefaultBinName() (name string, ambiguous bool, none bool) {
	if m.Package.DefaultRun != "" {
		return m.Package.DefaultRun, false, false
	}
	switch len(m.Bin) {
	case 0:
		if m.Package.Name != "" {
			return m.Package.Name, false, false
		}
		return "", false, true
	case 1:
		if m.Bin[0].Name != "" {
			return m.Bin[0].Name, false, false
		}
		return m.Package.Name, false, false
	default:
		return "", true, false
	}
}

// BinNames returns the declared bin target names, defaulting to the package name when a
// lone implicit `src/main.rs` binary is declared with no [[bin]] table at all.
func (m *CargoToml) BinNames() []string {
	if len(m.Bin) == 0 {
		if m.Package.Name == "" {
			return nil
		}
		return []string{m.Package.Name}
	}
	names := make([]string, 0, len(m.Bin))
	for _, b := range m.Bin {
		if b.Name != "" {
			names = append(names, b.Name)
		}
	}
	return names
}

// ExampleNames returns the declared example target names.
func (m *CargoToml) ExampleNames() []string {
	names := make([]string, 0, len(m.Example))
	for _, e := range m.Example {
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names
}
