package sbom

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/anelson-labs/cgx/internal/cargoexec"
	"github.com/anelson-labs/cgx/internal/spec"
)

const depMetadata = `{
  "packages": [
    {"name": "eza", "version": "0.23.1", "id": "eza 0.23.1", "default_run": null, "targets": []},
    {"name": "libc", "version": "0.2.150", "id": "libc 0.2.150", "default_run": null, "targets": []}
  ],
  "workspace_members": ["eza 0.23.1"],
  "workspace_root": "/x"
}`

func TestGenerateIncludesDependencyComponents(t *testing.T) {
	runner := &cargoexec.FakeRunner{
		OutputFunc: func(ctx context.Context, dir, name string, args []string) ([]byte, error) {
			return []byte(depMetadata), nil
		},
	}
	g := &Generator{Runner: runner}
	b, err := g.Generate(context.Background(), spec.ResolvedCrate{Name: "eza", Version: "0.23.1"}, spec.BuildOptions{}, "/x")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Metadata.Component.Name != "eza" || doc.Metadata.Component.Version != "0.23.1" {
		t.Fatalf("unexpected root component: %+v", doc.Metadata.Component)
	}
	if len(doc.Components) != 1 || doc.Components[0].Name != "libc" {
		t.Fatalf("unexpected dependency components: %+v", doc.Components)
	}
}

func TestGenerateFallsBackOnMetadataError(t *testing.T) {
	runner := &cargoexec.FakeRunner{
		OutputFunc: func(ctx context.Context, dir, name string, args []string) ([]byte, error) {
			return nil, context.DeadlineExceeded
		},
	}
	g := &Generator{Runner: runner}
	b, err := g.Generate(context.Background(), spec.ResolvedCrate{Name: "eza", Version: "0.23.1"}, spec.BuildOptions{}, "/x")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Components) != 0 {
		t.Fatalf("expected no components on fallback, got %+v", doc.Components)
	}
}
