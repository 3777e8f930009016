package spec

import "testing"

func TestEncodeSourceSeparatesVariants(t *testing.T) {
	name, version := "eza", "0.23.1"
	variants := []ResolvedSource{
		{Kind: CratesIo},
		{Kind: Registry, Registry: RegistryRef{Named: "my-registry"}},
		{Kind: Registry, Registry: RegistryRef{IndexURL: "https://example.com/index"}},
		{Kind: Git, GitURL: "https://example.com/repo.git", Commit: "abc123"},
		{Kind: Forge, Forge: ForgeRef{Forge: GitHub, Owner: "o", Repo: "r"}, Commit: "abc123"},
		{Kind: Forge, Forge: ForgeRef{Forge: GitLab, Owner: "o", Repo: "r"}, Commit: "abc123"},
	}
	seen := map[string]int{}
	for i, v := range variants {
		h := EncodeSource(name, version, v)
		if prev, ok := seen[h]; ok {
			t.Fatalf("hash collision between variant %d and %d: %s", prev, i, h)
		}
		seen[h] = i
	}
}

func TestEncodeSpecDeterministic(t *testing.T) {
	s := Spec{Kind: CratesIo, Name: "serde", RawVersionReq: "^1.0"}
	a := EncodeSpec(s)
	b := EncodeSpec(s)
	if a != b {
		t.Fatalf("EncodeSpec not deterministic: %s != %s", a, b)
	}
}

func TestEncodeSpecCanonicalizesRangeWhitespace(t *testing.T) {
	a := EncodeSpec(Spec{Kind: CratesIo, Name: "serde", RawVersionReq: "^1.0"})
	b := EncodeSpec(Spec{Kind: CratesIo, Name: "serde", RawVersionReq: " ^1.0 "})
	if a != b {
		t.Fatalf("expected whitespace-insensitive encoding, got %s != %s", a, b)
	}
}

func TestEncodeBuildOptionsIgnoresFeatureOrder(t *testing.T) {
	a := EncodeBuildOptions(BuildOptions{Features: []string{"x", "y"}})
	b := EncodeBuildOptions(BuildOptions{Features: []string{"y", "x"}})
	if a != b {
		t.Fatalf("expected feature order to not affect build hash, got %s != %s", a, b)
	}
}

func TestEncodeBuildOptionsExcludesNonArtifactFields(t *testing.T) {
	a := EncodeBuildOptions(BuildOptions{Offline: false, ParallelJobs: 0, IgnoreRustVersion: false})
	b := EncodeBuildOptions(BuildOptions{Offline: true, ParallelJobs: 8, IgnoreRustVersion: true})
	if a != b {
		t.Fatalf("expected offline/parallel-jobs/ignore-rust-version to be excluded from build hash, got %s != %s", a, b)
	}
}

func TestEncodeBuildOptionsFeatureChangesHash(t *testing.T) {
	a := EncodeBuildOptions(BuildOptions{})
	b := EncodeBuildOptions(BuildOptions{Features: []string{"vendored-openssl"}})
	if a == b {
		t.Fatalf("expected feature change to affect build hash")
	}
}
