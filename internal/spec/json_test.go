package spec

import (
	"encoding/json"
	"testing"
)

func TestResolvedCrateRoundTrip(t *testing.T) {
	cases := []ResolvedCrate{
		{Name: "eza", Version: "0.23.1", Source: ResolvedSource{Kind: CratesIo}},
		{Name: "foo", Version: "1.0.0", Source: ResolvedSource{Kind: Registry, Registry: RegistryRef{Named: "corp"}}},
		{Name: "bar", Version: "2.0.0", Source: ResolvedSource{Kind: Git, GitURL: "https://x/y.git", Commit: "deadbeef"}},
		{Name: "baz", Version: "3.0.0", Source: ResolvedSource{Kind: Forge, Forge: ForgeRef{Forge: GitHub, Owner: "o", Repo: "r"}, Commit: "cafe"}},
		{Name: "qux", Version: "0.1.0", Source: ResolvedSource{Kind: LocalDir, LocalPath: "/tmp/qux"}},
	}
	for _, want := range cases {
		b, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got ResolvedCrate
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
	}
}
