package spec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// stableHash truncates a SHA-256 digest to 16 hex digits. A cryptographic digest keeps
// source-hash and build-hash stable across Go versions and processes, which the on-disk
// cache layout depends on; a runtime-seeded hash would move every cache entry on upgrade.
func stableHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		// Length-prefix every field so that e.g. ("ab","c") and ("a","bc") never collide.
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

// EncodeSpec produces a canonical, domain-separated encoding of a Spec, used as the
// resolution-cache key. Field order is fixed regardless of how the Spec was
// constructed, and the VersionReq is encoded via its normalized range text so that two
// logically-equivalent specs differing only in surface syntax (whitespace, field order)
// hash identically.
func EncodeSpec(s Spec) string {
	var b strings.Builder
	b.WriteString("spec:v1:")
	b.WriteString(string(s.Kind))
	b.WriteByte('|')
	switch s.Kind {
	case CratesIo:
		fmt.Fprintf(&b, "name=%s;range=%s", s.Name, normalizeRange(s.RawVersionReq))
	case Registry:
		fmt.Fprintf(&b, "name=%s;range=%s;named=%s;index=%s",
			s.Name, normalizeRange(s.RawVersionReq), s.Registry.Named, s.Registry.IndexURL)
	case Git:
		fmt.Fprintf(&b, "name=%s;url=%s;selector=%s:%s",
			s.Name, s.GitURL, s.Selector.Kind, s.Selector.Value)
	case Forge:
		fmt.Fprintf(&b, "name=%s;forge=%s;host=%s;owner=%s;repo=%s;selector=%s:%s",
			s.Name, s.Forge.Forge, s.Forge.Host, s.Forge.Owner, s.Forge.Repo,
			s.Selector.Kind, s.Selector.Value)
	case LocalDir:
		fmt.Fprintf(&b, "name=%s;path=%s", s.Name, s.LocalPath)
	}
	return stableHash(b.String())
}

func normalizeRange(raw string) string {
	if raw == "" {
		return "*"
	}
	return strings.Join(strings.Fields(raw), " ")
}

// EncodeSource produces the typed, domain-separated encoding of a ResolvedSource used to
// derive source-hash. Every variant's tag is folded into the hashed bytes so that the
// same {name, version} pair produces pairwise distinct hashes across CratesIo /
// Registry(Named) / Registry(IndexUrl) / Git / Forge(GitHub) / Forge(GitLab).
func EncodeSource(name, version string, src ResolvedSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "source:v1:%s|name=%s;version=%s;", src.Kind, name, version)
	switch src.Kind {
	case CratesIo:
		b.WriteString("variant=crates_io")
	case Registry:
		if src.Registry.Named != "" {
			fmt.Fprintf(&b, "variant=registry_named;named=%s", src.Registry.Named)
		} else {
			fmt.Fprintf(&b, "variant=registry_index;index=%s", src.Registry.IndexURL)
		}
	case Git:
		fmt.Fprintf(&b, "variant=git;url=%s;commit=%s", src.GitURL, src.Commit)
	case Forge:
		fmt.Fprintf(&b, "variant=forge_%s;host=%s;owner=%s;repo=%s;commit=%s",
			src.Forge.Forge, src.Forge.Host, src.Forge.Owner, src.Forge.Repo, src.Commit)
	case LocalDir:
		fmt.Fprintf(&b, "variant=local_dir;path=%s", src.LocalPath)
	}
	return stableHash(b.String())
}

// EncodeBuildOptions derives build-hash: exactly the fields that affect the
// produced artifact, with Features sorted lexicographically first. offline,
// parallel-jobs, and ignore-rust-version are deliberately excluded.
func EncodeBuildOptions(o BuildOptions) string {
	features := append([]string(nil), o.Features...)
	sort.Strings(features)
	var b strings.Builder
	fmt.Fprintf(&b, "build:v1:features=%s;all=%t;nodefault=%t;profile=%s;triple=%s;target=%s:%s;toolchain=%s;locked=%t",
		strings.Join(features, ","), o.AllFeatures, o.NoDefaultFeatures, o.Profile,
		o.TargetTriple, o.BuildTarget.Kind, o.BuildTarget.Name, o.Toolchain, o.LockedDependencies)
	return stableHash(b.String())
}
