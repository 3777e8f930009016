// Package semverx wraps Masterminds/semver/v3 with the version-selection policy shared by
// the registry-backed resolution paths: highest non-yanked version matching a requested
// range, with pre-release versions only selected when the range names them explicitly
// (standard semver behavior, made explicit here since it's load-bearing).
package semverx

import "github.com/Masterminds/semver/v3"

// Candidate is a version under consideration for selection.
type Candidate struct {
	Raw    string
	Yanked bool
}

// ParseRange parses a user-supplied range. An empty string means "any version" (*).
func ParseRange(raw string) (*semver.Constraints, error) {
	if raw == "" {
		raw = "*"
	}
	return semver.NewConstraint(raw)
}

// SelectHighest picks the highest non-yanked version among candidates that satisfies
// constraints, applying semver's default pre-release exclusion unless the constraint
// names a pre-release explicitly. Returns ("", false) if nothing matches.
func SelectHighest(candidates []Candidate, constraints *semver.Constraints) (string, bool) {
	var best *semver.Version
	var bestRaw string
	for _, c := range candidates {
		if c.Yanked {
			continue
		}
		v, err := semver.NewVersion(c.Raw)
		if err != nil {
			continue
		}
		if constraints != nil && !constraints.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = c.Raw
		}
	}
	if best == nil {
		return "", false
	}
	return bestRaw, true
}
