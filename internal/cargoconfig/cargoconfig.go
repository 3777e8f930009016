// Package cargoconfig reads just enough of Cargo's own configuration file to resolve a
// named registry to its sparse-index URL. It deliberately does not reimplement Cargo's
// hierarchical config discovery and merging; this is a single-file reader rooted at a
// caller-supplied path.
package cargoconfig

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config is the subset of .cargo/config.toml consulted by cgx.
type Config struct {
	Registries map[string]registryEntry `toml:"registries"`
}

type registryEntry struct {
	Index string `toml:"index"`
}

// Load parses a Cargo config.toml at path. A missing file is not an error: it yields an
// empty Config (no named registries known), consistent with Cargo treating config files
// as optional at every level of its search hierarchy.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading cargo config")
	}
	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "parsing cargo config")
	}
	return &c, nil
}

// ResolveIndexURL returns the sparse-index URL registered for name, if any.
func (c *Config) ResolveIndexURL(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	e, ok := c.Registries[name]
	if !ok {
		return "", false
	}
	return e.Index, true
}
