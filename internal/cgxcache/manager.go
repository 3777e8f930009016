// Package cgxcache is the cache layer every pipeline stage delegates to for filesystem
// cache layout, atomic publication, stale handling, and cache key derivation. It touches
// only the filesystem, a clock, and configuration.
//
// Manager carries only immutable configuration plus a clock function; there is no
// interior mutability at this level, since all real state lives on disk and concurrency
// is disciplined purely by atomic rename.
package cgxcache

import (
	"time"

	"github.com/anelson-labs/cgx/internal/config"
)

// Manager is a cheaply-copyable handle around the application's cache configuration. Many
// components may hold one without needing to share a single instance by pointer; there is
// no per-request mutable state.
type Manager struct {
	cfg   config.Config
	clock func() time.Time
}

// New constructs a Manager from cfg, using the real wall clock.
func New(cfg config.Config) *Manager {
	return &Manager{cfg: cfg, clock: time.Now}
}

// WithClock returns a copy of m using the given clock, for deterministic TTL tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	cp := *m
	cp.clock = clock
	return &cp
}

func (m *Manager) now() time.Time { return m.clock() }
