// Package core wires the four acquire-and-produce pipeline stages (spec resolution,
// source acquisition, prebuilt resolution, source build) into a single entrypoint:
// Spec in, executable path out.
package core

import (
	"context"

	"github.com/anelson-labs/cgx/internal/builder"
	"github.com/anelson-labs/cgx/internal/prebuilt"
	"github.com/anelson-labs/cgx/internal/reporter"
	"github.com/anelson-labs/cgx/internal/sourceacquirer"
	"github.com/anelson-labs/cgx/internal/spec"
	"github.com/anelson-labs/cgx/internal/specresolver"
)

// SpecResolver is the seam Core depends on, satisfied by *specresolver.Resolver.
type SpecResolver interface {
	Resolve(ctx context.Context, s spec.Spec) (spec.ResolvedCrate, error)
}

// SourceAcquirer is the seam Core depends on, satisfied by *sourceacquirer.Acquirer.
type SourceAcquirer interface {
	Acquire(ctx context.Context, r spec.ResolvedCrate) (spec.DownloadedCrate, error)
}

// PrebuiltResolver is the seam Core depends on, satisfied by *prebuilt.Resolver.
type PrebuiltResolver interface {
	Resolve(ctx context.Context, dl spec.DownloadedCrate, o spec.BuildOptions) (spec.ResolvedBinary, bool, error)
}

// Builder is the seam Core depends on, satisfied by *builder.Builder.
type Builder interface {
	Build(ctx context.Context, dl spec.DownloadedCrate, o spec.BuildOptions) (string, error)
}

// Core is the assembled pipeline entrypoint.
type Core struct {
	SpecResolver     SpecResolver
	SourceAcquirer   SourceAcquirer
	PrebuiltResolver PrebuiltResolver
	Builder          Builder
	Reporter         reporter.MessageReporter
}

func (c *Core) rep() reporter.MessageReporter {
	if c.Reporter == nil {
		return reporter.Nop{}
	}
	return c.Reporter
}

// Run drives s/o through every stage and returns the final executable's path:
// Spec -> ResolvedCrate -> DownloadedCrate -> (PrebuiltResolver, short-circuiting
// Builder on a hit, else) Builder -> BinaryPath.
func (c *Core) Run(ctx context.Context, s spec.Spec, o spec.BuildOptions) (string, error) {
	resolved, err := c.SpecResolver.Resolve(ctx, s)
	if err != nil {
		return "", err
	}

	downloaded, err := c.SourceAcquirer.Acquire(ctx, resolved)
	if err != nil {
		return "", err
	}

	if c.PrebuiltResolver != nil {
		bin, found, err := c.PrebuiltResolver.Resolve(ctx, downloaded, o)
		if err != nil {
			return "", err
		}
		if found {
			c.rep().Report(reporter.ExecutionPlan{Path: bin.Path, Prebuilt: true})
			return bin.Path, nil
		}
	}

	path, err := c.Builder.Build(ctx, downloaded, o)
	if err != nil {
		return "", err
	}
	c.rep().Report(reporter.ExecutionPlan{Path: path, Prebuilt: false})
	return path, nil
}

var (
	_ SpecResolver     = (*specresolver.Resolver)(nil)
	_ SourceAcquirer   = (*sourceacquirer.Acquirer)(nil)
	_ PrebuiltResolver = (*prebuilt.Resolver)(nil)
	_ Builder          = (*builder.Builder)(nil)
)
