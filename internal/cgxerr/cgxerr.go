// Package cgxerr defines the error taxonomy shared across the acquire-and-produce
// pipeline and the transient/permanent classification that drives stale-cache fallback.
package cgxerr

import (
	"github.com/pkg/errors"
)

// Kind enumerates the error classes the pipeline can produce.
type Kind string

const (
	RegistryTransport          Kind = "registry_transport"
	GitTransport               Kind = "git_transport"
	IOFailure                  Kind = "io"
	OfflineMode                Kind = "offline_mode"
	CrateNotFoundInRegistry    Kind = "crate_not_found_in_registry"
	NoMatchingVersion          Kind = "no_matching_version"
	VersionMismatch            Kind = "version_mismatch"
	AmbiguousPackageName       Kind = "ambiguous_package_name"
	PackageNotFoundInWorkspace Kind = "package_not_found_in_workspace"
	NoPackageBinaries          Kind = "no_package_binaries"
	AmbiguousBinaryTarget      Kind = "ambiguous_binary_target"
	RunnableTargetNotFound     Kind = "runnable_target_not_found"
	PrebuiltBinaryRequired     Kind = "prebuilt_binary_required"
	ChecksumMismatch           Kind = "checksum_mismatch"
	ArchiveExtractionFailed    Kind = "archive_extraction_failed"
	CargoBuildFailed           Kind = "cargo_build_failed"
	BinaryNotFoundInOutput     Kind = "binary_not_found_in_output"
	RefMismatch                Kind = "ref_mismatch"
	CheckoutCommitFailed       Kind = "checkout_commit_failed"
	AmbiguousPackageVersion    Kind = "ambiguous_package_version"
)

// Class is the stale-fallback classification for a Kind.
type Class int

const (
	// Permanent errors always propagate and never consult a stale cache entry.
	Permanent Class = iota
	// Transient errors trigger stale fallback when a stale cache entry exists.
	Transient
)

// classTable is part of the package's contract, not a private implementation detail:
// cache stale-fallback behavior is decided entirely by it.
var classTable = map[Kind]Class{
	RegistryTransport: Transient,
	GitTransport:       Transient,
	IOFailure:          Transient,
}

// Error is the sum type carried through the pipeline. It preserves an optional
// wrapped cause for diagnostic rendering while classifying strictly by Kind.
type Error struct {
	Kind Kind
	// Path is populated for IOFailure.
	Path string
	// Name/Version are populated where relevant (e.g. OfflineMode).
	Name, Version string
	cause         error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Name != "" {
		msg += ": " + e.Name
		if e.Version != "" {
			msg += "@" + e.Version
		}
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given Kind with no wrapped cause.
func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap constructs an Error of the given Kind wrapping cause, preserving its chain.
func Wrap(cause error, kind Kind) *Error {
	return &Error{Kind: kind, cause: cause}
}

// WrapPath constructs an IOFailure-style Error carrying the offending path.
func WrapPath(cause error, kind Kind, path string) *Error {
	return &Error{Kind: kind, Path: path, cause: cause}
}

// Classify returns the stale-fallback class for err. Non-*Error values (e.g. a bare
// context.Canceled) are treated as Permanent: only pipeline-recognized kinds may trigger
// stale fallback.
func Classify(err error) Class {
	var e *Error
	if !errors.As(err, &e) {
		return Permanent
	}
	if c, ok := classTable[e.Kind]; ok {
		return c
	}
	return Permanent
}

// Is reports whether err is (or wraps) a cgxerr.Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
