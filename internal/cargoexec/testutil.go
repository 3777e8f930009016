package cargoexec

import (
	"context"
)

// FakeRunner is an in-memory Runner for tests. It lives outside _test.go files so it
// can be shared across every package that needs to fake a cargo invocation.
type FakeRunner struct {
	// OutputFunc backs Output; if nil, Output returns an empty slice.
	OutputFunc func(ctx context.Context, dir, name string, args []string) ([]byte, error)
	// StreamLines backs Stream when StreamFunc is nil: each entry is fed to onLine in
	// order, then StreamErr (if any) is returned.
	StreamLines []string
	StreamErr   error
	StreamFunc  func(ctx context.Context, dir, name string, args []string, onLine func([]byte) error) error
	// Paths maps a binary name to whether LookPath should succeed.
	Paths map[string]bool

	Calls []FakeCall
}

// FakeCall records one invocation for assertions.
type FakeCall struct {
	Dir  string
	Name string
	Args []string
}

func (f *FakeRunner) LookPath(name string) (string, error) {
	if f.Paths != nil && f.Paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errNotFound(name)
}

func (f *FakeRunner) Output(ctx context.Context, dir, name string, args []string) ([]byte, error) {
	f.Calls = append(f.Calls, FakeCall{Dir: dir, Name: name, Args: args})
	if f.OutputFunc != nil {
		return f.OutputFunc(ctx, dir, name, args)
	}
	return nil, nil
}

func (f *FakeRunner) Stream(ctx context.Context, dir, name string, args []string, onLine func([]byte) error) error {
	f.Calls = append(f.Calls, FakeCall{Dir: dir, Name: name, Args: args})
	if f.StreamFunc != nil {
		return f.StreamFunc(ctx, dir, name, args, onLine)
	}
	for _, line := range f.StreamLines {
		if err := onLine([]byte(line)); err != nil {
			return err
		}
	}
	return f.StreamErr
}

type notFoundErr string

func (e notFoundErr) Error() string { return "exec: \"" + string(e) + "\": not found in fake PATH" }

func errNotFound(name string) error { return notFoundErr(name) }

var _ Runner = (*FakeRunner)(nil)
