// Package cargoexec abstracts invocation of the system cargo/rustup binaries so that
// metadata loading and the compile step share one process-execution seam: a real os/exec
// implementation plus a swappable fake for tests.
package cargoexec

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/anelson-labs/cgx/internal/cgxerr"
)

// Runner executes cargo/rustup subprocesses. Two shapes are needed by the pipeline:
// Output (capture stdout whole, for `cargo metadata`) and Stream (process stdout line by
// line as it arrives, for `cargo build --message-format=json`).
type Runner interface {
	// Output runs name with args in dir and returns its captured stdout. Non-zero exit
	// yields an error wrapping stderr.
	Output(ctx context.Context, dir string, name string, args []string) ([]byte, error)
	// Stream runs name with args in dir, invoking onLine for each line of stdout as it
	// is produced. Non-zero exit is reported via the returned error, but onLine will
	// already have seen every line cargo emitted before failing.
	Stream(ctx context.Context, dir string, name string, args []string, onLine func([]byte) error) error
	// LookPath reports whether name is present on PATH.
	LookPath(name string) (string, error)
}

// RealRunner executes real subprocesses via os/exec.
type RealRunner struct{}

func (RealRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (RealRunner) Output(ctx context.Context, dir, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "%s %v: %s", name, args, stderr.String())
	}
	return out, nil
}

func (RealRunner) Stream(ctx context.Context, dir, name string, args []string, onLine func([]byte) error) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.IOFailure)
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %s %v", name, args)
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var lineErr error
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if lineErr == nil {
			lineErr = onLine(line)
		}
	}
	waitErr := cmd.Wait()
	if lineErr != nil {
		return lineErr
	}
	if waitErr != nil {
		return cgxerr.Wrap(errors.Wrapf(waitErr, "%s %v: %s", name, args, stderr.String()), cgxerr.CargoBuildFailed)
	}
	return nil
}

var _ Runner = RealRunner{}

// WithToolchain prefixes a cargo invocation with `rustup run {toolchain}` when toolchain
// is non-empty; rustup is required in that case. name/args are the un-prefixed cargo
// invocation.
func WithToolchain(toolchain, name string, args []string) (string, []string) {
	if toolchain == "" {
		return name, args
	}
	return "rustup", append([]string{"run", toolchain, name}, args...)
}
