package cgxcache

import (
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/anelson-labs/cgx/internal/cgxerr"
)

// stagingDir returns a sibling temp directory of dest, suffixed with a random UUID so
// concurrent racers never collide on the same staging path. The directory's parent is
// created if necessary.
func stagingDir(dest string) (string, error) {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", cgxerr.WrapPath(err, cgxerr.IOFailure, parent)
	}
	tmp := dest + ".tmp-" + uuid.NewString()
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", cgxerr.WrapPath(err, cgxerr.IOFailure, tmp)
	}
	return tmp, nil
}

// publish atomically renames temp into place at dest. If dest already exists, another
// process won the race: temp is removed and the caller uses the winner's directory
// unconditionally. That outcome is success, not an error.
func publish(temp, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, filepath.Dir(dest))
	}
	err := os.Rename(temp, dest)
	if err == nil {
		return nil
	}
	if isDirNotEmptyOrExists(err) {
		_ = os.RemoveAll(temp)
		if _, statErr := os.Stat(dest); statErr == nil {
			return nil
		}
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dest)
	}
	return cgxerr.WrapPath(err, cgxerr.IOFailure, dest)
}

// isDirNotEmptyOrExists accounts for platform differences in os.Rename's error when the
// destination directory already exists and is non-empty (ENOTEMPTY on Linux rather than
// EEXIST, depending on OS/filesystem).
func isDirNotEmptyOrExists(err error) bool {
	return errors.Is(err, os.ErrExist) || errors.Is(err, syscall.EEXIST) || errors.Is(err, syscall.ENOTEMPTY)
}

// exists reports whether path is present on disk.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// cleanupTemp best-effort removes a losing racer's (or a failed populate's) staging dir.
func cleanupTemp(temp string) {
	_ = os.RemoveAll(temp)
}

// writeFileAtomic writes data to dest via a sibling temp file and rename, so concurrent
// readers never observe a partially-written cache file.
func writeFileAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, filepath.Dir(dest))
	}
	tmp := dest + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, tmp)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dest)
	}
	return nil
}

// copyFile copies src to dest, creating parent directories and applying perm.
func copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, src)
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, filepath.Dir(dest))
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dest)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dest)
	}
	return nil
}
