package builder

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/google/uuid"

	"github.com/anelson-labs/cgx/internal/cgxerr"
	"github.com/anelson-labs/cgx/internal/spec"
)

// prepareBuildDir stages the directory cargo will run in: a LocalDir crate builds in
// place; every other source gets a fresh directory under buildRoot, populated by a
// .gitignore/.git/info/exclude-aware copy so stale target/ directories and other
// untracked build noise never leak into the copy. Ephemeral build directories are left
// behind after the run for post-mortem inspection.
func prepareBuildDir(buildRoot string, dl spec.DownloadedCrate) (string, error) {
	if dl.Resolved.Source.Kind == spec.LocalDir {
		return dl.Path, nil
	}
	if err := os.MkdirAll(buildRoot, 0o755); err != nil {
		return "", cgxerr.WrapPath(err, cgxerr.IOFailure, buildRoot)
	}
	dir := filepath.Join(buildRoot, "cgx-build-"+dl.Resolved.Name+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", cgxerr.WrapPath(err, cgxerr.IOFailure, dir)
	}
	if err := copySourceTree(dl.Path, dir); err != nil {
		return "", err
	}
	return dir, nil
}

// loadIgnorePatterns reads the root-level .gitignore and .git/info/exclude files.
// Nested .gitignore files are not consulted.
func loadIgnorePatterns(root string) []gitignore.Pattern {
	var patterns []gitignore.Pattern
	for _, rel := range []string{".gitignore", filepath.Join(".git", "info", "exclude")} {
		b, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimRight(line, "\r")
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, gitignore.ParsePattern(line, nil))
		}
	}
	return patterns
}

// copySourceTree copies src into dst, skipping .git itself and anything matched by the
// root .gitignore/.git/info/exclude patterns.
func copySourceTree(src, dst string) error {
	matcher := gitignore.NewMatcher(loadIgnorePatterns(src))
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return cgxerr.WrapPath(err, cgxerr.IOFailure, path)
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return cgxerr.WrapPath(relErr, cgxerr.IOFailure, path)
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" && filepath.Dir(rel) == "." {
			return fs.SkipDir
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if matcher.Match(parts, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		dstPath := filepath.Join(dst, rel)
		if d.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return cgxerr.WrapPath(err, cgxerr.IOFailure, dstPath)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return cgxerr.WrapPath(err, cgxerr.IOFailure, path)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return cgxerr.WrapPath(err, cgxerr.IOFailure, path)
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return cgxerr.WrapPath(err, cgxerr.IOFailure, dstPath)
			}
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return cgxerr.WrapPath(err, cgxerr.IOFailure, dstPath)
		}
		return copyFile(path, dstPath, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, src)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	if err := out.Close(); err != nil {
		return cgxerr.WrapPath(err, cgxerr.IOFailure, dst)
	}
	return nil
}
