// Package archivex extracts the archive formats prebuilt-binary providers commonly ship
// (tar, tar.gz, tar.xz, tar.zst, tar.bz2, zip, and naked executables) onto a local
// filesystem, with leading-prefix stripping and path-traversal rejection.
package archivex

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/anelson-labs/cgx/internal/cgxerr"
)

// Format tags a supported archive encoding.
type Format int

const (
	Unknown Format = iota
	TarPlain
	TarGz
	TarXz
	TarZst
	TarBz2
	Zip
	Raw // a single, uncompressed executable with no archive wrapper
)

// DetectFormat guesses a Format from a filename, following the suffix conventions prebuilt
// release archives use in practice (crates.io provider release assets, cargo-quickinstall).
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return TarXz
	case strings.HasSuffix(lower, ".tar.zst"):
		return TarZst
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return TarBz2
	case strings.HasSuffix(lower, ".tar"):
		return TarPlain
	case strings.HasSuffix(lower, ".zip"):
		return Zip
	default:
		return Raw
	}
}

// ExtractOptions controls extraction behavior shared by every archive format.
type ExtractOptions struct {
	// SubDir strips a leading path prefix common to every archive entry, the way a GitHub
	// release tarball nests its contents under "{crate}-{target}/".
	SubDir string
}

// Extract decodes src (whose total encoding is f) into destDir on the local filesystem.
func Extract(src io.Reader, destDir string, f Format, opt ExtractOptions) error {
	fs := osfs.New(destDir)
	switch f {
	case TarPlain:
		return extractTar(tar.NewReader(src), fs, opt)
	case TarGz:
		gzr, err := gzip.NewReader(src)
		if err != nil {
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		defer gzr.Close()
		return extractTar(tar.NewReader(gzr), fs, opt)
	case TarXz:
		xzr, err := xz.NewReader(src)
		if err != nil {
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		return extractTar(tar.NewReader(xzr), fs, opt)
	case TarZst:
		zr, err := zstd.NewReader(src)
		if err != nil {
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		defer zr.Close()
		return extractTar(tar.NewReader(zr), fs, opt)
	case TarBz2:
		return extractTar(tar.NewReader(bzip2.NewReader(src)), fs, opt)
	case Zip:
		return extractZip(src, fs, opt)
	case Raw:
		return errors.New("archivex: Raw format has no archive body to extract; use ExtractRaw")
	default:
		return errors.Errorf("archivex: unsupported format %v", f)
	}
}

// ExtractRaw places a single naked executable body at destDir/name with executable
// permissions, for providers whose release asset is the binary itself.
func ExtractRaw(src io.Reader, destDir, name string, mode int64) error {
	fs := osfs.New(destDir)
	if mode == 0 {
		mode = 0o755
	}
	f, err := fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(mode))
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
	}
	if err := f.Close(); err != nil {
		return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
	}
	return nil
}

// extractTar streams entries onto a filesystem rooted at destDir, stripping opt.SubDir
// and rejecting any entry whose relative path escapes the root.
func extractTar(tr *tar.Reader, fs billy.Filesystem, opt ExtractOptions) error {
	basepath := filepath.Clean(opt.SubDir) + string(filepath.Separator)
	for {
		h, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		path, err := filepath.Rel(basepath, h.Name)
		if err != nil {
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		if escapes(path) {
			if h.FileInfo().IsDir() {
				continue
			}
			if _, err := io.CopyN(io.Discard, tr, h.Size); err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
			continue
		}
		switch {
		case h.Linkname != "":
			linkpath, err := filepath.Rel(basepath, h.Linkname)
			if err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
			if err := fs.Symlink(linkpath, path); err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
		case h.FileInfo().IsDir():
			if err := fs.MkdirAll(path, h.FileInfo().Mode()); err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
		default:
			if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
			tf, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, h.FileInfo().Mode())
			if err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
			if _, err := io.CopyN(tf, tr, h.Size); err != nil {
				_ = tf.Close()
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
			if err := tf.Close(); err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
		}
	}
}

// extractZip reads the full body (zip.Reader needs an io.ReaderAt) then walks its entries,
// applying the same SubDir-stripping and traversal protection as extractTar.
func extractZip(src io.Reader, fs billy.Filesystem, opt ExtractOptions) error {
	buf, err := io.ReadAll(src)
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
	}
	zr, err := zip.NewReader(bytesReaderAt(buf), int64(len(buf)))
	if err != nil {
		return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
	}
	basepath := filepath.Clean(opt.SubDir) + string(filepath.Separator)
	for _, zf := range zr.File {
		path, err := filepath.Rel(basepath, zf.Name)
		if err != nil {
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		if escapes(path) {
			continue
		}
		if zf.FileInfo().IsDir() {
			if err := fs.MkdirAll(path, zf.Mode()); err != nil {
				return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
			}
			continue
		}
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		rc, err := zf.Open()
		if err != nil {
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		out, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode())
		if err != nil {
			_ = rc.Close()
			return cgxerr.Wrap(err, cgxerr.ArchiveExtractionFailed)
		}
		_, copyErr := io.Copy(out, rc)
		_ = rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return cgxerr.Wrap(copyErr, cgxerr.ArchiveExtractionFailed)
		}
		if closeErr != nil {
			return cgxerr.Wrap(closeErr, cgxerr.ArchiveExtractionFailed)
		}
	}
	return nil
}

func escapes(path string) bool {
	return slices.Contains(strings.Split(path, string(filepath.Separator)), "..")
}

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
