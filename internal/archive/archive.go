// Package archive extracts the target's release archive into a
// destination directory, guarding against path-traversal and symlink
// escape attacks from untrusted archive content.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// Format identifies a supported archive encoding.
type Format string

const (
	TarGz  Format = "tar.gz"
	TarXz  Format = "tar.xz"
	TarBz2 Format = "tar.bz2"
	TarZst Format = "tar.zst"
	TarLz  Format = "tar.lz"
	Tar    Format = "tar"
	Zip    Format = "zip"
)

// DetectFormat infers the archive format from a filename's suffix.
// Returns "" if the format is not recognized.
func DetectFormat(filename string) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return TarXz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"), strings.HasSuffix(lower, ".tbz"):
		return TarBz2
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return TarZst
	case strings.HasSuffix(lower, ".tar.lz"), strings.HasSuffix(lower, ".tlz"):
		return TarLz
	case strings.HasSuffix(lower, ".tar"):
		return Tar
	case strings.HasSuffix(lower, ".zip"):
		return Zip
	default:
		return ""
	}
}

// Extract unpacks archivePath (in the given format) into destPath,
// stripping stripDirs leading path components from every entry name.
// destPath is created if missing. Entries that would escape destPath,
// whether via "../" components or an absolute/escaping symlink, are
// rejected.
func Extract(archivePath string, format Format, destPath string, stripDirs int) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll(destPath, 0755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	switch format {
	case TarGz:
		gzr, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		defer gzr.Close()
		return extractTar(tar.NewReader(gzr), destPath, stripDirs)
	case TarXz:
		xzr, err := xz.NewReader(file)
		if err != nil {
			return fmt.Errorf("xz reader: %w", err)
		}
		return extractTar(tar.NewReader(xzr), destPath, stripDirs)
	case TarBz2:
		return extractTar(tar.NewReader(bzip2.NewReader(file)), destPath, stripDirs)
	case TarZst:
		zr, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		return extractTar(tar.NewReader(zr), destPath, stripDirs)
	case TarLz:
		lr, err := lzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("lzip reader: %w", err)
		}
		return extractTar(tar.NewReader(lr), destPath, stripDirs)
	case Tar:
		return extractTar(tar.NewReader(file), destPath, stripDirs)
	case Zip:
		return extractZip(archivePath, destPath, stripDirs)
	default:
		return fmt.Errorf("unsupported archive format: %q", format)
	}
}

func stripAndJoin(name string, stripDirs int, destPath string) (string, bool, error) {
	clean := strings.TrimPrefix(name, "./")
	parts := strings.Split(clean, "/")
	if len(parts) <= stripDirs {
		return "", false, nil
	}
	parts = parts[stripDirs:]
	rel := filepath.Join(parts...)
	target := filepath.Join(destPath, rel)
	if !isWithin(target, destPath) {
		return "", false, fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, true, nil
}

func extractTar(tr *tar.Reader, destPath string, stripDirs int) error {
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target, ok, err := stripAndJoin(header.Name, stripDirs, destPath)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", target, err)
			}
			f.Close()
		case tar.TypeSymlink:
			if err := validateSymlinkTarget(header.Linkname, target, destPath); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("mkdir parent of %s: %w", target, err)
			}
			if err := atomicSymlink(header.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", target, err)
			}
		}
	}
	return nil
}

func extractZip(archivePath, destPath string, stripDirs int) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, ok, err := stripAndJoin(f.Name, stripDirs, destPath)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("mkdir parent of %s: %w", target, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, f.Mode())
		if err != nil {
			rc.Close()
			return fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := io.Copy(out, rc); err != nil {
			out.Close()
			rc.Close()
			return fmt.Errorf("write %s: %w", target, err)
		}
		out.Close()
		rc.Close()
	}
	return nil
}

// isWithin reports whether targetPath is contained within basePath.
func isWithin(targetPath, basePath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	return absTarget == absBase || strings.HasPrefix(absTarget, absBase+string(os.PathSeparator))
}

// validateSymlinkTarget rejects symlinks that would resolve outside destPath.
func validateSymlinkTarget(linkTarget, linkLocation, destPath string) error {
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("absolute symlink targets are not allowed: %s -> %s", linkLocation, linkTarget)
	}
	resolved := filepath.Join(filepath.Dir(linkLocation), linkTarget)
	if !isWithin(resolved, destPath) {
		return fmt.Errorf("symlink target escapes destination: %s -> %s", linkLocation, linkTarget)
	}
	return nil
}

// atomicSymlink creates a symlink via a temp-name + rename to avoid a
// TOCTOU window between removing a stale link and creating the new one.
func atomicSymlink(target, linkPath string) error {
	tmp := linkPath + ".tmp-symlink"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
