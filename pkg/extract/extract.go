// Package extract unpacks source archives into a scratch directory.
//
// Before a single byte is written, every member path in the archive is
// normalized and checked: a member that resolves outside the destination
// (leading "/" or "..") fails the whole operation with TRAVERSAL_ATTEMPT.
// The driver treats that code as fatal to the entire run, not just the
// current package. This check is deliberate and independent of whatever
// protections the underlying archive readers provide.
package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/pkgscan/pkgscan/pkg/errors"
)

// archiveSuffixes, longest first so ".tar.gz" wins over ".gz".
var archiveSuffixes = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tgz", ".tar", ".zip"}

// Extract unpacks the archive data into scratchDir and returns the path of
// the extracted source root. The root is derived from the archive filename
// with its suffix stripped (pkg-1.0.tar.gz -> <scratchDir>/pkg-1.0). If the
// root already exists from a previous extraction it is deleted first so
// extraction always starts from a clean slate.
func Extract(data []byte, filename, scratchDir string) (string, error) {
	members, err := listMembers(data, filename)
	if err != nil {
		return "", err
	}
	for _, m := range members {
		if escapes(m) {
			return "", errors.New(errors.ErrCodeTraversal,
				"archive %s: member %q escapes extraction directory", filename, m)
		}
	}

	root := filepath.Join(scratchDir, StripSuffix(filename))
	if _, err := os.Stat(root); err == nil {
		if err := os.RemoveAll(root); err != nil {
			return "", errors.Wrap(errors.ErrCodeExtraction, err, "clean %s", root)
		}
	}

	if strings.HasSuffix(filename, ".zip") {
		err = extractZip(data, scratchDir)
	} else {
		err = extractTar(data, filename, scratchDir)
	}
	if err != nil {
		return "", err
	}
	return root, nil
}

// StripSuffix removes the archive suffix from a filename.
// "flask-2.0.0.tar.gz" becomes "flask-2.0.0".
func StripSuffix(filename string) string {
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(filename, s) {
			return strings.TrimSuffix(filename, s)
		}
	}
	return filename
}

// escapes reports whether a member path resolves outside the extraction
// directory: absolute paths and anything that normalizes to a ".." prefix.
func escapes(member string) bool {
	if strings.HasPrefix(member, "/") {
		return true
	}
	clean := path.Clean(member)
	return clean == ".." || strings.HasPrefix(clean, "../")
}

// listMembers enumerates every member path without writing anything.
func listMembers(data []byte, filename string) ([]string, error) {
	if strings.HasSuffix(filename, ".zip") {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeExtraction, err, "open %s", filename)
		}
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		return names, nil
	}

	tr, err := tarReader(data, filename)
	if err != nil {
		return nil, err
	}
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeExtraction, err, "read %s", filename)
		}
		names = append(names, hdr.Name)
		if hdr.Typeflag == tar.TypeLink || hdr.Typeflag == tar.TypeSymlink {
			// Link targets can escape too.
			if path.IsAbs(hdr.Linkname) {
				names = append(names, hdr.Linkname)
			} else {
				names = append(names, path.Join(path.Dir(hdr.Name), hdr.Linkname))
			}
		}
	}
	return names, nil
}

// tarReader wraps data in the decompressor the filename suffix calls for.
func tarReader(data []byte, filename string) (*tar.Reader, error) {
	br := bytes.NewReader(data)
	var r io.Reader
	switch {
	case strings.HasSuffix(filename, ".tar.gz"), strings.HasSuffix(filename, ".tgz"):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeExtraction, err, "open %s", filename)
		}
		r = gz
	case strings.HasSuffix(filename, ".tar.bz2"):
		r = bzip2.NewReader(br)
	case strings.HasSuffix(filename, ".tar.xz"):
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeExtraction, err, "open %s", filename)
		}
		r = xr
	case strings.HasSuffix(filename, ".tar"):
		r = br
	default:
		return nil, errors.New(errors.ErrCodeExtraction, "unsupported archive format: %s", filename)
	}
	return tar.NewReader(r), nil
}

func extractZip(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrap(errors.ErrCodeExtraction, err, "open zip")
	}
	for _, f := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrap(errors.ErrCodeExtraction, err, "mkdir %s", target)
			}
			continue
		}
		if err := writeFile(target, f.Mode(), func(w io.Writer) error {
			rc, err := f.Open()
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(w, rc)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func extractTar(data []byte, filename, dest string) error {
	tr, err := tarReader(data, filename)
	if err != nil {
		return err
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeExtraction, err, "read %s", filename)
		}

		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return errors.Wrap(errors.ErrCodeExtraction, err, "mkdir %s", target)
			}
		case tar.TypeReg:
			if err := writeFile(target, os.FileMode(hdr.Mode)&0777, func(w io.Writer) error {
				_, err := io.Copy(w, tr)
				return err
			}); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return errors.Wrap(errors.ErrCodeExtraction, err, "mkdir for %s", target)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return errors.Wrap(errors.ErrCodeExtraction, err, "symlink %s", target)
			}
		default:
			// Devices, fifos etc. have no business in an sdist.
		}
	}
}

func writeFile(target string, mode os.FileMode, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeExtraction, err, "mkdir for %s", target)
	}
	if mode&0400 == 0 {
		mode |= 0600
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExtraction, err, "create %s", target)
	}
	defer f.Close()
	if err := fill(f); err != nil {
		return errors.Wrap(errors.ErrCodeExtraction, err, "write %s", target)
	}
	return nil
}
