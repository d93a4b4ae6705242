// Package fetch selects and downloads a package's source archive.
//
// The fetcher walks the registry's download entries in registry order,
// skipping prebuilt distributions, and verifies content digests when the
// registry supplies them. When a package publishes no sdist at all, a
// candidate is synthesized from the package-level download URL.
package fetch

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"

	"github.com/charmbracelet/log"

	"github.com/pkgscan/pkgscan/pkg/errors"
	"github.com/pkgscan/pkgscan/pkg/registry"
)

// Downloader is the transport capability the fetcher needs.
// *registry.Client satisfies it.
type Downloader interface {
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}

// Archive is a downloaded and (when possible) verified source archive.
type Archive struct {
	URL      string
	Filename string
	Data     []byte
	Digests  registry.Digests // registry-supplied digests, for the .hash manifest
	Verified bool             // false when no digest was available to check
}

// Fetcher downloads source archives for packages.
type Fetcher struct {
	dl     Downloader
	logger *log.Logger
}

// New creates a Fetcher. If logger is nil, log.Default() is used.
func New(dl Downloader, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{dl: dl, logger: logger}
}

// Download picks a source distribution from md and returns its bytes.
//
// Policy: candidates are tried in registry order; prebuilt entries are
// skipped; a candidate with a digest is accepted only on digest match,
// otherwise the next candidate is tried. A candidate without any digest is
// accepted as-is -- this path is logged loudly since the bytes cannot be
// verified against the registry.
//
// Returns the last transport error if every candidate failed to download,
// or DOWNLOAD_FAILED when no viable candidate exists at all.
func (f *Fetcher) Download(ctx context.Context, md *registry.Metadata) (*Archive, error) {
	candidates := sourceCandidates(md)
	if len(candidates) == 0 {
		return nil, errors.New(errors.ErrCodeDownloadFailed,
			"%s: no source distribution available", md.Name)
	}

	var lastErr error
	for _, rel := range candidates {
		data, err := f.dl.DownloadFile(ctx, rel.URL)
		if err != nil {
			f.logger.Debug("candidate download failed", "url", rel.URL, "err", err)
			lastErr = err
			continue
		}

		switch verify(data, rel.Digests) {
		case verifyOK:
			return &Archive{
				URL:      rel.URL,
				Filename: rel.Filename,
				Data:     data,
				Digests:  rel.Digests,
				Verified: true,
			}, nil
		case verifyMismatch:
			f.logger.Warn("digest mismatch, trying next candidate",
				"package", md.Name, "file", rel.Filename)
			continue
		case verifyNoDigest:
			// Accepting unverifiable bytes is a known weakness of the
			// registry data, not of this tool. Make it visible.
			f.logger.Warn("registry supplied no digest; archive accepted unverified",
				"package", md.Name, "file", rel.Filename)
			return &Archive{
				URL:      rel.URL,
				Filename: rel.Filename,
				Data:     data,
				Digests:  rel.Digests,
			}, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New(errors.ErrCodeDownloadFailed,
		"%s: no candidate archive could be downloaded", md.Name)
}

// sourceCandidates returns the sdist entries of md in registry order.
// When the registry lists only prebuilt files (or none), a single candidate
// is synthesized from the package-level download URL.
func sourceCandidates(md *registry.Metadata) []registry.Release {
	var out []registry.Release
	for _, rel := range md.Releases {
		if rel.IsSource() {
			out = append(out, rel)
		}
	}
	if len(out) == 0 && md.DownloadURL != "" {
		out = append(out, registry.Release{
			PackageType: "sdist",
			URL:         md.DownloadURL,
			Filename:    filenameFromURL(md.DownloadURL),
		})
	}
	return out
}

// filenameFromURL derives an archive filename from the last URL path segment.
func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}

type verifyResult int

const (
	verifyOK verifyResult = iota
	verifyMismatch
	verifyNoDigest
)

// verify checks data against the supplied digests, preferring sha256.
func verify(data []byte, d registry.Digests) verifyResult {
	if d.SHA256 != "" {
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) == d.SHA256 {
			return verifyOK
		}
		return verifyMismatch
	}
	if d.MD5 != "" {
		sum := md5.Sum(data)
		if hex.EncodeToString(sum[:]) == d.MD5 {
			return verifyOK
		}
		return verifyMismatch
	}
	return verifyNoDigest
}
