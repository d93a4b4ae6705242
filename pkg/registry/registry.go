// Package registry implements the PyPI metadata client.
//
// Packages are looked up by exact name at the well-known JSON endpoint
// (https://pypi.org/pypi/<name>/json). Responses are cached through
// pkg/cache and transient failures are retried with backoff. A 404 maps to
// the NOT_FOUND error code and transport failures to NETWORK_ERROR; the
// driver treats both as skip-this-package.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkgscan/pkgscan/pkg/cache"
	"github.com/pkgscan/pkgscan/pkg/errors"
	"github.com/pkgscan/pkgscan/pkg/httputil"
)

// DefaultBaseURL is the production PyPI JSON API root.
const DefaultBaseURL = "https://pypi.org/pypi"

// metadataTimeout bounds a single JSON metadata request. Archive downloads
// are not subject to it: an sdist can take arbitrarily long to transfer and
// is bounded only by context cancellation.
const metadataTimeout = 10 * time.Second

// Digests holds the content digests a registry supplies for one file.
// Either field may be empty; an empty digest means "not supplied".
type Digests struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// Release is one downloadable file of a package version, as listed in the
// registry's urls[] array.
type Release struct {
	PackageType string  `json:"packagetype"` // "sdist", "bdist_wheel", ...
	URL         string  `json:"url"`
	Filename    string  `json:"filename"`
	Digests     Digests `json:"digests"`
}

// IsSource reports whether this release is a source distribution.
// Anything prebuilt (wheels, eggs) is skipped by the fetcher.
func (r Release) IsSource() bool {
	return r.PackageType == "sdist"
}

// Metadata is the registry's view of one package at its latest version.
type Metadata struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Summary     string            `json:"summary"`
	License     string            `json:"license"`
	Classifiers []string          `json:"classifiers"`
	HomePage    string            `json:"home_page"`
	ProjectURLs map[string]string `json:"project_urls"`
	DownloadURL string            `json:"download_url"` // package-level fallback, may be empty
	Releases    []Release         `json:"releases"`
}

// Homepage returns the best homepage URL: the explicit home_page field,
// falling back to the project-URL map's "Homepage" entry.
func (m *Metadata) Homepage() string {
	if m.HomePage != "" {
		return m.HomePage
	}
	return m.ProjectURLs["Homepage"]
}

// MetadataURL returns the JSON endpoint a package's metadata came from.
// Emitted as provenance in checksum manifests.
func MetadataURL(baseURL, name string) string {
	return fmt.Sprintf("%s/%s/json", baseURL, name)
}

// Client fetches package metadata from a PyPI-compatible registry.
// All methods are safe for concurrent use, though the scan driver only ever
// calls them sequentially.
type Client struct {
	http     *http.Client // metadata requests, bounded by metadataTimeout
	download *http.Client // archive downloads, bounded by context only
	cache    cache.Cache
	baseURL  string
	ttl      time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the registry root, mainly for tests pointing at an
// httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithTTL sets how long metadata responses stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// NewClient creates a registry client backed by the given cache.
// Pass cache.NewNullCache() to disable caching.
func NewClient(backend cache.Cache, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: metadataTimeout},
		download: &http.Client{},
		cache:    backend,
		baseURL:  DefaultBaseURL,
		ttl:      time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the registry root this client queries.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchMetadata retrieves metadata for a package by exact registry name.
//
// If refresh is true the cache is bypassed and a fresh API call is made.
// Returns an error with code NOT_FOUND when the package doesn't exist and
// NETWORK_ERROR for transport failures or unexpected status codes.
func (c *Client) FetchMetadata(ctx context.Context, name string, refresh bool) (*Metadata, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty package name")
	}

	key := "pypi:" + name
	if !refresh {
		if data, ok, _ := c.cache.Get(ctx, key); ok {
			var md Metadata
			if err := json.Unmarshal(data, &md); err == nil {
				return &md, nil
			}
		}
	}

	var md *Metadata
	err := httputil.RetryWithBackoff(ctx, func() error {
		var ferr error
		md, ferr = c.fetch(ctx, name)
		return ferr
	})
	if err != nil {
		return nil, err
	}

	if data, merr := json.Marshal(md); merr == nil {
		_ = c.cache.Set(ctx, key, data, c.ttl)
	}
	return md, nil
}

// DownloadFile fetches an arbitrary registry file (an sdist archive) and
// returns its raw bytes. Archive downloads are never cached; the scratch
// directory is process-scoped anyway. Unlike metadata requests there is no
// fixed deadline, since large archives on slow links legitimately exceed
// any metadata-sized timeout.
func (c *Client) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "bad download url %s", url)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "download %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ErrCodeNetwork, "download %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) fetch(ctx context.Context, name string) (*Metadata, error) {
	url := MetadataURL(c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "bad registry url %s", url)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &httputil.RetryableError{
			Err: errors.Wrap(errors.ErrCodeNetwork, err, "fetch %s", url),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.New(errors.ErrCodeNotFound, "package %s not found in registry", name)
	case resp.StatusCode >= 500:
		return nil, &httputil.RetryableError{
			Err: errors.New(errors.ErrCodeNetwork, "fetch %s: status %d", url, resp.StatusCode),
		}
	default:
		return nil, errors.New(errors.ErrCodeNetwork, "fetch %s: status %d", url, resp.StatusCode)
	}

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "decode metadata for %s", name)
	}

	urls := make(map[string]string, len(data.Info.ProjectURLs))
	for k, v := range data.Info.ProjectURLs {
		if s, ok := v.(string); ok {
			urls[k] = s
		}
	}

	return &Metadata{
		Name:        data.Info.Name,
		Version:     data.Info.Version,
		Summary:     data.Info.Summary,
		License:     data.Info.License,
		Classifiers: data.Info.Classifiers,
		HomePage:    data.Info.HomePage,
		ProjectURLs: urls,
		DownloadURL: data.Info.DownloadURL,
		Releases:    data.URLs,
	}, nil
}

type apiResponse struct {
	Info apiInfo   `json:"info"`
	URLs []Release `json:"urls"`
}

type apiInfo struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Summary     string         `json:"summary"`
	License     string         `json:"license"`
	Classifiers []string       `json:"classifiers"`
	ProjectURLs map[string]any `json:"project_urls"`
	HomePage    string         `json:"home_page"`
	DownloadURL string         `json:"download_url"`
}
