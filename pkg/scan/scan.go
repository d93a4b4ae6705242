// Package scan drives the whole pipeline: for each queued registry name it
// fetches metadata, downloads and unpacks the sdist, asks the package's own
// build backend for authoritative metadata, resolves runtime dependencies
// (feeding newly discovered ones back into the queue), classifies the
// license, and emits the descriptor files.
//
// Processing is strictly sequential: one package runs to completion before
// the next is dequeued. The work queue is an explicit FIFO plus a pending
// set; a name enters the queue at most once and leaves it permanently when
// its package directory lands on disk. Per-package failures are logged and
// skipped; only a detected path-traversal attempt during extraction aborts
// the run.
package scan

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/pkgscan/pkgscan/pkg/emit"
	"github.com/pkgscan/pkgscan/pkg/errors"
	"github.com/pkgscan/pkgscan/pkg/extract"
	"github.com/pkgscan/pkgscan/pkg/fetch"
	"github.com/pkgscan/pkgscan/pkg/license"
	"github.com/pkgscan/pkgscan/pkg/pyproject"
	"github.com/pkgscan/pkgscan/pkg/registry"
	"github.com/pkgscan/pkgscan/pkg/resolve"
)

// MetadataFetcher is the registry capability the scanner needs.
// *registry.Client satisfies it.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, name string, refresh bool) (*registry.Metadata, error)
	BaseURL() string
}

// ArchiveFetcher selects and downloads a source archive.
// *fetch.Fetcher satisfies it.
type ArchiveFetcher interface {
	Download(ctx context.Context, md *registry.Metadata) (*fetch.Archive, error)
}

// BackendInvoker obtains distribution metadata from a build backend.
// *pyproject.Invoker satisfies it.
type BackendInvoker interface {
	InvokeBackend(ctx context.Context, cfg *pyproject.BuildConfig, root string) (*pyproject.DistMetadata, error)
}

// Confirmer decides whether an existing package directory may be
// overwritten. Returning false skips the package, which is also what a nil
// Confirmer does.
type Confirmer func(canonical string) bool

// Stats summarizes one run.
type Stats struct {
	Scanned int // packages dequeued and attempted
	Emitted int // descriptor sets written
	Skipped int // packages dropped with a diagnostic
}

// Scanner holds the collaborators of the pipeline. All fields except
// Confirmer and Logger are required.
type Scanner struct {
	Registry   MetadataFetcher
	Fetcher    ArchiveFetcher
	Invoker    BackendInvoker
	Classifier license.Classifier
	Confirm    Confirmer
	Logger     *log.Logger
	OutputRoot string
	Refresh    bool // bypass the metadata cache
}

func (s *Scanner) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Run processes the given registry names and everything they transitively
// require. It returns the run statistics and the first fatal error, if
// any; per-package failures are never fatal.
func (s *Scanner) Run(ctx context.Context, names []string) (*Stats, error) {
	scratch, err := os.MkdirTemp("", "pkgscan-")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create scratch directory")
	}
	defer os.RemoveAll(scratch)

	if err := os.MkdirAll(s.OutputRoot, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create output root %s", s.OutputRoot)
	}

	var queue []resolve.Dep
	pending := make(map[string]bool)
	for _, name := range names {
		dep := resolve.Dep{Name: name, Canonical: resolve.CanonicalName(name)}
		if pending[dep.Canonical] {
			continue
		}
		pending[dep.Canonical] = true
		queue = append(queue, dep)
	}

	stats := &Stats{}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		dep := queue[0]
		queue = queue[1:]
		stats.Scanned++

		fresh, err := s.process(ctx, dep, scratch)
		if err != nil {
			if errors.Skippable(err) {
				s.logger().Warn("skipping package",
					"package", dep.Name, "reason", errors.UserMessage(err))
				stats.Skipped++
				continue
			}
			return stats, err
		}
		stats.Emitted++

		for _, d := range resolve.Discover(fresh, s.OutputRoot, pending) {
			pending[d.Canonical] = true
			queue = append(queue, d)
			s.logger().Debug("queued dependency", "package", d.Name, "via", dep.Name)
		}
	}
	return stats, nil
}

// process runs the per-package pipeline and returns the package's runtime
// dependencies for queue growth.
func (s *Scanner) process(ctx context.Context, dep resolve.Dep, scratch string) ([]resolve.Dep, error) {
	logger := s.logger().With("package", dep.Name)
	logger.Info("processing package")

	md, err := s.Registry.FetchMetadata(ctx, dep.Name, s.Refresh)
	if err != nil {
		return nil, err
	}

	canonical := resolve.CanonicalName(md.Name)
	outDir := filepath.Join(s.OutputRoot, canonical)
	if _, err := os.Stat(outDir); err == nil {
		if s.Confirm == nil || !s.Confirm(canonical) {
			return nil, errors.New(errors.ErrCodeAlreadyExists,
				"%s already exists in %s", canonical, s.OutputRoot)
		}
		logger.Info("overwriting existing package", "dir", outDir)
	}

	arc, err := s.Fetcher.Download(ctx, md)
	if err != nil {
		return nil, err
	}
	logger.Debug("downloaded archive", "file", arc.Filename, "bytes", len(arc.Data), "verified", arc.Verified)

	root, err := extract.Extract(arc.Data, arc.Filename, scratch)
	if err != nil {
		return nil, err
	}

	cfg, err := pyproject.Load(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendUnavailable, err,
			"unreadable build configuration")
	}

	dist, err := s.Invoker.InvokeBackend(ctx, cfg, root)
	if err != nil {
		return nil, err
	}
	cfg.Merge(dist)
	logger.Debug("backend metadata extracted",
		"method", cfg.Backend.Method, "requirements", len(cfg.Requires))

	deps := resolve.Runtime(cfg.Requires)

	licenseFiles := license.FindFiles(root)
	licenses := s.Classifier.Classify(md, root, licenseFiles)

	depNames := make([]string, len(deps))
	for i, d := range deps {
		depNames[i] = d.Canonical
	}

	pkg := &emit.Package{
		RegistryName: md.Name,
		Canonical:    canonical,
		Version:      md.Version,
		ArchiveURL:   arc.URL,
		Filename:     arc.Filename,
		Method:       string(cfg.Backend.Method),
		Summary:      md.Summary,
		Homepage:     md.Homepage(),
		MetadataURL:  registry.MetadataURL(s.Registry.BaseURL(), dep.Name),
		Digests:      arc.Digests,
		Deps:         depNames,
		Licenses:     licenses,
		LicenseFiles: licenseFiles,
		TreeRoot:     root,
	}

	emitter := &emit.Emitter{OutputRoot: s.OutputRoot}
	if err := emitter.Write(pkg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "emit descriptor for %s", canonical)
	}
	logger.Info("emitted package", "dir", emitter.Dir(canonical), "deps", len(depNames))

	return deps, nil
}
