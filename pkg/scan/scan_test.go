package scan

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkgscan/pkgscan/pkg/errors"
	"github.com/pkgscan/pkgscan/pkg/fetch"
	"github.com/pkgscan/pkgscan/pkg/license"
	"github.com/pkgscan/pkgscan/pkg/pyproject"
	"github.com/pkgscan/pkgscan/pkg/registry"
)

// fakeRegistry serves canned metadata per package name.
type fakeRegistry struct {
	packages map[string]*registry.Metadata
}

func (f *fakeRegistry) FetchMetadata(ctx context.Context, name string, refresh bool) (*registry.Metadata, error) {
	md, ok := f.packages[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "package %s not found in registry", name)
	}
	return md, nil
}

func (f *fakeRegistry) BaseURL() string { return "https://pypi.test/pypi" }

// fakeFetcher returns prebuilt archives per package name.
type fakeFetcher struct {
	archives map[string]*fetch.Archive
}

func (f *fakeFetcher) Download(ctx context.Context, md *registry.Metadata) (*fetch.Archive, error) {
	arc, ok := f.archives[md.Name]
	if !ok {
		return nil, errors.New(errors.ErrCodeDownloadFailed, "%s: no source distribution available", md.Name)
	}
	return arc, nil
}

// fakeInvoker echoes the declared configuration back as backend metadata,
// standing in for a real PEP 517 hook run.
type fakeInvoker struct{}

func (fakeInvoker) InvokeBackend(ctx context.Context, cfg *pyproject.BuildConfig, root string) (*pyproject.DistMetadata, error) {
	return &pyproject.DistMetadata{Name: cfg.Name, Requires: cfg.Requires}, nil
}

// sdist builds a .tar.gz holding a pyproject.toml and a LICENSE file.
func sdist(t *testing.T, name, version string, deps []string) *fetch.Archive {
	t.Helper()
	var toml bytes.Buffer
	fmt.Fprintf(&toml, "[project]\nname = %q\ndependencies = [", name)
	for i, d := range deps {
		if i > 0 {
			toml.WriteString(", ")
		}
		fmt.Fprintf(&toml, "%q", d)
	}
	toml.WriteString("]\n\n[build-system]\nbuild-backend = \"setuptools.build_meta\"\n")

	dir := fmt.Sprintf("%s-%s", name, version)
	files := map[string]string{
		dir + "/pyproject.toml": toml.String(),
		dir + "/LICENSE":        "license text for " + name,
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for fname, content := range files {
		hdr := &tar.Header{Name: fname, Mode: 0644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	filename := dir + ".tar.gz"
	return &fetch.Archive{
		URL:      "https://files.test/packages/" + filename,
		Filename: filename,
		Data:     buf.Bytes(),
		Digests:  registry.Digests{SHA256: "cafe"},
		Verified: true,
	}
}

func metadata(name, version, summary string) *registry.Metadata {
	return &registry.Metadata{
		Name:        name,
		Version:     version,
		Summary:     summary,
		Classifiers: []string{"License :: OSI Approved :: MIT License"},
		HomePage:    "https://" + name + ".test",
	}
}

func newScanner(t *testing.T, reg *fakeRegistry, f *fakeFetcher) *Scanner {
	t.Helper()
	return &Scanner{
		Registry:   reg,
		Fetcher:    f,
		Invoker:    fakeInvoker{},
		Classifier: &license.Table{},
		OutputRoot: t.TempDir(),
	}
}

func TestRun_SinglePackage(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"alpha": metadata("alpha", "1.0", "First package"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"alpha": sdist(t, "alpha", "1.0", nil),
	}}
	s := newScanner(t, reg, f)

	stats, err := s.Run(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Emitted != 1 || stats.Skipped != 0 {
		t.Errorf("stats = %+v", stats)
	}

	dir := filepath.Join(s.OutputRoot, "python-alpha")
	for _, name := range []string{"python-alpha.mk", "python-alpha.hash", "Config.in"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestRun_TransitiveClosure(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"alpha": metadata("alpha", "1.0", "Top of the tree"),
		"beta":  metadata("beta", "2.0", "Depended upon"),
		"gamma": metadata("gamma", "3.0", "Leaf"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"alpha": sdist(t, "alpha", "1.0", []string{"beta>=1"}),
		"beta":  sdist(t, "beta", "2.0", []string{"gamma"}),
		"gamma": sdist(t, "gamma", "3.0", nil),
	}}
	s := newScanner(t, reg, f)

	stats, err := s.Run(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Emitted != 3 {
		t.Errorf("expected all 3 packages emitted, stats = %+v", stats)
	}
	for _, pkg := range []string{"python-alpha", "python-beta", "python-gamma"} {
		if _, err := os.Stat(filepath.Join(s.OutputRoot, pkg, "Config.in")); err != nil {
			t.Errorf("missing %s: %v", pkg, err)
		}
	}
}

func TestRun_CyclicDependenciesTerminate(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"ping": metadata("ping", "1.0", "Half of a cycle"),
		"pong": metadata("pong", "1.0", "Other half"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"ping": sdist(t, "ping", "1.0", []string{"pong"}),
		"pong": sdist(t, "pong", "1.0", []string{"ping"}),
	}}
	s := newScanner(t, reg, f)

	stats, err := s.Run(context.Background(), []string{"ping"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Emitted != 2 || stats.Scanned != 2 {
		t.Errorf("cycle must process each package exactly once, stats = %+v", stats)
	}
}

func TestRun_MissingDependencySkips(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"alpha": metadata("alpha", "1.0", "Has a dead dependency"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"alpha": sdist(t, "alpha", "1.0", []string{"ghost"}),
	}}
	s := newScanner(t, reg, f)

	stats, err := s.Run(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("queue must survive a missing dependency: %v", err)
	}
	if stats.Emitted != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRun_AlreadyExistsDefaultsToSkip(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"alpha": metadata("alpha", "1.0", "Existing"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"alpha": sdist(t, "alpha", "1.0", nil),
	}}
	s := newScanner(t, reg, f)

	if err := os.MkdirAll(filepath.Join(s.OutputRoot, "python-alpha"), 0755); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Run(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Skipped != 1 || stats.Emitted != 0 {
		t.Errorf("existing package must be skipped by default, stats = %+v", stats)
	}
}

func TestRun_ConfirmerAllowsOverwrite(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"alpha": metadata("alpha", "1.0", "Existing"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"alpha": sdist(t, "alpha", "1.0", nil),
	}}
	s := newScanner(t, reg, f)
	s.Confirm = func(canonical string) bool { return true }

	if err := os.MkdirAll(filepath.Join(s.OutputRoot, "python-alpha"), 0755); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Run(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Emitted != 1 {
		t.Errorf("confirmed overwrite must emit, stats = %+v", stats)
	}
}

func TestRun_TraversalAbortsRun(t *testing.T) {
	// Hand-build an archive with an escaping member.
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	content := "#!/bin/sh"
	hdr := &tar.Header{Name: "../evil.sh", Mode: 0755, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()

	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"evil":  metadata("evil", "1.0", "Hostile archive"),
		"after": metadata("after", "1.0", "Never reached"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"evil": {
			URL:      "https://files.test/evil-1.0.tar.gz",
			Filename: "evil-1.0.tar.gz",
			Data:     buf.Bytes(),
		},
		"after": sdist(t, "after", "1.0", nil),
	}}
	s := newScanner(t, reg, f)

	_, err := s.Run(context.Background(), []string{"evil", "after"})
	if !errors.Is(err, errors.ErrCodeTraversal) {
		t.Fatalf("traversal must abort the whole run, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(s.OutputRoot, "python-after")); statErr == nil {
		t.Error("queue must not continue past a traversal attempt")
	}
}

func TestRun_DuplicateSeedsCollapse(t *testing.T) {
	reg := &fakeRegistry{packages: map[string]*registry.Metadata{
		"alpha": metadata("alpha", "1.0", "Seeded twice"),
	}}
	f := &fakeFetcher{archives: map[string]*fetch.Archive{
		"alpha": sdist(t, "alpha", "1.0", nil),
	}}
	s := newScanner(t, reg, f)

	stats, err := s.Run(context.Background(), []string{"alpha", "Alpha", "alpha"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Scanned != 1 {
		t.Errorf("duplicate seeds must collapse, stats = %+v", stats)
	}
}
