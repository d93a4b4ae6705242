// Package pyproject reads a package's declared build configuration and
// obtains authoritative metadata from its PEP 517 build backend.
//
// The backend hook runs in a dedicated python subprocess rather than by
// mutating any shared import state: the subprocess front-inserts the
// declared backend-path entries into its own sys.path, so the resolution
// is scoped to that single invocation by construction and cannot shadow
// anything in later iterations.
package pyproject

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Method is the canonical build-method label recorded in emitted recipes.
type Method string

const (
	MethodSetuptools Method = "setuptools"
	MethodFlit       Method = "flit"
	MethodPoetry     Method = "poetry"
	MethodHatch      Method = "hatch"
	MethodMaturin    Method = "maturin"
	MethodPEP517     Method = "pep517"
	MethodUnknown    Method = "unknown"
)

// DefaultBackend is the universal fallback backend used when a package
// declares no build-system table at all (PEP 517's prescribed default).
const DefaultBackend = "setuptools.build_meta:__legacy__"

// Backend identifies the build backend of a package: a module path, an
// optional colon-separated object path within that module, and optional
// extra directories to search for the backend module itself. Method is the
// label derived from the module path; the pep517 label is the generic
// variant for backends this tool doesn't know by name.
type Backend struct {
	Method Method
	Module string   // dotted module path, e.g. "setuptools.build_meta"
	Object string   // dotted attribute path after the colon, often empty
	Path   []string // backend-path entries, relative to the source tree
}

// Spec returns the backend in module:object notation as pyproject.toml
// declares it.
func (b Backend) Spec() string {
	if b.Object == "" {
		return b.Module
	}
	return b.Module + ":" + b.Object
}

// BuildConfig is the parsed build configuration of one source tree.
type BuildConfig struct {
	Name     string   // logical project name, empty if not directly listed
	Requires []string // declared install requirements, may be empty
	Backend  Backend
}

type pyprojectFile struct {
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	BuildSystem struct {
		Requires     []string `toml:"requires"`
		BuildBackend string   `toml:"build-backend"`
		BackendPath  []string `toml:"backend-path"`
	} `toml:"build-system"`
}

// Load parses <root>/pyproject.toml. A missing file is not an error: the
// returned config carries the universal default backend and no metadata.
func Load(root string) (*BuildConfig, error) {
	data, err := os.ReadFile(filepath.Join(root, "pyproject.toml"))
	if os.IsNotExist(err) {
		return &BuildConfig{Backend: classify(DefaultBackend, nil)}, nil
	}
	if err != nil {
		return nil, err
	}

	var pp pyprojectFile
	if err := toml.Unmarshal(data, &pp); err != nil {
		return nil, err
	}

	spec := pp.BuildSystem.BuildBackend
	if spec == "" {
		spec = DefaultBackend
	}
	return &BuildConfig{
		Name:     pp.Project.Name,
		Requires: pp.Project.Dependencies,
		Backend:  classify(spec, pp.BuildSystem.BackendPath),
	}, nil
}

// wellKnown maps backend module paths to their canonical method label.
var wellKnown = map[string]Method{
	"setuptools.build_meta":   MethodSetuptools,
	"flit_core.buildapi":      MethodFlit,
	"flit.buildapi":           MethodFlit,
	"poetry.core.masonry.api": MethodPoetry,
	"poetry.masonry.api":      MethodPoetry,
	"hatchling.build":         MethodHatch,
	"maturin":                 MethodMaturin,
}

// classify splits a module:object backend spec and labels it. Backends not
// in the well-known table are pep517 when a backend search path is given
// (the package ships its own backend) and unknown otherwise.
func classify(spec string, path []string) Backend {
	module, object, _ := strings.Cut(spec, ":")

	b := Backend{Module: module, Object: object, Path: path}
	if m, ok := wellKnown[module]; ok {
		b.Method = m
	} else if len(path) > 0 {
		b.Method = MethodPEP517
	} else {
		b.Method = MethodUnknown
	}
	return b
}
