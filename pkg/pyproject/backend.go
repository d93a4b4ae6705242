package pyproject

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os/exec"
	"strings"

	"github.com/pkgscan/pkgscan/pkg/errors"
)

// exit code the hook uses for import/attribute resolution failures, so the
// Go side can tell "backend missing" apart from "backend crashed".
const backendUnavailableExit = 3

// hookScript runs inside a throwaway python process. It resolves the
// backend module (optionally from the backend-path entries, front-inserted
// into this process's own sys.path only), descends the dotted object path,
// calls prepare_metadata_for_build_wheel into a temp dir, streams the
// resulting METADATA file to stdout, and deletes the temp dir again.
const hookScript = `
import importlib, json, os, shutil, sys, tempfile

spec, paths, srcdir = sys.argv[1], json.loads(sys.argv[2]), sys.argv[3]
os.chdir(srcdir)
sys.path[:0] = [os.path.join(srcdir, p) for p in paths]

modname, _, objpath = spec.partition(":")
try:
    obj = importlib.import_module(modname)
except ImportError as exc:
    sys.stderr.write("backend import failed: %s\n" % exc)
    sys.exit(3)
try:
    for attr in filter(None, objpath.split(".")):
        obj = getattr(obj, attr)
except AttributeError as exc:
    sys.stderr.write("backend object not found: %s\n" % exc)
    sys.exit(3)

tmp = tempfile.mkdtemp(prefix="pkgscan-meta-")
try:
    distinfo = obj.prepare_metadata_for_build_wheel(tmp)
    with open(os.path.join(tmp, distinfo, "METADATA"), encoding="utf-8") as fh:
        sys.stdout.write(fh.read())
finally:
    shutil.rmtree(tmp, ignore_errors=True)
`

// DistMetadata is the authoritative metadata produced by the build backend.
type DistMetadata struct {
	Name     string
	Requires []string // raw Requires-Dist values
}

// Invoker runs PEP 517 metadata hooks. The zero value uses "python3" from
// PATH; set Python to override the interpreter.
type Invoker struct {
	Python string
}

func (iv *Invoker) python() string {
	if iv != nil && iv.Python != "" {
		return iv.Python
	}
	return "python3"
}

// InvokeBackend calls the backend's prepare_metadata_for_build_wheel hook
// with the extracted tree as working directory and parses the METADATA it
// produces.
//
// Failures to import the backend module or resolve the object path return
// BACKEND_UNAVAILABLE; so does a missing interpreter. When the missing
// module is setuptools itself -- the universal fallback every sdist is
// supposed to be buildable with -- the message calls that out since it
// points at the host environment, not the package.
func (iv *Invoker) InvokeBackend(ctx context.Context, cfg *BuildConfig, root string) (*DistMetadata, error) {
	interpreter, err := exec.LookPath(iv.python())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendUnavailable, err,
			"python interpreter %q not found", iv.python())
	}

	pathsJSON, err := json.Marshal(cfg.Backend.Path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode backend path")
	}

	cmd := exec.CommandContext(ctx, interpreter, "-c", hookScript,
		cfg.Backend.Spec(), string(pathsJSON), root)
	cmd.Dir = root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) && exitErr.ExitCode() == backendUnavailableExit {
			if strings.Contains(msg, "setuptools") {
				return nil, errors.New(errors.ErrCodeBackendUnavailable,
					"host is missing setuptools, the fallback build backend: %s", msg)
			}
			return nil, errors.New(errors.ErrCodeBackendUnavailable,
				"backend %s unavailable: %s", cfg.Backend.Spec(), msg)
		}
		return nil, errors.Wrap(errors.ErrCodeBackendUnavailable, err,
			"backend %s hook failed: %s", cfg.Backend.Spec(), msg)
	}

	md := parseMetadata(stdout.Bytes())
	if md.Name == "" {
		return nil, errors.New(errors.ErrCodeBackendUnavailable,
			"backend %s produced metadata without a Name field", cfg.Backend.Spec())
	}
	return md, nil
}

// Merge folds backend-produced metadata into the build config: the backend
// name always wins, requirements only fill in when none were declared.
func (cfg *BuildConfig) Merge(md *DistMetadata) {
	if md == nil {
		return
	}
	if md.Name != "" {
		cfg.Name = md.Name
	}
	if len(cfg.Requires) == 0 {
		cfg.Requires = md.Requires
	}
}

// parseMetadata reads the RFC 822 headers of a core-metadata file. Parsing
// stops at the first blank line; everything after it is the long
// description body.
func parseMetadata(data []byte) *DistMetadata {
	md := &DistMetadata{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(key) {
		case "name":
			md.Name = value
		case "requires-dist":
			md.Requires = append(md.Requires, value)
		}
	}
	return md
}
